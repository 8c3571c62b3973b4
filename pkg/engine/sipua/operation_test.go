package sipua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationOutgoingCall(t *testing.T) {
	op := newOperation(kindCall, "sip:bob@example.com", stCalling)
	assert.Equal(t, "call", op.Kind())
	assert.Equal(t, "sip:bob@example.com", op.Target())
	assert.True(t, op.pendingOutgoing())
	assert.False(t, op.established())

	require.NoError(t, op.fire(evProgress))
	assert.Equal(t, stProceeding, op.State())
	assert.True(t, op.pendingOutgoing())

	require.NoError(t, op.fire(evAccept))
	assert.True(t, op.established())
	assert.False(t, op.pendingOutgoing())

	// повторный 2xx не ошибка
	require.NoError(t, op.fire(evAccept))
	assert.Equal(t, stActive, op.State())

	require.NoError(t, op.fire(evEnd))
	assert.Equal(t, stTerminating, op.State())
	assert.True(t, op.live())

	require.NoError(t, op.fire(evTerminate))
	assert.False(t, op.live())
}

func TestOperationChallenge(t *testing.T) {
	op := newOperation(kindRegister, "sip:registrar.example.com", stCalling)

	require.NoError(t, op.fire(evChallenge))
	assert.Equal(t, stAuthenticating, op.State())

	require.NoError(t, op.fire(evRetry))
	assert.Equal(t, stCalling, op.State())

	require.NoError(t, op.fire(evAccept))
	require.NoError(t, op.fire(evChallenge))
	assert.Equal(t, stAuthenticating, op.State())
}

func TestOperationIncomingCall(t *testing.T) {
	op := newOperation(kindCall, "sip:carol@example.com", stReceived)
	op.incoming = true
	assert.False(t, op.pendingOutgoing())

	assert.Error(t, op.fire(evProgress))
	assert.Equal(t, stReceived, op.State())

	require.NoError(t, op.fire(evAccept))
	assert.True(t, op.established())
}

func TestOperationTerminatedIsFinal(t *testing.T) {
	op := newOperation(kindMessage, "sip:bob@example.com", stCalling)
	require.NoError(t, op.fire(evTerminate))

	assert.Error(t, op.fire(evAccept))
	assert.Error(t, op.fire(evRetry))
	assert.Equal(t, stTerminated, op.State())
}

func TestOperationCSeq(t *testing.T) {
	op := newOperation(kindOptions, "sip:bob@example.com", stCalling)
	assert.Equal(t, uint32(1), op.nextCSeq())
	assert.Equal(t, uint32(2), op.nextCSeq())
}
