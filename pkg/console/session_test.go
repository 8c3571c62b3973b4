package console

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/arzzra/sofsip/pkg/config"
	"github.com/arzzra/sofsip/pkg/engine"
	"github.com/arzzra/sofsip/pkg/metrics"
)

type sessionFixture struct {
	engine *mockEngine
	deps   engine.Deps
	cfg    config.Config
	out    bytes.Buffer
	opts   Options
}

func newSessionFixture(t *testing.T, input string, closeInput bool) (*sessionFixture, *os.File) {
	t.Helper()
	t.Setenv("SOFSIP_ADDRESS", "")
	t.Setenv("SOFSIP_REGISTRAR", "")
	t.Setenv("SOFSIP_PROXY", "")

	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { rd.Close() })
	_, err = wr.WriteString(input)
	require.NoError(t, err)
	if closeInput {
		require.NoError(t, wr.Close())
	} else {
		t.Cleanup(func() { wr.Close() })
	}

	f := &sessionFixture{engine: &mockEngine{}}
	f.opts = Options{
		Input:     rd,
		Output:    &f.out,
		Stderr:    &bytes.Buffer{},
		Metrics:   metrics.NewCollector(),
		NoSignals: true,
		EngineFactory: func(cfg config.Config, deps engine.Deps) (engine.Engine, error) {
			f.cfg = cfg
			f.deps = deps
			return f.engine, nil
		},
	}
	t.Cleanup(func() { f.engine.AssertExpectations(t) })
	return f, wr
}

// expectShutdown имитирует движок: Shutdown асинхронно вызывает OnExit через реактор
func (f *sessionFixture) expectShutdown(check func()) {
	f.engine.On("Shutdown").Run(func(mock.Arguments) {
		if check != nil {
			check()
		}
		_ = f.deps.Poster.Post(f.engine.callbacks.OnExit)
	}).Return(nil).Once()
	f.engine.On("Close").Return(nil).Once()
}

func TestSessionEOFStopsWithoutFurtherCommands(t *testing.T) {
	f, _ := newSessionFixture(t, "l\n", true)
	f.engine.On("List").Return(nil).Once()

	var stateAtShutdown string
	f.expectShutdown(func() { stateAtShutdown = current.Load().State() })

	code, err := Loop(context.Background(), f.opts)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, StateStopping, stateAtShutdown)
	assert.Nil(t, current.Load())
	assert.Equal(t, StateTerminated, f.opts.Metrics.State())
}

func TestSessionExitIgnoresRemainingLines(t *testing.T) {
	f, _ := newSessionFixture(t, "q\nl\ni sip:bob@example.com\n", true)
	f.expectShutdown(nil)

	code, err := Loop(context.Background(), f.opts)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	f.engine.AssertNotCalled(t, "List")
	f.engine.AssertNotCalled(t, "Invite", mock.Anything)
}

func TestSessionEmbeddingIdentityAutoRegisters(t *testing.T) {
	f, _ := newSessionFixture(t, "", true)
	f.opts.AOR = "sip:alice@example.com"
	f.opts.Registrar = "sip:registrar.example.com"
	f.opts.Args = []string{"sip:ignored@example.com"}
	f.engine.On("Register", engine.None).Return(nil).Once()
	f.expectShutdown(nil)

	_, err := Loop(context.Background(), f.opts)
	require.NoError(t, err)
	assert.Equal(t, "sip:alice@example.com", f.cfg.AOR)
	assert.Equal(t, "sip:registrar.example.com", f.cfg.Proxy)
	assert.True(t, f.cfg.Register)
}

func TestSessionPositionalAOR(t *testing.T) {
	f, _ := newSessionFixture(t, "", true)
	t.Setenv("SOFSIP_ADDRESS", "sip:x@example.com")
	f.opts.Args = []string{"-q", "sip:y@example.com"}
	f.expectShutdown(nil)

	_, err := Loop(context.Background(), f.opts)
	require.NoError(t, err)
	assert.Equal(t, "sip:y@example.com", f.cfg.AOR)
}

func TestSessionAuthCallbackPrintsGuidance(t *testing.T) {
	f, _ := newSessionFixture(t, "l\n", true)
	f.engine.On("List").Run(func(mock.Arguments) {
		f.engine.callbacks.OnAuth([]engine.AuthItem{{Scheme: "Digest", Realm: "example.com"}})
		f.engine.callbacks.OnEvent(engine.Event{Kind: engine.EventRegistration, Status: 401})
	}).Return(nil).Once()
	f.expectShutdown(nil)

	_, err := Loop(context.Background(), f.opts)
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), AuthMessage("Digest"))
}

func TestSessionShutdownErrorBreaksLoop(t *testing.T) {
	f, _ := newSessionFixture(t, "exit\n", true)
	f.engine.On("Shutdown").Return(engine.ErrShuttingDown).Once()
	f.engine.On("Close").Return(nil).Once()

	code, err := Loop(context.Background(), f.opts)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestSessionContextCancelStops(t *testing.T) {
	f, _ := newSessionFixture(t, "", false)
	f.expectShutdown(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, err := Loop(ctx, f.opts)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestSessionEngineFactoryFailureIsFatal(t *testing.T) {
	f, _ := newSessionFixture(t, "", true)
	boom := errors.New("no transport")
	f.opts.EngineFactory = func(config.Config, engine.Deps) (engine.Engine, error) { return nil, boom }

	code, err := Loop(context.Background(), f.opts)
	assert.Equal(t, 1, code)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, current.Load())
}

func TestSessionMissingInputIsFatal(t *testing.T) {
	f, _ := newSessionFixture(t, "", true)
	f.opts.Input = nil

	code, err := Loop(context.Background(), f.opts)
	assert.Equal(t, 1, code)
	assert.ErrorIs(t, err, &Error{Code: CodeInputRegister})
}

func TestSessionSingleton(t *testing.T) {
	other := newSession(Options{})
	require.True(t, current.CompareAndSwap(nil, other))
	t.Cleanup(func() { current.CompareAndSwap(other, nil) })

	_, err := Loop(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestHandleSignal(t *testing.T) {
	var stderr bytes.Buffer
	code := -1
	handleSignal(unix.SIGTERM, &stderr, func(c int) { code = c })

	assert.Equal(t, 128+int(unix.SIGTERM), code)
	assert.Equal(t, SignalMessage(int(unix.SIGTERM)), stderr.String())
	assert.Contains(t, stderr.String(), "WARNING: The program has received signal (15) and will terminate.")
}

func TestLifecycleTransitions(t *testing.T) {
	m := metrics.NewCollector()
	lc := NewLifecycle(m, nil)
	assert.Equal(t, StateUninitialized, lc.State())

	assert.Error(t, lc.Fire(EventRun))
	require.NoError(t, lc.Fire(EventStart))
	require.NoError(t, lc.Fire(EventRun))
	assert.Equal(t, "running", m.State())
	require.NoError(t, lc.Fire(EventStop))
	assert.False(t, lc.Can(EventStop))
	require.NoError(t, lc.Fire(EventTerminate))
	assert.True(t, lc.Is(StateTerminated))
	assert.Error(t, lc.Fire(EventStart))
}
