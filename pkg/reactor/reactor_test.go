package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newPipe(t *testing.T) (int, int) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe(p[:]))
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	return p[0], p[1]
}

func newReactor(t *testing.T) *Reactor {
	t.Helper()
	r, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestReadableHandler(t *testing.T) {
	r := newReactor(t)
	rd, wr := newPipe(t)

	var got []byte
	_, err := r.Register(rd, func(ev Events) {
		assert.NotZero(t, ev&Readable)
		buf := make([]byte, 16)
		n, _ := unix.Read(rd, buf)
		got = append(got, buf[:n]...)
	}, 0)
	require.NoError(t, err)

	_, err = unix.Write(wr, []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, r.RunOnce(time.Second))
	assert.Equal(t, "hello", string(got))
}

func TestPriorityOrder(t *testing.T) {
	r := newReactor(t)
	rd1, wr1 := newPipe(t)
	rd2, wr2 := newPipe(t)

	var order []string
	_, err := r.Register(rd1, func(Events) {
		order = append(order, "late")
		unix.Read(rd1, make([]byte, 8))
	}, 10)
	require.NoError(t, err)
	_, err = r.Register(rd2, func(Events) {
		order = append(order, "early")
		unix.Read(rd2, make([]byte, 8))
	}, 0)
	require.NoError(t, err)

	unix.Write(wr1, []byte("x"))
	unix.Write(wr2, []byte("x"))

	require.NoError(t, r.RunOnce(time.Second))
	assert.Equal(t, []string{"early", "late"}, order)
}

func TestUnregister(t *testing.T) {
	r := newReactor(t)
	rd, wr := newPipe(t)

	calls := 0
	id, err := r.Register(rd, func(Events) { calls++ }, 0)
	require.NoError(t, err)
	assert.True(t, r.registered(id))

	require.NoError(t, r.Unregister(id))
	assert.False(t, r.registered(id))
	assert.ErrorIs(t, r.Unregister(id), ErrNotRegistered)

	unix.Write(wr, []byte("x"))
	require.NoError(t, r.RunOnce(10*time.Millisecond))
	assert.Zero(t, calls)
}

func TestUnregisterFromSiblingHandler(t *testing.T) {
	r := newReactor(t)
	rd1, wr1 := newPipe(t)
	rd2, wr2 := newPipe(t)

	var second ID
	secondCalled := false
	_, err := r.Register(rd1, func(Events) {
		unix.Read(rd1, make([]byte, 8))
		require.NoError(t, r.Unregister(second))
	}, 0)
	require.NoError(t, err)
	second, err = r.Register(rd2, func(Events) { secondCalled = true }, 1)
	require.NoError(t, err)

	unix.Write(wr1, []byte("x"))
	unix.Write(wr2, []byte("x"))
	require.NoError(t, r.RunOnce(time.Second))
	assert.False(t, secondCalled)
}

func TestPostFromOtherGoroutineAndBreak(t *testing.T) {
	r := newReactor(t)

	var mu sync.Mutex
	var seen []int
	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, r.Post(func() {
				mu.Lock()
				seen = append(seen, i)
				mu.Unlock()
			}))
		}(i)
	}
	wg.Wait()
	require.NoError(t, r.Post(r.Break))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился после Break")
	}
	mu.Lock()
	assert.Len(t, seen, 10)
	mu.Unlock()
}

func TestClosed(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Register(0, func(Events) {}, 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.Post(func() {}), ErrClosed)
	assert.ErrorIs(t, r.Run(), ErrClosed)
}

func TestRegisterValidation(t *testing.T) {
	r := newReactor(t)
	_, err := r.Register(-1, func(Events) {}, 0)
	assert.Error(t, err)
	_, err = r.Register(0, nil, 0)
	assert.Error(t, err)
}
