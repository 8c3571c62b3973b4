package lineinput

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(a *Assembler) []Line {
	var out []Line
	for l := range a.Lines() {
		out = append(out, l)
	}
	return out
}

func TestAssemblerPartialLines(t *testing.T) {
	a := NewAssembler(0)

	a.Feed([]byte("r sip:reg"))
	assert.Empty(t, collect(a))

	a.Feed([]byte(".example.com\nhelp\nq"))
	assert.Equal(t, []Line{{Text: "r sip:reg.example.com"}, {Text: "help"}}, collect(a))

	a.CloseInput()
	assert.Equal(t, []Line{{Text: "q"}, {EOF: true}}, collect(a))
}

func TestAssemblerEOF(t *testing.T) {
	a := NewAssembler(0)
	a.Feed([]byte("exit"))
	a.CloseInput()

	assert.Equal(t, []Line{{Text: "exit"}, {EOF: true}}, collect(a))
	assert.Empty(t, collect(a), "EOF выдается один раз")

	a.Feed([]byte("late\n"))
	assert.Empty(t, collect(a))
}

func TestAssemblerConsumerStopsEarly(t *testing.T) {
	a := NewAssembler(0)
	a.Feed([]byte("one\ntwo\nthree\n"))

	for l := range a.Lines() {
		assert.Equal(t, "one", l.Text)
		break
	}
	assert.Equal(t, []Line{{Text: "two"}, {Text: "three"}}, collect(a))
}

func TestAssemblerLongLine(t *testing.T) {
	a := NewAssembler(4)
	a.Feed([]byte("abcdefg"))
	assert.Equal(t, []Line{{Text: "abcd"}}, collect(a))

	a.Feed([]byte("h\n"))
	assert.Equal(t, []Line{{Text: "efgh"}}, collect(a))
}

type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, nil
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func TestAssemblerReadOnce(t *testing.T) {
	a := NewAssembler(0)
	r := &chunkReader{chunks: []string{"he", "lp\n"}}

	n, err := a.ReadOnce(r)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, collect(a))

	_, err = a.ReadOnce(r)
	require.NoError(t, err)
	assert.Equal(t, []Line{{Text: "help"}}, collect(a))

	_, err = a.ReadOnce(r)
	require.NoError(t, err)
	assert.True(t, a.Closed())
	assert.Equal(t, []Line{{EOF: true}}, collect(a))
}

func TestAssemblerReadError(t *testing.T) {
	a := NewAssembler(0)
	boom := errors.New("boom")
	_, err := a.ReadOnce(&chunkReader{err: boom})
	assert.ErrorIs(t, err, boom)
	assert.False(t, a.Closed())
}

func TestAssemblerReadFromPipe(t *testing.T) {
	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()

	_, err = wr.WriteString("o sip:bob@example.com\n")
	require.NoError(t, err)
	require.NoError(t, wr.Close())

	a := NewAssembler(0)
	for !a.Closed() {
		_, err := a.ReadOnce(rd)
		require.NoError(t, err)
	}
	assert.Equal(t, []Line{{Text: "o sip:bob@example.com"}, {EOF: true}}, collect(a))
}

func TestHistoryOrderAndClear(t *testing.T) {
	h := NewHistory(0)
	for _, l := range []string{"r", "", "  ", "i sip:a@b", "r"} {
		h.Add(l)
	}
	assert.Equal(t, []string{"r", "i sip:a@b", "r"}, h.Entries())
	assert.Equal(t, 3, h.Len())

	h.Clear()
	assert.Zero(t, h.Len())
	assert.Empty(t, h.Entries())
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(fmt.Sprintf("cmd %d", i))
	}
	assert.Equal(t, []string{"cmd 2", "cmd 3", "cmd 4"}, h.Entries())
}

func TestHistoryNil(t *testing.T) {
	var h *History
	assert.False(t, h.Add("x"))
	assert.Zero(t, h.Len())
	h.Clear()
}

func TestTerminalNotATTY(t *testing.T) {
	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()
	defer wr.Close()

	term := SaveTerminal(int(rd.Fd()))
	assert.False(t, term.IsTerminal())
	assert.NoError(t, term.Reset())
	assert.NoError(t, term.Reset())

	var nilTerm *Terminal
	assert.NoError(t, nilTerm.Reset())
}
