package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOp string

func (f fakeOp) Kind() string   { return "call" }
func (f fakeOp) Target() string { return string(f) }
func (f fakeOp) State() string  { return "ringing" }

func TestArg(t *testing.T) {
	assert.False(t, None.Present)
	assert.Equal(t, "def", None.Or("def"))
	assert.Equal(t, "def", Some("").Or("def"))
	assert.Equal(t, "x", Some("x").Or("def"))
	assert.True(t, Some("").Present)
}

func TestParseToken(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Token
		ok   bool
	}{
		{"#3", 3, true},
		{"3", 3, true},
		{" #12 ", 12, true},
		{"#0", 0, false},
		{"-1", 0, false},
		{"0x5f3a", 0, false},
		{"abc", 0, false},
	} {
		got, err := ParseToken(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
	assert.Equal(t, "#7", Token(7).String())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry[Operation]()
	a := r.Add(fakeOp("sip:a@example.com"))
	b := r.Add(fakeOp("sip:b@example.com"))
	assert.Equal(t, Token(1), a)
	assert.Equal(t, Token(2), b)

	tok, op, err := r.Resolve("#2")
	require.NoError(t, err)
	assert.Equal(t, b, tok)
	assert.Equal(t, "sip:b@example.com", op.Target())

	assert.True(t, r.Remove(a))
	assert.False(t, r.Remove(a))
	_, _, err = r.Resolve("1")
	assert.ErrorIs(t, err, ErrUnknownOperation)

	c := r.Add(fakeOp("sip:c@example.com"))
	assert.Equal(t, Token(3), c, "токены не переиспользуются")
	assert.Equal(t, []Token{2, 3}, r.Tokens())

	r.Clear()
	assert.Zero(t, r.Len())
}

func TestParseCredentials(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Credentials
	}{
		{"secret", Credentials{Password: "secret"}},
		{"Digest:\"example.com\":alice:secret", Credentials{Scheme: "Digest", Realm: "example.com", Username: "alice", Password: "secret"}},
		{"Digest:example.com:alice:pa:ss", Credentials{Scheme: "Digest", Realm: "example.com", Username: "alice", Password: "pa:ss"}},
		{"Digest:\"a:b\":alice:pw", Credentials{Scheme: "Digest", Realm: "a:b", Username: "alice", Password: "pw"}},
		{"only:two", Credentials{Password: "only:two"}},
	} {
		got, err := ParseCredentials(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseCredentials("")
	assert.Error(t, err)
}

func TestCredentialsMatches(t *testing.T) {
	item := AuthItem{Scheme: "Digest", Realm: "example.com"}
	assert.True(t, Credentials{Password: "x"}.Matches(item))
	assert.True(t, Credentials{Scheme: "digest", Realm: "example.com"}.Matches(item))
	assert.False(t, Credentials{Scheme: "Basic"}.Matches(item))
	assert.False(t, Credentials{Realm: "other"}.Matches(item))
}
