package sipua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSipfrag(t *testing.T) {
	for _, tc := range []struct {
		body   string
		code   int
		reason string
	}{
		{"SIP/2.0 100 Trying\r\n", 100, "Trying"},
		{"SIP/2.0 180 Ringing", 180, "Ringing"},
		{"SIP/2.0 200 OK\r\nContent-Length: 0\r\n", 200, "OK"},
		{"SIP/2.0 503 Service Unavailable", 503, "Service Unavailable"},
		{"SIP/2.0 603", 603, ""},
	} {
		code, reason, err := parseSipfrag([]byte(tc.body))
		require.NoError(t, err, tc.body)
		assert.Equal(t, tc.code, code, tc.body)
		assert.Equal(t, tc.reason, reason, tc.body)
	}
}

func TestParseSipfragInvalid(t *testing.T) {
	for _, body := range []string{
		"",
		"garbage",
		"HTTP/1.1 200 OK",
		"SIP/2.0 abc Ringing",
		"SIP/2.0 99 Low",
		"SIP/2.0 700 High",
	} {
		_, _, err := parseSipfrag([]byte(body))
		assert.Error(t, err, body)
	}
}
