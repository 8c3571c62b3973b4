package sipua

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPIDF(t *testing.T) {
	data, err := buildPIDF("sip:alice@example.com", "t1", "out for lunch")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<?xml"))

	var doc pidfPresence
	require.NoError(t, xml.Unmarshal(data, &doc))
	assert.Equal(t, "sip:alice@example.com", doc.Entity)
	assert.Equal(t, "t1", doc.Tuple.ID)
	assert.Equal(t, "open", doc.Tuple.Status.Basic)
	assert.Equal(t, "out for lunch", doc.Note)
	assert.Equal(t, "urn:ietf:params:xml:ns:pidf", doc.XMLName.Space)
}

func TestBuildPIDFClosed(t *testing.T) {
	data, err := buildPIDF("sip:alice@example.com", "t1", "-")
	require.NoError(t, err)

	var doc pidfPresence
	require.NoError(t, xml.Unmarshal(data, &doc))
	assert.Equal(t, "closed", doc.Tuple.Status.Basic)
	assert.Empty(t, doc.Note)
	assert.NotContains(t, string(data), "<note>")
}

func TestBuildPIDFEmptyNote(t *testing.T) {
	data, err := buildPIDF("sip:alice@example.com", "t1", "")
	require.NoError(t, err)
	assert.Contains(t, string(data), "<basic>open</basic>")
	assert.NotContains(t, string(data), "<note>")
}
