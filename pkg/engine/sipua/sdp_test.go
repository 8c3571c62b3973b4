package sipua

import (
	"strings"
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSDP(t *testing.T, raw string) *sdp.SessionDescription {
	t.Helper()
	var desc sdp.SessionDescription
	require.NoError(t, desc.Unmarshal([]byte(raw)))
	return &desc
}

func TestSDPOffer(t *testing.T) {
	b := newSDPBuilder("192.0.2.10")

	raw, err := b.offer(dirSendRecv)
	require.NoError(t, err)

	desc := parseSDP(t, raw)
	require.Len(t, desc.MediaDescriptions, 1)
	audio := desc.MediaDescriptions[0]
	assert.Equal(t, "audio", audio.MediaName.Media)
	assert.Equal(t, discardPort, audio.MediaName.Port.Value)
	assert.Equal(t, []string{"0", "8", "101"}, audio.MediaName.Formats)
	assert.Equal(t, dirSendRecv, mediaDirection(audio))
	assert.Equal(t, "192.0.2.10", desc.Origin.UnicastAddress)

	rtpmap, ok := audio.Attribute("rtpmap")
	assert.True(t, ok)
	assert.Equal(t, "0 PCMU/8000", rtpmap)
}

func TestSDPOfferVersionGrows(t *testing.T) {
	b := newSDPBuilder("192.0.2.10")
	first, err := b.offer(dirSendRecv)
	require.NoError(t, err)
	second, err := b.offer(dirSendRecv)
	require.NoError(t, err)

	assert.Less(t, parseSDP(t, first).Origin.SessionVersion, parseSDP(t, second).Origin.SessionVersion)
}

func TestSDPAnswer(t *testing.T) {
	remote := newSDPBuilder("198.51.100.1")
	local := newSDPBuilder("192.0.2.10")

	offer, err := remote.offer(dirSendOnly)
	require.NoError(t, err)

	answer, err := local.answer(offer)
	require.NoError(t, err)

	desc := parseSDP(t, answer)
	require.Len(t, desc.MediaDescriptions, 1)
	assert.Equal(t, dirRecvOnly, mediaDirection(desc.MediaDescriptions[0]))
	assert.Equal(t, []string{"0", "8", "101"}, desc.MediaDescriptions[0].MediaName.Formats)
}

func TestSDPAnswerCommonCodecs(t *testing.T) {
	offer := "v=0\r\n" +
		"o=- 1 1 IN IP4 198.51.100.1\r\n" +
		"s=-\r\n" +
		"c=IN IP4 198.51.100.1\r\n" +
		"t=0 0\r\n" +
		"m=audio 4000 RTP/AVP 8 18\r\n" +
		"a=rtpmap:8 PCMA/8000\r\n" +
		"a=rtpmap:18 G729/8000\r\n"

	answer, err := newSDPBuilder("192.0.2.10").answer(offer)
	require.NoError(t, err)
	desc := parseSDP(t, answer)
	assert.Equal(t, []string{"8"}, desc.MediaDescriptions[0].MediaName.Formats)
	assert.Equal(t, dirSendRecv, mediaDirection(desc.MediaDescriptions[0]))
}

func TestSDPAnswerErrors(t *testing.T) {
	b := newSDPBuilder("192.0.2.10")

	_, err := b.answer("not sdp")
	assert.Error(t, err)

	noCommon := "v=0\r\n" +
		"o=- 1 1 IN IP4 198.51.100.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 4000 RTP/AVP 18\r\n"
	_, err = b.answer(noCommon)
	assert.Error(t, err)

	videoOnly := "v=0\r\n" +
		"o=- 1 1 IN IP4 198.51.100.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=video 4000 RTP/AVP 96\r\n"
	_, err = b.answer(videoOnly)
	assert.Error(t, err)
}

func TestSetDirection(t *testing.T) {
	b := newSDPBuilder("192.0.2.10")
	raw, err := b.offer(dirSendRecv)
	require.NoError(t, err)
	before := parseSDP(t, raw).Origin.SessionVersion

	held, err := setDirection(raw, dirSendOnly)
	require.NoError(t, err)

	dir, err := sdpDirection(held)
	require.NoError(t, err)
	assert.Equal(t, dirSendOnly, dir)
	assert.Equal(t, 1, strings.Count(held, "a=sendonly"))
	assert.NotContains(t, held, "a=sendrecv")
	assert.Equal(t, before+1, parseSDP(t, held).Origin.SessionVersion)

	resumed, err := setDirection(held, dirSendRecv)
	require.NoError(t, err)
	dir, err = sdpDirection(resumed)
	require.NoError(t, err)
	assert.Equal(t, dirSendRecv, dir)
}

func TestReverseDirection(t *testing.T) {
	assert.Equal(t, dirRecvOnly, reverseDirection(dirSendOnly))
	assert.Equal(t, dirSendOnly, reverseDirection(dirRecvOnly))
	assert.Equal(t, dirSendRecv, reverseDirection(dirSendRecv))
	assert.Equal(t, dirInactive, reverseDirection(dirInactive))
}

func TestEscapeSDP(t *testing.T) {
	raw := "v=0\r\no=- 1 1 IN IP4 192.0.2.10\r\ns=-\r\n"

	escaped := escapeSDP(raw)
	assert.Equal(t, `v=0\r\no=- 1 1 IN IP4 192.0.2.10\r\ns=-`, escaped)
	assert.Equal(t, raw, unescapeSDP(escaped))

	assert.Equal(t, raw, unescapeSDP(`v=0\no=- 1 1 IN IP4 192.0.2.10\ns=-`))
	assert.Equal(t, raw, unescapeSDP("  v=0\no=- 1 1 IN IP4 192.0.2.10\ns=-\n\n"))
}

func TestValidateSDP(t *testing.T) {
	raw, err := newSDPBuilder("192.0.2.10").offer(dirSendRecv)
	require.NoError(t, err)
	assert.NoError(t, validateSDP(raw))

	assert.Error(t, validateSDP("garbage"))
	assert.Error(t, validateSDP("v=0\r\no=- 1 1 IN IP4 192.0.2.10\r\ns=-\r\nt=0 0\r\n"))
}
