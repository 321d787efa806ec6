package protocol

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const offerSDP = `{"type":"offer","sdp":"v=0\r\n"}`

func TestDecodeInboundVariants(t *testing.T) {
	ev, err := DecodeInbound([]byte(`{"type":"call:initiate","data":{"calleeId":"u2","caller":{"id":"spoof","displayName":"Alice"}}}`))
	require.NoError(t, err)
	in, ok := ev.(Initiate)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("u2"), in.CalleeID)
	assert.Equal(t, "Alice", in.Caller.DisplayName)

	ev, err = DecodeInbound([]byte(`{"type":"call:offer","data":{"calleeId":"u2","offer":` + offerSDP + `}}`))
	require.NoError(t, err)
	off := ev.(Offer)
	assert.JSONEq(t, offerSDP, string(off.Offer))

	ev, err = DecodeInbound([]byte(`{"type":"call:ice-candidate","data":{"remoteUserId":"u1","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0"}}}`))
	require.NoError(t, err)
	assert.IsType(t, Candidate{}, ev)

	ev, err = DecodeInbound([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.IsType(t, Ping{}, ev)
}

func TestDecodeInboundRejects(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"type":`,
		"no type":           `{"data":{}}`,
		"unknown type":      `{"type":"call:teleport","data":{}}`,
		"outbound only":     `{"type":"call:incoming","data":{"caller":{"id":"u1"}}}`,
		"bad callee":        `{"type":"call:initiate","data":{"calleeId":"undefined"}}`,
		"offer wrong type":  `{"type":"call:offer","data":{"calleeId":"u2","offer":{"type":"answer","sdp":"v=0"}}}`,
		"offer empty sdp":   `{"type":"call:offer","data":{"calleeId":"u2","offer":{"type":"offer","sdp":""}}}`,
		"offer not object":  `{"type":"call:offer","data":{"calleeId":"u2","offer":"v=0"}}`,
		"candidate missing": `{"type":"call:ice-candidate","data":{"remoteUserId":"u1","candidate":{"sdpMid":"0"}}}`,
		"wrong field type":  `{"type":"call:end","data":{"remoteUserId":7}}`,
	}
	for name, raw := range cases {
		_, err := DecodeInbound([]byte(raw))
		assert.ErrorIs(t, err, domain.ErrProtocolViolation, name)
	}
}

func TestEncodeEnvelope(t *testing.T) {
	f, err := Encode(Ended{UserID: "u1", Reason: ReasonDisconnected})
	require.NoError(t, err)
	assert.Equal(t, TypeEnded, gjson.GetBytes(f, "type").String())
	assert.Equal(t, "u1", gjson.GetBytes(f, "data.userId").String())
	assert.Equal(t, "disconnected", gjson.GetBytes(f, "data.reason").String())

	f = MustEncode(Ended{UserID: "u1"})
	assert.False(t, gjson.GetBytes(f, "data.reason").Exists())
}

func TestNewMessageIsFlat(t *testing.T) {
	text := "hi"
	m := domain.Message{ID: "m1", SenderID: "u1", ReceiverID: "u2", Text: &text, DeletedFor: []domain.UserID{}}
	f := MustEncode(NewMessage{Message: m})
	assert.Equal(t, "m1", gjson.GetBytes(f, "data.id").String())
	assert.Equal(t, "hi", gjson.GetBytes(f, "data.text").String())

	ev, err := DecodeOutbound(f)
	require.NoError(t, err)
	got := ev.(NewMessage)
	assert.Equal(t, m.ID, got.ID)
	require.NotNil(t, got.Text)
	assert.Equal(t, "hi", *got.Text)
}

func TestOutboundOfferDecodes(t *testing.T) {
	f := MustEncode(RemoteOffer{Offer: json.RawMessage(offerSDP), CallerID: "u1"})
	ev, err := DecodeOutbound(f)
	require.NoError(t, err)
	ro, ok := ev.(RemoteOffer)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("u1"), ro.CallerID)
}
