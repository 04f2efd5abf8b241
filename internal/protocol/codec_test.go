package protocol

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKnownKinds(t *testing.T) {
	raw := []byte(`{"type":"playerMove","data":{"x":2000,"y":2000,"avatarKind":"knight"}}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	mv, ok := msg.(PlayerMove)
	require.True(t, ok)
	assert.Equal(t, 2000.0, mv.X)
	assert.Empty(t, mv.ID)

	raw = []byte(`{"type":"init","data":{"players":{"A":{"x":0,"y":0,"avatarKind":"playerDown","name":"ann"}}}}`)
	msg, err = Decode(raw)
	require.NoError(t, err)
	snap, ok := msg.(Init)
	require.True(t, ok)
	assert.Equal(t, "ann", snap.Players["A"].Name)

	msg, err = Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, TypePing, msg.Type())
}

func TestSignalPayloadStaysOpaque(t *testing.T) {
	inner := []byte(`{"sdp":{"type":"offer","sdp":"v=0"},"extra":[1,2]}`)
	b, err := Encode(Signal{To: "B", Signal: inner})
	require.NoError(t, err)

	msg, err := Decode(b)
	require.NoError(t, err)
	sig := msg.(Signal)
	assert.JSONEq(t, string(inner), string(sig.Signal))

	var p SignalPayload
	require.NoError(t, json.Unmarshal(sig.Signal, &p))
	require.NotNil(t, p.SDP)
	assert.Equal(t, webrtc.SDPTypeOffer, p.SDP.Type)
	assert.Nil(t, p.Candidate)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrBadPayload)

	_, err = Decode([]byte(`{"type":"join"}`))
	assert.ErrorIs(t, err, ErrBadPayload)

	_, err = Decode([]byte(`{"type":"playerMove","data":{"x":"far"}}`))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestEncodeFramesType(t *testing.T) {
	b := MustEncode(PlayerDisconnected{ID: "X"})
	assert.JSONEq(t, `{"type":"playerDisconnected","data":{"id":"X"}}`, string(b))
}
