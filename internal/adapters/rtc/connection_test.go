package rtc

import (
	"context"
	"testing"

	"github.com/dkeye/Plaza/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T, kind domain.ChannelKind) (*WebRTCConnection, *WebRTCConnection) {
	t.Helper()
	f, err := NewFactory(Config{})
	require.NoError(t, err)
	a, err := f.NewTransport("b", kind)
	require.NoError(t, err)
	b, err := f.NewTransport("a", kind)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a.(*WebRTCConnection), b.(*WebRTCConnection)
}

func TestReceiveOnlyOfferCarriesBothKinds(t *testing.T) {
	a, b := newPair(t, domain.ChannelAmbient)
	ctx := context.Background()

	require.NoError(t, a.AddLocalMedia(nil))
	offer, err := a.CreateOffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=audio")
	assert.Contains(t, offer.SDP, "m=video")

	require.NoError(t, b.ApplyRemoteDescription(offer))
	require.NoError(t, b.AddLocalMedia(nil))
	ans, err := b.CreateAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, ans.Type)
	require.NoError(t, a.ApplyRemoteDescription(ans))
}

func TestScreenOfferSendsOnlyItsTracks(t *testing.T) {
	a, b := newPair(t, domain.ChannelScreen)
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "screen", "display")
	require.NoError(t, err)

	require.NoError(t, a.AddLocalMedia([]webrtc.TrackLocal{track}))
	offer, err := a.CreateOffer(context.Background())
	require.NoError(t, err)
	assert.Contains(t, offer.SDP, "m=video")
	assert.NotContains(t, offer.SDP, "m=audio")

	require.NoError(t, b.ApplyRemoteDescription(offer))
	_, err = b.CreateAnswer(context.Background())
	require.NoError(t, err)
}

func TestAnswerWithoutOfferFails(t *testing.T) {
	_, b := newPair(t, domain.ChannelAmbient)
	_, err := b.CreateAnswer(context.Background())
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	a, _ := newPair(t, domain.ChannelAmbient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.CreateOffer(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, _ := newPair(t, domain.ChannelAmbient)
	failed := 0
	a.OnFailure(func(error) { failed++ })

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	_, err := a.CreateOffer(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.AddICECandidate(webrtc.ICECandidateInit{Candidate: "x"}), ErrClosed)

	a.fail(assert.AnError)
	assert.Zero(t, failed)
}

func TestFailureFiresOnce(t *testing.T) {
	a, _ := newPair(t, domain.ChannelAmbient)
	failed := 0
	a.OnFailure(func(error) { failed++ })
	a.fail(assert.AnError)
	a.fail(assert.AnError)
	assert.Equal(t, 1, failed)
}

func TestDefaultICEServers(t *testing.T) {
	cfg := DefaultWebRTCConfig(nil)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)

	cfg = DefaultWebRTCConfig([]string{"stun:example.org:3478"})
	assert.Equal(t, []string{"stun:example.org:3478"}, cfg.ICEServers[0].URLs)
}
