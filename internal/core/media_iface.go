package core

import (
	"context"
	"errors"

	"github.com/dkeye/Plaza/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrNoMedia = errors.New("no media device available")

// Transport is the opaque real-time media/negotiation capability behind one
// ConnectionRecord. Methods may block on media or network work and are called
// off the client event loop; callbacks fire on library goroutines.
type Transport interface {
	// CreateOffer creates and applies the local offer.
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	// CreateAnswer creates and applies the local answer to the applied remote offer.
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	ApplyRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddLocalMedia attaches tracks; an empty set leaves the link receive-only.
	AddLocalMedia(tracks []webrtc.TrackLocal) error

	OnCandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	// OnFailure fires at most once, when the link fails after creation.
	OnFailure(func(error))

	// Close releases the link. Idempotent.
	Close() error
}

type TransportFactory interface {
	NewTransport(peer domain.ParticipantID, kind domain.ChannelKind) (Transport, error)
}

// LocalStream is a captured set of local tracks.
type LocalStream interface {
	Tracks() []webrtc.TrackLocal
	// OnEnded fires when capture stops on the device side.
	OnEnded(func())
	Close()
}

// MediaSource acquires local capture. Both calls may block on device access.
type MediaSource interface {
	UserMedia(ctx context.Context, video, audio bool) (LocalStream, error)
	DisplayMedia(ctx context.Context) (LocalStream, error)
}
