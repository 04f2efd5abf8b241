// Package peertest provides in-memory stand-ins for the transport, capture
// and loop collaborators of package peer.
package peertest

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Plaza/internal/core"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/dkeye/Plaza/internal/protocol"
	"github.com/pion/webrtc/v4"
)

// QueueLoop runs nothing until the test asks, so interleavings are explicit.
type QueueLoop struct {
	mu    sync.Mutex
	steps []func() func()
	posts []func()
}

func (l *QueueLoop) Go(step func() func()) {
	l.mu.Lock()
	l.steps = append(l.steps, step)
	l.mu.Unlock()
}

func (l *QueueLoop) Post(fn func()) {
	l.mu.Lock()
	l.posts = append(l.posts, fn)
	l.mu.Unlock()
}

// TakeStep removes the oldest pending step without running it.
func (l *QueueLoop) TakeStep() (func() func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.steps) == 0 {
		return nil, false
	}
	s := l.steps[0]
	l.steps = l.steps[1:]
	return s, true
}

// Drain runs posts and steps, continuations included, until none are left.
func (l *QueueLoop) Drain() {
	for {
		l.mu.Lock()
		var post func()
		var step func() func()
		switch {
		case len(l.posts) > 0:
			post = l.posts[0]
			l.posts = l.posts[1:]
		case len(l.steps) > 0:
			step = l.steps[0]
			l.steps = l.steps[1:]
		}
		l.mu.Unlock()

		switch {
		case post != nil:
			post()
		case step != nil:
			if cont := step(); cont != nil {
				cont()
			}
		default:
			return
		}
	}
}

func (l *QueueLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.steps) + len(l.posts)
}

// Transport is a scripted core.Transport.
type Transport struct {
	Peer domain.ParticipantID
	Kind domain.ChannelKind

	mu          sync.Mutex
	remote      []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	tracks      []webrtc.TrackLocal
	mediaCalls  int
	closed      bool
	offerErr    error
	onCandidate func(webrtc.ICECandidateInit)
	onTrack     func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onFailure   func(error)
}

var _ core.Transport = (*Transport)(nil)

func (t *Transport) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.offerErr != nil {
		return webrtc.SessionDescription{}, t.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-to-" + string(t.Peer)}, nil
}

func (t *Transport) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.remote) == 0 || t.remote[len(t.remote)-1].Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-to-" + string(t.Peer)}, nil
}

func (t *Transport) ApplyRemoteDescription(d webrtc.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("closed")
	}
	t.remote = append(t.remote, d)
	return nil
}

func (t *Transport) AddICECandidate(c webrtc.ICECandidateInit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *Transport) AddLocalMedia(tracks []webrtc.TrackLocal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mediaCalls++
	t.tracks = append(t.tracks, tracks...)
	return nil
}

func (t *Transport) OnCandidate(f func(webrtc.ICECandidateInit)) { t.set(func() { t.onCandidate = f }) }

func (t *Transport) OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	t.set(func() { t.onTrack = f })
}

func (t *Transport) OnFailure(f func(error)) { t.set(func() { t.onFailure = f }) }

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Transport) set(f func()) {
	t.mu.Lock()
	f()
	t.mu.Unlock()
}

// FailOffers makes CreateOffer return err.
func (t *Transport) FailOffers(err error) { t.set(func() { t.offerErr = err }) }

// EmitCandidate plays a locally gathered candidate.
func (t *Transport) EmitCandidate(c webrtc.ICECandidateInit) {
	t.mu.Lock()
	f := t.onCandidate
	t.mu.Unlock()
	if f != nil {
		f(c)
	}
}

// Fail plays a link failure.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	f := t.onFailure
	t.mu.Unlock()
	if f != nil {
		f(err)
	}
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) Remote() []webrtc.SessionDescription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]webrtc.SessionDescription(nil), t.remote...)
}

func (t *Transport) Candidates() []webrtc.ICECandidateInit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), t.candidates...)
}

func (t *Transport) Tracks() []webrtc.TrackLocal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), t.tracks...)
}

func (t *Transport) MediaCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mediaCalls
}

// Factory hands out Transports and remembers them in creation order.
type Factory struct {
	mu      sync.Mutex
	created []*Transport
	Err     error
}

func (f *Factory) NewTransport(peer domain.ParticipantID, kind domain.ChannelKind) (core.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	t := &Transport{Peer: peer, Kind: kind}
	f.created = append(f.created, t)
	return t, nil
}

// Of lists the transports made for (peer, kind), oldest first.
func (f *Factory) Of(peer domain.ParticipantID, kind domain.ChannelKind) []*Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Transport
	for _, t := range f.created {
		if t.Peer == peer && t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Last is the newest transport for (peer, kind), or nil.
func (f *Factory) Last(peer domain.ParticipantID, kind domain.ChannelKind) *Transport {
	all := f.Of(peer, kind)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// Stream is a captured set of local tracks.
type Stream struct {
	Video, Audio bool

	mu      sync.Mutex
	tracks  []webrtc.TrackLocal
	closed  bool
	onEnded func()
}

func NewStream(video, audio bool) *Stream {
	s := &Stream{Video: video, Audio: audio}
	if video {
		s.tracks = append(s.tracks, mustTrack(webrtc.MimeTypeVP8, "video"))
	}
	if audio {
		s.tracks = append(s.tracks, mustTrack(webrtc.MimeTypeOpus, "audio"))
	}
	return s
}

func mustTrack(mime, id string) webrtc.TrackLocal {
	t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, "plaza")
	if err != nil {
		panic(err)
	}
	return t
}

func (s *Stream) Tracks() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks
}

func (s *Stream) OnEnded(f func()) {
	s.mu.Lock()
	s.onEnded = f
	s.mu.Unlock()
}

func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// End plays the device side stopping capture.
func (s *Stream) End() {
	s.mu.Lock()
	f := s.onEnded
	s.mu.Unlock()
	if f != nil {
		f()
	}
}

func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Media is a core.MediaSource with switchable devices.
type Media struct {
	mu         sync.Mutex
	NoCamera   bool
	NoMic      bool
	NoDisplay  bool
	userCalls  int
	lastUser   *Stream
	lastScreen *Stream
}

var ErrDenied = errors.New("device denied")

func (m *Media) UserMedia(_ context.Context, video, audio bool) (core.LocalStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userCalls++
	if (video && m.NoCamera) || (audio && m.NoMic) {
		return nil, ErrDenied
	}
	m.lastUser = NewStream(video, audio)
	return m.lastUser, nil
}

func (m *Media) DisplayMedia(context.Context) (core.LocalStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NoDisplay {
		return nil, ErrDenied
	}
	m.lastScreen = NewStream(true, false)
	return m.lastScreen, nil
}

func (m *Media) SetDevices(camera, mic bool) {
	m.mu.Lock()
	m.NoCamera, m.NoMic = !camera, !mic
	m.mu.Unlock()
}

func (m *Media) UserCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userCalls
}

func (m *Media) LastUser() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUser
}

func (m *Media) LastScreen() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastScreen
}

// Sent is one outbound envelope.
type Sent struct {
	To     domain.ParticipantID
	Signal *protocol.SignalPayload
	Screen *protocol.ScreenPayload
}

// Signaler records outbound envelopes.
type Signaler struct {
	mu   sync.Mutex
	sent []Sent
}

func (s *Signaler) Signal(to domain.ParticipantID, p protocol.SignalPayload) {
	s.mu.Lock()
	s.sent = append(s.sent, Sent{To: to, Signal: &p})
	s.mu.Unlock()
}

func (s *Signaler) Screen(to domain.ParticipantID, p protocol.ScreenPayload) {
	s.mu.Lock()
	s.sent = append(s.sent, Sent{To: to, Screen: &p})
	s.mu.Unlock()
}

// Take returns and forgets everything sent so far.
func (s *Signaler) Take() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sent
	s.sent = nil
	return out
}
