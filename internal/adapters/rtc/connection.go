package rtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Plaza/internal/core"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("transport closed")

const DefaultPLIInterval = 3 * time.Second

type Config struct {
	ICEServers  []string
	PLIInterval time.Duration
	// Populate registers codecs on the engine. Nil registers pion's defaults.
	Populate func(*webrtc.MediaEngine)
}

func DefaultWebRTCConfig(servers []string) webrtc.Configuration {
	if len(servers) == 0 {
		servers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: servers}},
	}
}

// Factory builds every link of one client from a single webrtc.API.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewFactory(cfg Config) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if cfg.Populate != nil {
		cfg.Populate(mediaEngine)
	} else if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, i); err != nil {
		return nil, err
	}
	every := cfg.PLIInterval
	if every <= 0 {
		every = DefaultPLIInterval
	}
	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(every))
	if err != nil {
		return nil, err
	}
	i.Add(pli)

	return &Factory{
		api: webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(i)),
		cfg: DefaultWebRTCConfig(cfg.ICEServers),
	}, nil
}

func (f *Factory) NewTransport(peer domain.ParticipantID, kind domain.ChannelKind) (core.Transport, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{pc: pc, peer: peer, kind: kind}
	c.start()
	return c, nil
}

// WebRTCConnection is one pion PeerConnection toward a single peer on a
// single channel.
type WebRTCConnection struct {
	pc   *webrtc.PeerConnection
	peer domain.ParticipantID
	kind domain.ChannelKind

	mu        sync.Mutex
	onICE     func(webrtc.ICECandidateInit)
	onTrack   func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onFailure func(error)
	failed    sync.Once
	closed    bool
}

func (c *WebRTCConnection) start() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "rtc").Str("peer", string(c.peer)).Stringer("kind", c.kind).
			Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", string(c.peer)).Stringer("kind", c.kind).
			Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed {
			c.fail(errors.New("peer connection failed"))
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("peer", string(c.peer)).
			Stringer("kind", c.kind).
			Str("track_kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(track, receiver)
		}
	})
}

func (c *WebRTCConnection) fail(err error) {
	c.mu.Lock()
	fn, closed := c.onFailure, c.closed
	c.mu.Unlock()
	if closed || fn == nil {
		return
	}
	c.failed.Do(func() { fn(err) })
}

func (c *WebRTCConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *WebRTCConnection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if c.isClosed() {
		return webrtc.SessionDescription{}, ErrClosed
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, ctx.Err()
}

func (c *WebRTCConnection) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if c.isClosed() {
		return webrtc.SessionDescription{}, ErrClosed
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, ctx.Err()
}

func (c *WebRTCConnection) ApplyRemoteDescription(sd webrtc.SessionDescription) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.pc.SetRemoteDescription(sd)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.pc.AddICECandidate(ci)
}

// AddLocalMedia attaches tracks. On the offering side of an ambient link
// every kind without a local track gets a receive-only transceiver, so the
// remote side can still send it.
func (c *WebRTCConnection) AddLocalMedia(tracks []webrtc.TrackLocal) error {
	if c.isClosed() {
		return ErrClosed
	}
	have := map[webrtc.RTPCodecType]bool{}
	for _, t := range tracks {
		sender, err := c.pc.AddTrack(t)
		if err != nil {
			return err
		}
		have[t.Kind()] = true
		go drainRTCP(sender)
	}

	if c.kind != domain.ChannelAmbient || c.pc.RemoteDescription() != nil {
		return nil
	}
	for _, k := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[k] {
			continue
		}
		if _, err := c.pc.AddTransceiverFromKind(k, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}
	return nil
}

// drainRTCP keeps interceptors fed; it ends when the sender stops.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *WebRTCConnection) OnCandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnFailure(fn func(error)) {
	c.mu.Lock()
	c.onFailure = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(c.peer)).Stringer("kind", c.kind).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("peer", string(c.peer)).Stringer("kind", c.kind).Msg("closed")
	}
	return err
}
