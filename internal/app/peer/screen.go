package peer

import (
	"context"

	"github.com/dkeye/Plaza/internal/core"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/dkeye/Plaza/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const screenModule = "peer.screen"

type Mode int

const (
	Inactive Mode = iota
	Sharing
	Watching
)

func (m Mode) String() string {
	switch m {
	case Inactive:
		return "inactive"
	case Sharing:
		return "sharing"
	case Watching:
		return "watching"
	}
	return "unknown"
}

// ScreenShare is the ScreenShareController. Sender links (local is the
// source) use the initiator role, receiver links the responder role. At most
// one link per peer exists, so a peer that shares to us while we share to it
// keeps only the first link.
type ScreenShare struct {
	signaler Signaler
	source   core.MediaSource
	peers    func() []domain.ParticipantID
	tbl      *table

	active   bool
	starting bool
	gen      uint64
	stream   core.LocalStream
	sharer   domain.ParticipantID
}

// NewScreenShare wires the controller; peers lists the participants a new
// share is offered to.
func NewScreenShare(loop Loop, factory core.TransportFactory, source core.MediaSource, signaler Signaler, hooks Hooks, peers func() []domain.ParticipantID) *ScreenShare {
	s := &ScreenShare{
		signaler: signaler,
		source:   source,
		peers:    peers,
		tbl:      newTable(domain.ChannelScreen, screenModule, loop, factory, hooks),
	}
	s.tbl.onCandidate = func(peer domain.ParticipantID, c webrtc.ICECandidateInit) {
		s.signaler.Screen(peer, protocol.ScreenPayload{Kind: protocol.ScreenICE, Candidate: &c})
	}
	return s
}

func (s *ScreenShare) Mode() Mode {
	switch {
	case s.active:
		return Sharing
	case s.sharer != "":
		return Watching
	}
	return Inactive
}

// Sharer is the remote the local client believes is sharing, if any.
func (s *ScreenShare) Sharer() domain.ParticipantID { return s.sharer }

func (s *ScreenShare) Snapshot() []RecordInfo { return s.tbl.snapshot() }

func (s *ScreenShare) Record(peer domain.ParticipantID) (RecordInfo, bool) {
	rec := s.tbl.get(peer)
	if rec == nil {
		return RecordInfo{}, false
	}
	return rec.Info(), true
}

// StartSharing captures the display, announces the share and opens a sender
// link to every peer known at that instant. Later arrivals are not added.
func (s *ScreenShare) StartSharing() {
	if s.active || s.starting {
		return
	}
	if s.source == nil {
		log.Warn().Str("module", screenModule).Msg("no display source")
		return
	}
	s.starting = true
	s.gen++
	gen := s.gen
	s.tbl.loop.Go(func() func() {
		stream, err := s.source.DisplayMedia(context.Background())
		return func() {
			if !s.starting || s.gen != gen {
				if stream != nil {
					stream.Close()
				}
				return
			}
			s.starting = false
			if err != nil {
				log.Warn().Str("module", screenModule).Err(err).Msg("display capture failed")
				return
			}
			s.active = true
			s.stream = stream
			stream.OnEnded(func() {
				s.tbl.loop.Post(func() {
					if s.stream == stream {
						s.StopSharing()
					}
				})
			})
			log.Info().Str("module", screenModule).Msg("sharing started")
			s.signaler.Screen("", protocol.ScreenPayload{Kind: protocol.ScreenStart})
			for _, peer := range s.peers() {
				s.openSender(peer, stream)
			}
		}
	})
}

// StopSharing closes every sender link, releases capture and announces the
// stop. A pending start is cancelled instead.
func (s *ScreenShare) StopSharing() {
	if s.starting {
		s.starting = false
		return
	}
	if !s.active {
		return
	}
	s.active = false
	s.tbl.teardownAll("sharing stopped", func(r *Record) bool { return r.Role != domain.RoleInitiator })
	stream := s.stream
	s.stream = nil
	s.tbl.loop.Go(func() func() {
		stream.Close()
		return nil
	})
	log.Info().Str("module", screenModule).Msg("sharing stopped")
	s.signaler.Screen("", protocol.ScreenPayload{Kind: protocol.ScreenStop})
}

// Handle routes one inbound screen envelope.
func (s *ScreenShare) Handle(from domain.ParticipantID, p protocol.ScreenPayload) {
	switch p.Kind {
	case protocol.ScreenStart:
		s.onStart(from)
	case protocol.ScreenStop:
		s.onStop(from)
	case protocol.ScreenOffer:
		if p.SDP == nil {
			return
		}
		s.onOffer(from, *p.SDP)
	case protocol.ScreenAnswer:
		if p.SDP == nil {
			return
		}
		s.onAnswer(from, *p.SDP)
	case protocol.ScreenICE:
		rec := s.tbl.get(from)
		if rec == nil || p.Candidate == nil {
			log.Debug().Str("module", screenModule).Str("peer", string(from)).Msg("stale candidate dropped")
			return
		}
		s.tbl.addCandidate(rec, *p.Candidate)
	default:
		log.Debug().Str("module", screenModule).Str("peer", string(from)).Str("kind", string(p.Kind)).Msg("unknown screen kind")
	}
}

// PeerOutOfRange clears the watching side when the believed sharer walks
// away. Sender links are not proximity gated.
func (s *ScreenShare) PeerOutOfRange(peer domain.ParticipantID) {
	if s.sharer != peer {
		return
	}
	s.sharer = ""
	s.closeReceiver(peer, "sharer out of range")
}

// ForgetPeer drops every trace of a departed participant.
func (s *ScreenShare) ForgetPeer(peer domain.ParticipantID) {
	if s.sharer == peer {
		s.sharer = ""
	}
	s.tbl.teardown(peer, "remote left")
}

func (s *ScreenShare) Close() {
	s.StopSharing()
	s.sharer = ""
	s.tbl.teardownAll("shutdown", nil)
}

func (s *ScreenShare) onStart(from domain.ParticipantID) {
	if s.sharer != "" && s.sharer != from {
		s.closeReceiver(s.sharer, "sharer replaced")
	}
	s.sharer = from
	log.Info().Str("module", screenModule).Str("peer", string(from)).Msg("watching")

	if rec := s.tbl.get(from); rec != nil {
		if rec.Role == domain.RoleInitiator {
			log.Warn().Str("module", screenModule).Str("peer", string(from)).Msg("peer shares while receiving our share, keeping sender link")
			return
		}
		s.tbl.teardown(from, "share restarted")
	}
	if _, err := s.tbl.open(from, domain.RoleResponder, Answering); err != nil {
		log.Error().Str("module", screenModule).Str("peer", string(from)).Err(err).Msg("create transport")
	}
}

func (s *ScreenShare) onStop(from domain.ParticipantID) {
	if s.sharer == from {
		s.sharer = ""
	}
	s.closeReceiver(from, "share stopped")
}

func (s *ScreenShare) closeReceiver(peer domain.ParticipantID, reason string) {
	if rec := s.tbl.get(peer); rec != nil && rec.Role == domain.RoleResponder {
		s.tbl.teardown(peer, reason)
	}
}

func (s *ScreenShare) onOffer(from domain.ParticipantID, offer webrtc.SessionDescription) {
	rec := s.tbl.get(from)
	switch {
	case rec != nil && rec.Role == domain.RoleInitiator:
		log.Debug().Str("module", screenModule).Str("peer", string(from)).Msg("offer dropped, sender link in use")
		return
	case rec != nil && rec.offerSeen:
		s.tbl.teardown(from, "share renegotiated")
		rec = nil
	}
	if rec == nil {
		if s.sharer == "" {
			s.sharer = from
		}
		var err error
		rec, err = s.tbl.open(from, domain.RoleResponder, Answering)
		if err != nil {
			log.Error().Str("module", screenModule).Str("peer", string(from)).Err(err).Msg("create transport")
			return
		}
	}

	rec.offerSeen = true
	ctx, tr := rec.ctx, rec.Transport
	s.tbl.loop.Go(func() func() {
		sdp, err := answer(ctx, tr, offer, nil)
		return func() {
			if !s.tbl.live(rec) || rec.State != Answering {
				log.Debug().Str("module", screenModule).Str("peer", string(from)).Msg("answer discarded")
				return
			}
			if err != nil {
				log.Warn().Str("module", screenModule).Str("peer", string(from)).Err(err).Msg("create answer")
				s.tbl.teardown(from, "answer failed")
				return
			}
			s.tbl.remoteApplied(rec)
			s.signaler.Screen(from, protocol.ScreenPayload{Kind: protocol.ScreenAnswer, SDP: &sdp})
			s.tbl.localSent(rec)
			s.tbl.setState(rec, Connected)
		}
	})
}

func (s *ScreenShare) onAnswer(from domain.ParticipantID, sdp webrtc.SessionDescription) {
	rec := s.tbl.get(from)
	if rec == nil || rec.Role != domain.RoleInitiator || rec.State != Offering || !rec.localSet {
		log.Debug().Str("module", screenModule).Str("peer", string(from)).Msg("unexpected answer dropped")
		return
	}
	if err := rec.Transport.ApplyRemoteDescription(sdp); err != nil {
		log.Warn().Str("module", screenModule).Str("peer", string(from)).Err(err).Msg("apply answer")
		s.tbl.teardown(from, "answer rejected")
		return
	}
	s.tbl.remoteApplied(rec)
	s.tbl.setState(rec, Connected)
}

func (s *ScreenShare) openSender(peer domain.ParticipantID, stream core.LocalStream) {
	if s.tbl.get(peer) != nil {
		log.Debug().Str("module", screenModule).Str("peer", string(peer)).Msg("screen link in use, not offering")
		return
	}
	rec, err := s.tbl.open(peer, domain.RoleInitiator, Offering)
	if err != nil {
		log.Error().Str("module", screenModule).Str("peer", string(peer)).Err(err).Msg("create transport")
		return
	}
	ctx, tr := rec.ctx, rec.Transport
	s.tbl.loop.Go(func() func() {
		var sdp webrtc.SessionDescription
		err := tr.AddLocalMedia(stream.Tracks())
		if err == nil {
			sdp, err = tr.CreateOffer(ctx)
		}
		return func() {
			if !s.tbl.live(rec) || rec.State != Offering {
				return
			}
			if err != nil {
				log.Warn().Str("module", screenModule).Str("peer", string(peer)).Err(err).Msg("create offer")
				s.tbl.teardown(peer, "offer failed")
				return
			}
			s.signaler.Screen(peer, protocol.ScreenPayload{Kind: protocol.ScreenOffer, SDP: &sdp})
			s.tbl.localSent(rec)
		}
	})
}
