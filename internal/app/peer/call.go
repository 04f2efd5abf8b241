package peer

import (
	"context"

	"github.com/dkeye/Plaza/internal/app/world"
	"github.com/dkeye/Plaza/internal/core"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/dkeye/Plaza/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const callModule = "peer.call"

// Calls is the CallLifecycleController: the proximity-gated ambient links.
type Calls struct {
	self     domain.ParticipantID
	signaler Signaler
	media    *LocalMedia
	tbl      *table
}

func NewCalls(loop Loop, factory core.TransportFactory, media *LocalMedia, signaler Signaler, hooks Hooks) *Calls {
	c := &Calls{
		signaler: signaler,
		media:    media,
		tbl:      newTable(domain.ChannelAmbient, callModule, loop, factory, hooks),
	}
	c.tbl.onCandidate = func(peer domain.ParticipantID, cand webrtc.ICECandidateInit) {
		c.signaler.Signal(peer, protocol.SignalPayload{Candidate: &cand})
	}
	return c
}

func (c *Calls) SetSelf(id domain.ParticipantID) { c.self = id }

// Evaluate applies one tick of proximity readings. In range, the greater id
// opens the link; out of range, either side tears it down.
func (c *Calls) Evaluate(readings []world.Reading) {
	for _, r := range readings {
		rec := c.tbl.get(r.Peer)
		if !r.InRange {
			if rec != nil {
				c.tbl.teardown(r.Peer, "out of range")
			}
			continue
		}
		if rec == nil && c.self != "" && domain.Initiates(c.self, r.Peer) {
			c.offer(r.Peer)
		}
	}
}

// HandleSignal routes one inbound ambient envelope.
func (c *Calls) HandleSignal(from domain.ParticipantID, p protocol.SignalPayload) {
	switch {
	case p.SDP != nil && p.SDP.Type == webrtc.SDPTypeOffer:
		c.onOffer(from, *p.SDP)
	case p.SDP != nil && p.SDP.Type == webrtc.SDPTypeAnswer:
		c.onAnswer(from, *p.SDP)
	case p.Candidate != nil:
		rec := c.tbl.get(from)
		if rec == nil {
			log.Debug().Str("module", callModule).Str("peer", string(from)).Msg("stale candidate dropped")
			return
		}
		c.tbl.addCandidate(rec, *p.Candidate)
	default:
		log.Debug().Str("module", callModule).Str("peer", string(from)).Msg("empty signal dropped")
	}
}

// Abort drops the link to a departed participant, whatever its state.
func (c *Calls) Abort(peer domain.ParticipantID) {
	c.tbl.teardown(peer, "remote left")
}

// Close tears every link down and releases local capture.
func (c *Calls) Close() {
	c.tbl.teardownAll("shutdown", nil)
	c.media.Release()
}

func (c *Calls) Record(peer domain.ParticipantID) (RecordInfo, bool) {
	rec := c.tbl.get(peer)
	if rec == nil {
		return RecordInfo{}, false
	}
	return rec.Info(), true
}

func (c *Calls) Snapshot() []RecordInfo { return c.tbl.snapshot() }

func (c *Calls) offer(peer domain.ParticipantID) {
	rec, err := c.tbl.open(peer, domain.RoleFor(c.self, peer), Offering)
	if err != nil {
		log.Error().Str("module", callModule).Str("peer", string(peer)).Err(err).Msg("create transport")
		return
	}
	ctx, tr := rec.ctx, rec.Transport
	c.tbl.loop.Go(func() func() {
		var sdp webrtc.SessionDescription
		err := c.attachMedia(ctx, tr)
		if err == nil {
			sdp, err = tr.CreateOffer(ctx)
		}
		return func() {
			if !c.tbl.live(rec) || rec.State != Offering {
				log.Debug().Str("module", callModule).Str("peer", string(peer)).Msg("offer discarded")
				return
			}
			if err != nil {
				log.Warn().Str("module", callModule).Str("peer", string(peer)).Err(err).Msg("create offer")
				c.tbl.teardown(peer, "offer failed")
				return
			}
			c.signaler.Signal(peer, protocol.SignalPayload{SDP: &sdp})
			c.tbl.localSent(rec)
		}
	})
}

func (c *Calls) onOffer(from domain.ParticipantID, offer webrtc.SessionDescription) {
	if rec := c.tbl.get(from); rec != nil {
		if rec.Role == domain.RoleInitiator {
			log.Debug().Str("module", callModule).Str("peer", string(from)).Msg("offer dropped, local side initiates")
			return
		}
		c.tbl.teardown(from, "remote renegotiated")
	}

	rec, err := c.tbl.open(from, domain.RoleResponder, Answering)
	if err != nil {
		log.Error().Str("module", callModule).Str("peer", string(from)).Err(err).Msg("create transport")
		return
	}
	rec.offerSeen = true
	ctx, tr := rec.ctx, rec.Transport
	c.tbl.loop.Go(func() func() {
		sdp, err := answer(ctx, tr, offer, func() error { return c.attachMedia(ctx, tr) })
		return func() {
			if !c.tbl.live(rec) || rec.State != Answering {
				log.Debug().Str("module", callModule).Str("peer", string(from)).Msg("answer discarded")
				return
			}
			if err != nil {
				log.Warn().Str("module", callModule).Str("peer", string(from)).Err(err).Msg("create answer")
				c.tbl.teardown(from, "answer failed")
				return
			}
			c.tbl.remoteApplied(rec)
			c.signaler.Signal(from, protocol.SignalPayload{SDP: &sdp})
			c.tbl.localSent(rec)
			c.tbl.setState(rec, Connected)
		}
	})
}

func (c *Calls) onAnswer(from domain.ParticipantID, sdp webrtc.SessionDescription) {
	rec := c.tbl.get(from)
	if rec == nil || rec.Role != domain.RoleInitiator || rec.State != Offering || !rec.localSet {
		log.Debug().Str("module", callModule).Str("peer", string(from)).Msg("unexpected answer dropped")
		return
	}
	if err := rec.Transport.ApplyRemoteDescription(sdp); err != nil {
		log.Warn().Str("module", callModule).Str("peer", string(from)).Err(err).Msg("apply answer")
		c.tbl.teardown(from, "answer rejected")
		return
	}
	c.tbl.remoteApplied(rec)
	c.tbl.setState(rec, Connected)
}

// attachMedia adds the shared capture, degrading to receive-only.
func (c *Calls) attachMedia(ctx context.Context, tr core.Transport) error {
	var tracks []webrtc.TrackLocal
	if s := c.media.Acquire(ctx); s != nil {
		tracks = s.Tracks()
	}
	if err := tr.AddLocalMedia(tracks); err != nil {
		if len(tracks) == 0 {
			return err
		}
		log.Warn().Str("module", callModule).Err(err).Msg("attach capture, continuing receive-only")
		return tr.AddLocalMedia(nil)
	}
	return nil
}
