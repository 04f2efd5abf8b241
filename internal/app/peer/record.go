package peer

import (
	"context"
	"sort"

	"github.com/dkeye/Plaza/internal/core"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type State int

const (
	Idle State = iota
	Offering
	Answering
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Offering:
		return "offering"
	case Answering:
		return "answering"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	}
	return "unknown"
}

// Record is one ConnectionRecord. It leaves the table the moment it starts
// closing, so a record found in the table is never terminal.
type Record struct {
	Peer      domain.ParticipantID
	Kind      domain.ChannelKind
	Role      domain.Role
	State     State
	Transport core.Transport

	ctx       context.Context
	cancel    context.CancelFunc
	localSet  bool
	remoteSet bool
	offerSeen bool
	pending   []webrtc.ICECandidateInit
	// outbound holds local candidates until the local description is sent.
	outbound []webrtc.ICECandidateInit
}

// RecordInfo is the read-only view handed to renderers.
type RecordInfo struct {
	Peer  domain.ParticipantID
	Kind  domain.ChannelKind
	Role  domain.Role
	State State
}

func (r *Record) Info() RecordInfo {
	return RecordInfo{Peer: r.Peer, Kind: r.Kind, Role: r.Role, State: r.State}
}

// Hooks are optional observers, always called on the loop.
type Hooks struct {
	OnStateChange func(RecordInfo)
	OnRemoteTrack func(peer domain.ParticipantID, kind domain.ChannelKind, track *webrtc.TrackRemote)
}

// table owns the records of one channel kind.
type table struct {
	kind        domain.ChannelKind
	module      string
	loop        Loop
	factory     core.TransportFactory
	hooks       Hooks
	onCandidate func(peer domain.ParticipantID, c webrtc.ICECandidateInit)
	recs        map[domain.ParticipantID]*Record
}

func newTable(kind domain.ChannelKind, module string, loop Loop, factory core.TransportFactory, hooks Hooks) *table {
	return &table{
		kind:    kind,
		module:  module,
		loop:    loop,
		factory: factory,
		hooks:   hooks,
		recs:    make(map[domain.ParticipantID]*Record),
	}
}

func (t *table) get(peer domain.ParticipantID) *Record {
	return t.recs[peer]
}

// live reports whether rec is still the table's record for its peer.
// Continuations of asynchronous steps check it before applying results.
func (t *table) live(rec *Record) bool {
	return t.recs[rec.Peer] == rec
}

func (t *table) open(peer domain.ParticipantID, role domain.Role, st State) (*Record, error) {
	tr, err := t.factory.NewTransport(peer, t.kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	rec := &Record{
		Peer:      peer,
		Kind:      t.kind,
		Role:      role,
		State:     st,
		Transport: tr,
		ctx:       ctx,
		cancel:    cancel,
	}
	t.recs[peer] = rec

	tr.OnCandidate(func(c webrtc.ICECandidateInit) {
		t.loop.Post(func() {
			if !t.live(rec) || t.onCandidate == nil {
				return
			}
			if !rec.localSet {
				rec.outbound = append(rec.outbound, c)
				return
			}
			t.onCandidate(peer, c)
		})
	})
	tr.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.loop.Post(func() {
			if t.live(rec) && t.hooks.OnRemoteTrack != nil {
				t.hooks.OnRemoteTrack(peer, t.kind, track)
			}
		})
	})
	tr.OnFailure(func(err error) {
		t.loop.Post(func() {
			if !t.live(rec) {
				return
			}
			log.Warn().Str("module", t.module).Str("peer", string(peer)).Err(err).Msg("transport failed")
			t.teardown(peer, "transport failure")
		})
	})

	log.Info().Str("module", t.module).Str("peer", string(peer)).
		Stringer("role", role).Stringer("state", st).Msg("record opened")
	t.notify(rec)
	return rec, nil
}

func (t *table) setState(rec *Record, st State) {
	rec.State = st
	log.Info().Str("module", t.module).Str("peer", string(rec.Peer)).Stringer("state", st).Msg("state change")
	t.notify(rec)
}

func (t *table) notify(rec *Record) {
	if t.hooks.OnStateChange != nil {
		t.hooks.OnStateChange(rec.Info())
	}
}

// teardown walks the record through Closing to Idle. Safe to call twice.
func (t *table) teardown(peer domain.ParticipantID, reason string) bool {
	rec, ok := t.recs[peer]
	if !ok {
		return false
	}
	delete(t.recs, peer)
	rec.State = Closing
	log.Info().Str("module", t.module).Str("peer", string(peer)).Str("reason", reason).Msg("closing record")
	t.notify(rec)

	rec.cancel()
	rec.pending = nil
	rec.outbound = nil
	tr := rec.Transport
	t.loop.Go(func() func() {
		if err := tr.Close(); err != nil {
			log.Debug().Str("module", t.module).Str("peer", string(peer)).Err(err).Msg("transport close")
		}
		return nil
	})

	rec.State = Idle
	t.notify(rec)
	return true
}

func (t *table) teardownAll(reason string, keep func(*Record) bool) {
	for _, peer := range t.peers() {
		if keep != nil && keep(t.recs[peer]) {
			continue
		}
		t.teardown(peer, reason)
	}
}

// addCandidate applies c, or holds it until the remote description is set.
func (t *table) addCandidate(rec *Record, c webrtc.ICECandidateInit) {
	if !rec.remoteSet {
		rec.pending = append(rec.pending, c)
		return
	}
	if err := rec.Transport.AddICECandidate(c); err != nil {
		log.Warn().Str("module", t.module).Str("peer", string(rec.Peer)).Err(err).Msg("add candidate")
	}
}

// localSent marks the local description as delivered to the peer and
// forwards the candidates gathered before it.
func (t *table) localSent(rec *Record) {
	rec.localSet = true
	held := rec.outbound
	rec.outbound = nil
	if t.onCandidate == nil {
		return
	}
	for _, c := range held {
		t.onCandidate(rec.Peer, c)
	}
}

func (t *table) remoteApplied(rec *Record) {
	rec.remoteSet = true
	pending := rec.pending
	rec.pending = nil
	for _, c := range pending {
		t.addCandidate(rec, c)
	}
}

func (t *table) peers() []domain.ParticipantID {
	out := make([]domain.ParticipantID, 0, len(t.recs))
	for id := range t.recs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *table) snapshot() []RecordInfo {
	out := make([]RecordInfo, 0, len(t.recs))
	for _, id := range t.peers() {
		out = append(out, t.recs[id].Info())
	}
	return out
}

// answer applies a remote offer and produces the local answer. It runs off
// the loop.
func answer(ctx context.Context, tr core.Transport, offer webrtc.SessionDescription, attach func() error) (webrtc.SessionDescription, error) {
	if err := tr.ApplyRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if attach != nil {
		if err := attach(); err != nil {
			return webrtc.SessionDescription{}, err
		}
	}
	return tr.CreateAnswer(ctx)
}
