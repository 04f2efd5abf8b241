package orch

import (
	"encoding/json"

	"github.com/dkeye/Plaza/internal/app/peer"
	"github.com/dkeye/Plaza/internal/app/world"
	"github.com/dkeye/Plaza/internal/core"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/dkeye/Plaza/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Outbox carries client messages to the relay.
type Outbox interface {
	Send(msg protocol.Message) error
}

type Options struct {
	Name      string
	Avatar    domain.AvatarKind
	Threshold float64
	Factory   core.TransportFactory
	Media     core.MediaSource
	Hooks     peer.Hooks
}

// Session is one participant's client core: it keeps the mirror current,
// runs proximity every tick and routes signaling to the two controllers.
// All methods must run on the loop.
type Session struct {
	Mirror *world.Mirror
	Eval   *world.Evaluator
	Calls  *peer.Calls
	Share  *peer.ScreenShare

	out    Outbox
	name   string
	avatar domain.AvatarKind
	pos    domain.Position
	joined bool
}

func NewSession(loop peer.Loop, out Outbox, opts Options) *Session {
	s := &Session{
		Mirror: world.NewMirror(),
		Eval:   world.NewEvaluator(opts.Threshold),
		out:    out,
		name:   opts.Name,
		avatar: opts.Avatar,
	}
	s.Calls = peer.NewCalls(loop, opts.Factory, peer.NewLocalMedia(opts.Media), s, opts.Hooks)
	s.Share = peer.NewScreenShare(loop, opts.Factory, opts.Media, s, opts.Hooks, s.knownPeers)
	return s
}

func (s *Session) Self() domain.ParticipantID { return s.Mirror.Self() }

func (s *Session) Joined() bool { return s.joined }

func (s *Session) Position() domain.Position { return s.pos }

// Handle applies one relay message.
func (s *Session) Handle(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Welcome:
		s.Mirror.SetSelf(m.ID)
		s.Calls.SetSelf(m.ID)
		log.Info().Str("module", "orch").Str("id", string(m.ID)).Msg("welcomed, joining")
		s.send(protocol.Join{Name: s.name, AvatarKind: s.avatar})
	case protocol.Init:
		players := make(map[domain.ParticipantID]domain.Participant, len(m.Players))
		for id, p := range m.Players {
			players[id] = p.Participant(id)
		}
		s.Mirror.Reset(players)
		if me, ok := players[s.Self()]; ok {
			s.pos = me.Position
			s.avatar = me.Avatar
		}
		s.joined = true
		log.Info().Str("module", "orch").Int("players", len(players)).Msg("snapshot received")
	case protocol.NewPlayer:
		s.Mirror.Add(m.Player.Participant(m.ID))
	case protocol.PlayerMove:
		s.Mirror.Move(m.ID, domain.Position{X: m.X, Y: m.Y}, m.AvatarKind)
	case protocol.PlayerDisconnected:
		s.Mirror.Remove(m.ID)
		s.Calls.Abort(m.ID)
		s.Share.ForgetPeer(m.ID)
	case protocol.Signal:
		var p protocol.SignalPayload
		if err := json.Unmarshal(m.Signal, &p); err != nil {
			log.Debug().Str("module", "orch").Str("peer", string(m.From)).Err(err).Msg("bad signal payload")
			return
		}
		s.Calls.HandleSignal(m.From, p)
	case protocol.ScreenSignal:
		var p protocol.ScreenPayload
		if err := json.Unmarshal(m.Signal, &p); err != nil {
			log.Debug().Str("module", "orch").Str("peer", string(m.From)).Err(err).Msg("bad screen payload")
			return
		}
		s.Share.Handle(m.From, p)
	case protocol.Ping:
		s.send(protocol.Pong{})
	case protocol.Pong:
	case protocol.Error:
		log.Warn().Str("module", "orch").Str("error", m.Error).Msg("relay error")
	default:
		log.Debug().Str("module", "orch").Str("type", string(msg.Type())).Msg("unexpected message")
	}
}

// Tick runs one proximity evaluation against the current position.
func (s *Session) Tick() {
	readings := s.Eval.Evaluate(s.Mirror, s.pos)
	s.Calls.Evaluate(readings)
	for _, r := range readings {
		if !r.InRange {
			s.Share.PeerOutOfRange(r.Peer)
		}
	}
}

// Move sets the local position and reports it to the relay.
func (s *Session) Move(to domain.Position, avatar domain.AvatarKind) {
	s.pos = to
	if avatar != "" {
		s.avatar = avatar
	}
	s.Mirror.Move(s.Self(), to, s.avatar)
	if !s.joined {
		return
	}
	s.send(protocol.PlayerMove{X: to.X, Y: to.Y, AvatarKind: s.avatar})
}

func (s *Session) StartSharing() { s.Share.StartSharing() }

func (s *Session) StopSharing() { s.Share.StopSharing() }

// Close tears every link down.
func (s *Session) Close() {
	s.Share.Close()
	s.Calls.Close()
}

// Signal implements peer.Signaler.
func (s *Session) Signal(to domain.ParticipantID, p protocol.SignalPayload) {
	raw, err := json.Marshal(p)
	if err != nil {
		log.Error().Str("module", "orch").Err(err).Msg("encode signal")
		return
	}
	s.send(protocol.Signal{To: to, Signal: raw})
}

// Screen implements peer.Signaler.
func (s *Session) Screen(to domain.ParticipantID, p protocol.ScreenPayload) {
	raw, err := json.Marshal(p)
	if err != nil {
		log.Error().Str("module", "orch").Err(err).Msg("encode screen signal")
		return
	}
	s.send(protocol.ScreenSignal{To: to, Signal: raw})
}

func (s *Session) knownPeers() []domain.ParticipantID {
	remotes := s.Mirror.Remotes()
	out := make([]domain.ParticipantID, 0, len(remotes))
	for _, p := range remotes {
		out = append(out, p.ID)
	}
	return out
}

func (s *Session) send(msg protocol.Message) {
	if err := s.out.Send(msg); err != nil {
		log.Warn().Str("module", "orch").Str("type", string(msg.Type())).Err(err).Msg("send to relay")
	}
}
