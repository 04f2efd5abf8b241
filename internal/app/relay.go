package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Plaza/internal/core"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/dkeye/Plaza/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected    = errors.New("connection not registered")
	ErrNotJoined       = errors.New("participant has not joined")
	ErrRecipientAbsent = errors.New("recipient not connected")
	ErrUnexpected      = errors.New("unexpected message")
)

// Relay forwards presence and signaling between connections. Every
// registry mutation and the broadcast it triggers happen under one lock, so
// no recipient can observe broadcasts out of mutation order.
type Relay struct {
	Registry *Registry
	Policy   Policy
	Spawn    domain.Position

	mu sync.Mutex
}

func NewRelay(reg *Registry, policy Policy, spawn domain.Position) *Relay {
	return &Relay{Registry: reg, Policy: policy, Spawn: spawn}
}

// Handle dispatches one decoded client message.
func (r *Relay) Handle(id domain.ParticipantID, msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.Join:
		return r.Join(id, m)
	case protocol.PlayerMove:
		return r.Move(id, m)
	case protocol.Signal:
		return r.Signal(id, m)
	case protocol.ScreenSignal:
		return r.ScreenSignal(id, m)
	case protocol.Ping:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.forward(id, protocol.MustEncode(protocol.Pong{}))
	case protocol.Pong:
		return nil
	}
	return fmt.Errorf("%w: %s from client", ErrUnexpected, msg.Type())
}

// Connect registers conn under id and greets it with its id.
func (r *Relay) Connect(id domain.ParticipantID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Registry.Bind(id, conn)
	r.deliver(id, conn, protocol.MustEncode(protocol.Welcome{ID: id}))
}

// Join inserts the caller at the spawn point, replies with the full
// snapshot and announces the caller to everyone else. A repeated join only
// re-sends the snapshot.
func (r *Relay) Join(id domain.ParticipantID, msg protocol.Join) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.Registry.Conn(id)
	if !ok {
		return ErrNotConnected
	}
	if !r.Registry.Joined(id) {
		p, err := domain.NewParticipant(id, msg.Name, msg.AvatarKind, r.Spawn)
		if err != nil {
			return err
		}
		r.Registry.Join(p)
		r.broadcast(id, protocol.MustEncode(protocol.NewPlayer{ID: id, Player: protocol.PlayerOf(*p)}))
	}

	snap := r.Registry.Snapshot()
	players := make(map[domain.ParticipantID]protocol.Player, len(snap))
	for pid, p := range snap {
		players[pid] = protocol.PlayerOf(p)
	}
	r.deliver(id, conn, protocol.MustEncode(protocol.Init{Players: players}))
	return nil
}

// Move records the caller's new position and relays it to everyone else.
func (r *Relay) Move(id domain.ParticipantID, msg protocol.PlayerMove) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.Registry.Move(id, domain.Position{X: msg.X, Y: msg.Y}, msg.AvatarKind)
	if !ok {
		return ErrNotJoined
	}
	r.broadcast(id, protocol.MustEncode(protocol.PlayerMove{
		ID:         id,
		X:          p.Position.X,
		Y:          p.Position.Y,
		AvatarKind: p.Avatar,
	}))
	return nil
}

// Signal forwards an ambient envelope to its recipient.
func (r *Relay) Signal(from domain.ParticipantID, msg protocol.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forward(msg.To, protocol.MustEncode(protocol.Signal{From: from, Signal: msg.Signal}))
}

// ScreenSignal forwards to To when set and broadcasts otherwise.
func (r *Relay) ScreenSignal(from domain.ParticipantID, msg protocol.ScreenSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame := protocol.MustEncode(protocol.ScreenSignal{From: from, Signal: msg.Signal})
	if msg.To == "" {
		r.broadcast(from, frame)
		return nil
	}
	return r.forward(msg.To, frame)
}

// Disconnect drops id. Everyone else hears about it only if id had joined.
func (r *Relay) Disconnect(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, joined := r.Registry.Unbind(id); !joined {
		return
	}
	r.broadcast(id, protocol.MustEncode(protocol.PlayerDisconnected{ID: id}))
}

func (r *Relay) forward(to domain.ParticipantID, frame []byte) error {
	conn, ok := r.Registry.Conn(to)
	if !ok {
		return ErrRecipientAbsent
	}
	r.deliver(to, conn, frame)
	return nil
}

func (r *Relay) broadcast(skip domain.ParticipantID, frame []byte) {
	for _, snap := range r.Registry.Others(skip) {
		r.deliver(snap.ID, snap.Conn, frame)
	}
}

func (r *Relay) deliver(to domain.ParticipantID, conn core.SignalConnection, frame []byte) {
	err := conn.TrySend(frame)
	if err == nil {
		return
	}
	if !errors.Is(err, core.ErrBackpressure) || r.Policy == nil {
		log.Debug().Str("module", "app.relay").Str("id", string(to)).Err(err).Msg("send failed")
		return
	}
	switch r.Policy.OnBackPressure(to) {
	case KickMember:
		log.Warn().Str("module", "app.relay").Str("id", string(to)).Msg("slow consumer kicked")
		// The adapter's read pump exits on close and reports the disconnect.
		conn.Close()
	case NoAction:
	}
}
