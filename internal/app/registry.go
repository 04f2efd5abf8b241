package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Plaza/internal/core"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Conn        core.SignalConnection
	Participant *domain.Participant // nil until join
}

// Registry is the SessionRegistry: every live connection, and the
// participant record of those that joined.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ParticipantID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ParticipantID]*sessionEntry),
	}
}

func (r *Registry) Bind(id domain.ParticipantID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{Conn: conn}
	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("bound connection")
}

// Unbind forgets id and returns its participant record if it had joined.
func (r *Registry) Unbind(id domain.ParticipantID) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return domain.Participant{}, false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("unbound connection")
	if e.Participant == nil {
		return domain.Participant{}, false
	}
	return *e.Participant, true
}

// Join stores p for an already bound connection.
func (r *Registry) Join(p *domain.Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[p.ID]
	if !ok {
		return false
	}
	e.Participant = p
	log.Info().Str("module", "app.registry").Str("id", string(p.ID)).Str("name", p.Name).Msg("joined")
	return true
}

func (r *Registry) Joined(id domain.ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return ok && e.Participant != nil
}

// Move updates the position and avatar of a joined participant. An empty
// avatar keeps the current one.
func (r *Registry) Move(id domain.ParticipantID, at domain.Position, avatar domain.AvatarKind) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.Participant == nil {
		return domain.Participant{}, false
	}
	e.Participant.Position = at
	if avatar != "" {
		e.Participant.Avatar = domain.NormalizeAvatar(avatar)
	}
	return *e.Participant, true
}

func (r *Registry) Conn(id domain.ParticipantID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

// Snapshot copies every joined participant.
func (r *Registry) Snapshot() map[domain.ParticipantID]domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.ParticipantID]domain.Participant, len(r.sessions))
	for id, e := range r.sessions {
		if e.Participant != nil {
			out[id] = *e.Participant
		}
	}
	return out
}

// Participants is Snapshot ordered by id, for APIs.
func (r *Registry) Participants() []domain.Participant {
	snap := r.Snapshot()
	out := make([]domain.Participant, 0, len(snap))
	for _, p := range snap {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type regSnap struct {
	ID   domain.ParticipantID
	Conn core.SignalConnection
}

// Others lists every live connection except skip, joined or not.
func (r *Registry) Others(skip domain.ParticipantID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for id, e := range r.sessions {
		if id == skip {
			continue
		}
		out = append(out, regSnap{ID: id, Conn: e.Conn})
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
