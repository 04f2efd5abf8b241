// Package world keeps the client's view of the shared map: a mirror of the
// relay registry and the per-tick proximity readings derived from it.
package world

import (
	"sort"

	"github.com/dkeye/Plaza/internal/domain"
)

// Mirror is the client-side copy of the relay registry, including self.
// It is owned by the client event loop and not safe for concurrent use.
type Mirror struct {
	self    domain.ParticipantID
	players map[domain.ParticipantID]domain.Participant
}

func NewMirror() *Mirror {
	return &Mirror{players: make(map[domain.ParticipantID]domain.Participant)}
}

func (m *Mirror) SetSelf(id domain.ParticipantID) { m.self = id }

func (m *Mirror) Self() domain.ParticipantID { return m.self }

// Reset replaces the whole view with an init snapshot.
func (m *Mirror) Reset(players map[domain.ParticipantID]domain.Participant) {
	m.players = make(map[domain.ParticipantID]domain.Participant, len(players))
	for id, p := range players {
		p.ID = id
		m.players[id] = p
	}
}

func (m *Mirror) Add(p domain.Participant) {
	m.players[p.ID] = p
}

// Move updates a known participant; unknown ids are ignored.
func (m *Mirror) Move(id domain.ParticipantID, at domain.Position, avatar domain.AvatarKind) bool {
	p, ok := m.players[id]
	if !ok {
		return false
	}
	p.Position = at
	if avatar != "" {
		p.Avatar = avatar
	}
	m.players[id] = p
	return true
}

func (m *Mirror) Remove(id domain.ParticipantID) bool {
	if _, ok := m.players[id]; !ok {
		return false
	}
	delete(m.players, id)
	return true
}

func (m *Mirror) Get(id domain.ParticipantID) (domain.Participant, bool) {
	p, ok := m.players[id]
	return p, ok
}

// Remotes lists every known participant except self, ordered by id.
func (m *Mirror) Remotes() []domain.Participant {
	out := make([]domain.Participant, 0, len(m.players))
	for id, p := range m.players {
		if id == m.self {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Mirror) Len() int { return len(m.players) }
