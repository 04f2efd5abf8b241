// Package domain contains entities without transport, just meta-data
package domain

import (
	"errors"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxNameLen   = 36
	MaxAvatarLen = 36
)

var ErrEmptyID = errors.New("participant id empty")

type (
	ParticipantID string
	AvatarKind    string
)

// DefaultAvatar is used when a join carries no avatar kind.
const DefaultAvatar AvatarKind = "playerDown"

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance is the euclidean distance between two positions.
func Distance(a, b Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Participant is one connected user as seen by the relay and mirrored by clients.
type Participant struct {
	ID       ParticipantID `json:"-"`
	Position Position      `json:"position"`
	Name     string        `json:"name"`
	Avatar   AvatarKind    `json:"avatarKind"`
}

// NewParticipantID returns a relay-assigned id, unique for the process lifetime.
func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

// NewParticipant normalizes display meta so adapters don't build raw literals.
func NewParticipant(id ParticipantID, name string, avatar AvatarKind, at Position) (*Participant, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	return &Participant{
		ID:       id,
		Position: at,
		Name:     DisplayName(id, name),
		Avatar:   NormalizeAvatar(avatar),
	}, nil
}

// DisplayName falls back to "Player <id prefix>" and truncates long names.
func DisplayName(id ParticipantID, name string) string {
	if name == "" {
		prefix := string(id)
		if len(prefix) > 4 {
			prefix = prefix[:4]
		}
		return "Player " + prefix
	}
	return truncate(name, MaxNameLen)
}

// NormalizeAvatar defaults an empty kind and caps its length.
func NormalizeAvatar(a AvatarKind) AvatarKind {
	if a == "" {
		return DefaultAvatar
	}
	return AvatarKind(truncate(string(a), MaxAvatarLen))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
