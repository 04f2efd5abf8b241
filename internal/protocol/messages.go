// Package protocol is the relay wire format: a closed set of message kinds,
// each with a fixed schema, framed as {"type": kind, "data": {...}}.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/Plaza/internal/domain"
	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	TypeWelcome            MessageType = "welcome"
	TypeJoin               MessageType = "join"
	TypeInit               MessageType = "init"
	TypeNewPlayer          MessageType = "newPlayer"
	TypePlayerMove         MessageType = "playerMove"
	TypePlayerDisconnected MessageType = "playerDisconnected"
	TypeSignal             MessageType = "signal"
	TypeScreenSignal       MessageType = "screen-signal"
	TypePing               MessageType = "ping"
	TypePong               MessageType = "pong"
	TypeError              MessageType = "error"
)

// Message is implemented by every kind in this package and nothing else.
type Message interface {
	Type() MessageType
	sealed()
}

// Player is the registry entry as it travels on the wire.
type Player struct {
	X          float64           `json:"x"`
	Y          float64           `json:"y"`
	AvatarKind domain.AvatarKind `json:"avatarKind"`
	Name       string            `json:"name"`
}

func PlayerOf(p domain.Participant) Player {
	return Player{X: p.Position.X, Y: p.Position.Y, AvatarKind: p.Avatar, Name: p.Name}
}

func (p Player) Participant(id domain.ParticipantID) domain.Participant {
	return domain.Participant{
		ID:       id,
		Position: domain.Position{X: p.X, Y: p.Y},
		Name:     p.Name,
		Avatar:   p.AvatarKind,
	}
}

// Welcome tells a fresh connection its relay-assigned id.
type Welcome struct {
	ID domain.ParticipantID `json:"id"`
}

type Join struct {
	Name       string            `json:"name"`
	AvatarKind domain.AvatarKind `json:"avatarKind"`
}

// Init is the full registry snapshot, sent to the joining client only.
type Init struct {
	Players map[domain.ParticipantID]Player `json:"players"`
}

type NewPlayer struct {
	ID     domain.ParticipantID `json:"id"`
	Player Player               `json:"player"`
}

// PlayerMove is sent without ID by the mover and relayed with ID set.
type PlayerMove struct {
	ID         domain.ParticipantID `json:"id,omitempty"`
	X          float64              `json:"x"`
	Y          float64              `json:"y"`
	AvatarKind domain.AvatarKind    `json:"avatarKind"`
}

type PlayerDisconnected struct {
	ID domain.ParticipantID `json:"id"`
}

// Signal is an addressed ambient negotiation envelope. The relay sets From
// and never looks inside Signal.
type Signal struct {
	To     domain.ParticipantID `json:"to,omitempty"`
	From   domain.ParticipantID `json:"from,omitempty"`
	Signal json.RawMessage      `json:"signal"`
}

// ScreenSignal is addressed when To is set and broadcast otherwise.
type ScreenSignal struct {
	To     domain.ParticipantID `json:"to,omitempty"`
	From   domain.ParticipantID `json:"from,omitempty"`
	Signal json.RawMessage      `json:"signal"`
}

type Ping struct{}

type Pong struct{}

type Error struct {
	Error string `json:"error"`
}

func (Welcome) Type() MessageType            { return TypeWelcome }
func (Join) Type() MessageType               { return TypeJoin }
func (Init) Type() MessageType               { return TypeInit }
func (NewPlayer) Type() MessageType          { return TypeNewPlayer }
func (PlayerMove) Type() MessageType         { return TypePlayerMove }
func (PlayerDisconnected) Type() MessageType { return TypePlayerDisconnected }
func (Signal) Type() MessageType             { return TypeSignal }
func (ScreenSignal) Type() MessageType       { return TypeScreenSignal }
func (Ping) Type() MessageType               { return TypePing }
func (Pong) Type() MessageType               { return TypePong }
func (Error) Type() MessageType              { return TypeError }

func (Welcome) sealed()            {}
func (Join) sealed()               {}
func (Init) sealed()               {}
func (NewPlayer) sealed()          {}
func (PlayerMove) sealed()         {}
func (PlayerDisconnected) sealed() {}
func (Signal) sealed()             {}
func (ScreenSignal) sealed()       {}
func (Ping) sealed()               {}
func (Pong) sealed()               {}
func (Error) sealed()              {}

// SignalPayload is the inner body of an ambient Signal.
type SignalPayload struct {
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

type ScreenKind string

const (
	ScreenStart  ScreenKind = "start"
	ScreenStop   ScreenKind = "stop"
	ScreenOffer  ScreenKind = "offer"
	ScreenAnswer ScreenKind = "answer"
	ScreenICE    ScreenKind = "ice"
)

// ScreenPayload is the inner body of a ScreenSignal.
type ScreenPayload struct {
	Kind      ScreenKind                 `json:"kind"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}
