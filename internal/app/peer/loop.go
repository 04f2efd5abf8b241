// Package peer holds the client-side link state machines: one
// ConnectionRecord per (remote, channel kind), driven by proximity readings
// and inbound signaling, and never touched outside the client loop.
package peer

import (
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/dkeye/Plaza/internal/protocol"
)

// Loop is the client's single logical thread.
type Loop interface {
	// Go runs step off the loop and then its continuation, if any, on the loop.
	Go(step func() func())
	// Post schedules fn on the loop. Safe from any goroutine.
	Post(fn func())
}

// Signaler emits negotiation envelopes through the relay.
type Signaler interface {
	Signal(to domain.ParticipantID, p protocol.SignalPayload)
	// Screen broadcasts when to is empty.
	Screen(to domain.ParticipantID, p protocol.ScreenPayload)
}
