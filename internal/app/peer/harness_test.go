package peer

import (
	"testing"

	"github.com/dkeye/Plaza/internal/app/peer/peertest"
	"github.com/dkeye/Plaza/internal/app/world"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/pion/webrtc/v4"
)

type side struct {
	id      domain.ParticipantID
	loop    *peertest.QueueLoop
	factory *peertest.Factory
	sig     *peertest.Signaler
	media   *peertest.Media
	calls   *Calls
	screen  *ScreenShare
	known   []domain.ParticipantID
	states  []RecordInfo
	log     []peertest.Sent
}

func newSide(id domain.ParticipantID, known ...domain.ParticipantID) *side {
	s := &side{
		id:      id,
		loop:    &peertest.QueueLoop{},
		factory: &peertest.Factory{},
		sig:     &peertest.Signaler{},
		media:   &peertest.Media{},
		known:   known,
	}
	hooks := Hooks{OnStateChange: func(info RecordInfo) { s.states = append(s.states, info) }}
	s.calls = NewCalls(s.loop, s.factory, NewLocalMedia(s.media), s.sig, hooks)
	s.calls.SetSelf(id)
	s.screen = NewScreenShare(s.loop, s.factory, s.media, s.sig, hooks, func() []domain.ParticipantID { return s.known })
	return s
}

// pump runs every side's loop and delivers envelopes until all are quiet.
func pump(t *testing.T, sides ...*side) {
	t.Helper()
	byID := make(map[domain.ParticipantID]*side, len(sides))
	for _, s := range sides {
		byID[s.id] = s
	}
	for i := 0; i < 50; i++ {
		busy := false
		for _, s := range sides {
			if s.loop.Pending() > 0 {
				busy = true
			}
			s.loop.Drain()
		}
		for _, from := range sides {
			for _, env := range from.sig.Take() {
				busy = true
				from.log = append(from.log, env)
				for _, to := range sides {
					if to == from || (env.To != "" && env.To != to.id) {
						continue
					}
					if env.Signal != nil {
						to.calls.HandleSignal(from.id, *env.Signal)
					}
					if env.Screen != nil {
						to.screen.Handle(from.id, *env.Screen)
					}
				}
			}
		}
		if !busy {
			return
		}
	}
	t.Fatal("sides never settled")
}

func reading(peer domain.ParticipantID, d float64) []world.Reading {
	return []world.Reading{{Peer: peer, Distance: d, InRange: d < world.DefaultThreshold}}
}

// offers counts ambient offers s sent, per recipient.
func (s *side) offers() map[domain.ParticipantID]int {
	out := map[domain.ParticipantID]int{}
	for _, env := range s.log {
		if env.Signal != nil && env.Signal.SDP != nil && env.Signal.SDP.Type == webrtc.SDPTypeOffer {
			out[env.To]++
		}
	}
	return out
}

func (s *side) callState(peer domain.ParticipantID) (State, bool) {
	info, ok := s.calls.Record(peer)
	return info.State, ok
}
