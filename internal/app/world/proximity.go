package world

import "github.com/dkeye/Plaza/internal/domain"

const DefaultThreshold = 150.0

// Reading is the evaluator's verdict for one remote in one tick.
type Reading struct {
	Peer     domain.ParticipantID
	Distance float64
	InRange  bool
}

// Evaluator measures the local participant against every mirrored remote.
// The comparison is strict and has no hysteresis band.
type Evaluator struct {
	Threshold float64
}

func NewEvaluator(threshold float64) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Evaluator{Threshold: threshold}
}

// Evaluate returns one reading per remote, ordered by id. It yields nothing
// until the mirror knows self.
func (e *Evaluator) Evaluate(m *Mirror, at domain.Position) []Reading {
	if m.Self() == "" {
		return nil
	}
	remotes := m.Remotes()
	out := make([]Reading, 0, len(remotes))
	for _, p := range remotes {
		d := domain.Distance(at, p.Position)
		out = append(out, Reading{Peer: p.ID, Distance: d, InRange: d < e.Threshold})
	}
	return out
}
