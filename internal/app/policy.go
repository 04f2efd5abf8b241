package app

import "github.com/dkeye/Plaza/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a recipient whose send queue is full.
type Policy interface {
	OnBackPressure(id domain.ParticipantID) BackpressureAction
}

// SimplePolicy disconnects slow consumers; their disconnect is then
// broadcast like any other.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ParticipantID) BackpressureAction {
	return KickMember
}

// TolerantPolicy only drops the frame.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(domain.ParticipantID) BackpressureAction {
	return NoAction
}
