package core

import "errors"

// ErrBackpressure is returned by TrySend when the outbound queue is full.
var ErrBackpressure = errors.New("backpressure")

// Frame is one encoded relay message.
type Frame []byte

// SignalConnection abstracts the relay's per-participant messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues without blocking; order of accepted frames is kept.
	TrySend(Frame) error
	Close()
}
