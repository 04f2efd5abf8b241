// Package media captures local camera, microphone and display through
// pion/mediadevices. Capture is only wired on linux; other platforms get a
// source that reports core.ErrNoMedia so links fall back to receive-only.
package media

import (
	"context"
	"sync"

	"github.com/dkeye/Plaza/internal/core"
	"github.com/pion/webrtc/v4"
)

// stream adapts a set of capture tracks to core.LocalStream.
type stream struct {
	tracks []webrtc.TrackLocal
	closer func()

	mu      sync.Mutex
	ended   bool
	onEnded func()
	once    sync.Once
}

func newStream(tracks []webrtc.TrackLocal, closer func()) *stream {
	return &stream{tracks: tracks, closer: closer}
}

func (s *stream) Tracks() []webrtc.TrackLocal { return s.tracks }

func (s *stream) OnEnded(fn func()) {
	s.mu.Lock()
	ended := s.ended
	s.onEnded = fn
	s.mu.Unlock()
	if ended && fn != nil {
		fn()
	}
}

// end marks device-side termination and notifies once.
func (s *stream) end() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	fn := s.onEnded
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *stream) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.ended = true
		s.onEnded = nil
		s.mu.Unlock()
		if s.closer != nil {
			s.closer()
		}
	})
}

// Disabled never captures; links run receive-only.
type Disabled struct{}

func (Disabled) UserMedia(context.Context, bool, bool) (core.LocalStream, error) {
	return nil, core.ErrNoMedia
}

func (Disabled) DisplayMedia(context.Context) (core.LocalStream, error) {
	return nil, core.ErrNoMedia
}
