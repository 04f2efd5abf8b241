package peer

import (
	"context"
	"sync"

	"github.com/dkeye/Plaza/internal/core"
	"github.com/rs/zerolog/log"
)

// LocalMedia is the process-wide camera/microphone capture, shared by every
// ambient link. Acquisition may run from several steps at once.
type LocalMedia struct {
	source core.MediaSource

	mu     sync.Mutex
	stream core.LocalStream
}

func NewLocalMedia(source core.MediaSource) *LocalMedia {
	return &LocalMedia{source: source}
}

var captureLadder = []struct{ video, audio bool }{
	{video: true, audio: true},
	{video: false, audio: true},
}

// Acquire opens the shared stream on first use, stepping down from
// video+audio to audio only. Nil means no media. Failures are not cached,
// the next caller tries again.
func (m *LocalMedia) Acquire(ctx context.Context) core.LocalStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return m.stream
	}
	if m.source == nil {
		return nil
	}
	for _, want := range captureLadder {
		s, err := m.source.UserMedia(ctx, want.video, want.audio)
		if err == nil {
			log.Info().Str("module", "peer.media").Bool("video", want.video).Bool("audio", want.audio).Msg("capture opened")
			m.stream = s
			return s
		}
		log.Warn().Str("module", "peer.media").Bool("video", want.video).Bool("audio", want.audio).Err(err).Msg("capture failed")
	}
	return nil
}

// Release stops capture. Links keep what they already attached.
func (m *LocalMedia) Release() {
	m.mu.Lock()
	s := m.stream
	m.stream = nil
	m.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

