//go:build linux

package media

import (
	"context"

	"github.com/dkeye/Plaza/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Devices is a core.MediaSource backed by the host's capture drivers.
type Devices struct {
	selector *mediadevices.CodecSelector
}

func NewDevices() (*Devices, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	d := &Devices{selector: mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)}
	for _, dev := range mediadevices.EnumerateDevices() {
		log.Debug().Str("module", "media").Str("label", dev.Label).Msgf("device kind=%v", dev.Kind)
	}
	return d, nil
}

// Populate registers the encoders' codecs on a media engine.
func (d *Devices) Populate(m *webrtc.MediaEngine) {
	d.selector.Populate(m)
}

func (d *Devices) UserMedia(ctx context.Context, video, audio bool) (core.LocalStream, error) {
	if !video && !audio {
		return nil, core.ErrNoMedia
	}
	c := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if video {
		c.Video = func(mc *mediadevices.MediaTrackConstraints) {
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: 640}
			mc.Height = prop.IntRanged{Max: 480}
		}
	}
	if audio {
		c.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}
	ms, err := mediadevices.GetUserMedia(c)
	if err != nil {
		return nil, err
	}
	return wrap(ctx, ms, "user")
}

func (d *Devices) DisplayMedia(ctx context.Context) (core.LocalStream, error) {
	ms, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Codec: d.selector,
		Video: func(*mediadevices.MediaTrackConstraints) {},
	})
	if err != nil {
		return nil, err
	}
	return wrap(ctx, ms, "display")
}

// wrap adopts captured tracks. Capture that outlived ctx is released.
func wrap(ctx context.Context, ms mediadevices.MediaStream, source string) (core.LocalStream, error) {
	tracks := ms.GetTracks()
	local := make([]webrtc.TrackLocal, 0, len(tracks))
	for _, t := range tracks {
		local = append(local, t)
	}
	s := newStream(local, func() {
		for _, t := range tracks {
			if err := t.Close(); err != nil {
				log.Debug().Err(err).Str("module", "media").Str("source", source).Msg("track close")
			}
		}
	})
	for _, t := range tracks {
		t.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "media").Str("source", source).Msg("capture ended")
			}
			s.end()
		})
	}
	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, err
	}
	log.Info().Str("module", "media").Str("source", source).Int("tracks", len(tracks)).Msg("capture started")
	return s, nil
}
