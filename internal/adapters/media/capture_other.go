//go:build !linux

package media

import (
	"context"

	"github.com/dkeye/Plaza/internal/core"
	"github.com/pion/webrtc/v4"
)

// Devices has no capture drivers on this platform.
type Devices struct{}

func NewDevices() (*Devices, error) { return &Devices{}, nil }

func (d *Devices) Populate(m *webrtc.MediaEngine) {
	_ = m.RegisterDefaultCodecs()
}

func (d *Devices) UserMedia(context.Context, bool, bool) (core.LocalStream, error) {
	return nil, core.ErrNoMedia
}

func (d *Devices) DisplayMedia(context.Context) (core.LocalStream, error) {
	return nil, core.ErrNoMedia
}
