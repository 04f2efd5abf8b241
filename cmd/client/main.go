// Command client is a headless participant: it joins the relay, wanders the
// map and keeps proximity calls with whoever it meets.
package main

import (
	"context"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Plaza/internal/adapters/media"
	"github.com/dkeye/Plaza/internal/adapters/rtc"
	sig "github.com/dkeye/Plaza/internal/adapters/signal"
	"github.com/dkeye/Plaza/internal/app/orch"
	"github.com/dkeye/Plaza/internal/app/peer"
	"github.com/dkeye/Plaza/internal/config"
	"github.com/dkeye/Plaza/internal/core"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/dkeye/Plaza/internal/protocol"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.ApplyLogLevel(cfg.LogLevel)
	cfg.WatchLogLevel()

	var source core.MediaSource = media.Disabled{}
	rtcCfg := rtc.Config{ICEServers: cfg.ICEServers}
	if cfg.Media != "none" {
		devices, err := media.NewDevices()
		if err != nil {
			log.Warn().Err(err).Msg("capture unavailable, running receive-only")
		} else {
			source = devices
			rtcCfg.Populate = devices.Populate
		}
	}
	factory, err := rtc.NewFactory(rtcCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api")
	}

	conn, err := sig.Dial(ctx, cfg.ServerURL, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.ServerURL).Msg("dial relay")
	}
	defer conn.Close()

	loop := orch.NewEventLoop()
	s := orch.NewSession(loop, conn, orch.Options{
		Name:      cfg.Name,
		Avatar:    domain.AvatarKind(cfg.Avatar),
		Threshold: cfg.ProximityThreshold,
		Factory:   factory,
		Media:     source,
		Hooks: peer.Hooks{
			OnStateChange: func(r peer.RecordInfo) {
				log.Debug().Str("peer", string(r.Peer)).Stringer("kind", r.Kind).Stringer("state", r.State).Msg("link")
			},
			OnRemoteTrack: func(p domain.ParticipantID, kind domain.ChannelKind, t *webrtc.TrackRemote) {
				go consume(p, kind, t)
			},
		},
	})

	go func() {
		err := conn.ReadLoop(ctx, func(msg protocol.Message) { loop.Post(func() { s.Handle(msg) }) })
		if err != nil {
			log.Error().Err(err).Msg("relay connection lost")
		}
		cancel()
	}()

	w := &walker{cfg: cfg}
	shared := false
	loop.Run(ctx, cfg.TickPeriod, func() {
		if !s.Joined() {
			return
		}
		if cfg.ShareScreen && !shared {
			shared = true
			s.StartSharing()
		}
		s.Move(w.next(s.Position()))
		s.Tick()
	})

	s.Close()
	loop.Wait()
	log.Info().Msg("client exited")
}

// walker drifts in one direction and occasionally turns.
type walker struct {
	cfg    *config.ClientConfig
	dx, dy float64
}

func (w *walker) next(at domain.Position) (domain.Position, domain.AvatarKind) {
	if (w.dx == 0 && w.dy == 0) || rand.IntN(8) == 0 {
		dirs := [][2]float64{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
		d := dirs[rand.IntN(len(dirs))]
		w.dx, w.dy = d[0], d[1]
	}
	to := domain.Position{
		X: clamp(at.X+w.dx*w.cfg.Step, 0, w.cfg.MapWidth),
		Y: clamp(at.Y+w.dy*w.cfg.Step, 0, w.cfg.MapHeight),
	}
	return to, facing(w.dx, w.dy)
}

func facing(dx, dy float64) domain.AvatarKind {
	switch {
	case dx > 0:
		return "playerRight"
	case dx < 0:
		return "playerLeft"
	case dy < 0:
		return "playerUp"
	}
	return "playerDown"
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}

// consume reads remote media until the link closes.
func consume(p domain.ParticipantID, kind domain.ChannelKind, t *webrtc.TrackRemote) {
	n := 0
	for {
		if _, _, err := t.ReadRTP(); err != nil {
			log.Debug().Str("peer", string(p)).Stringer("kind", kind).Int("packets", n).Msg("remote track ended")
			return
		}
		n++
	}
}
