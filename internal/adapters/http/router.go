package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Plaza/internal/adapters/signal"
	"github.com/dkeye/Plaza/internal/app"
	"github.com/dkeye/Plaza/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const tokenKey = "client_token"

// ClientTokenMiddleware keeps a per-browser token in the session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(tokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			s.Set(tokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}

type participantView struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Name   string  `json:"name"`
	Avatar string  `json:"avatarKind"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, relay *app.Relay) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("PlazaSessions", store))
	r.Use(ClientTokenMiddleware())

	ctrl := signal.NewSignalWSController(
		relay,
		signal.NewConnectRateLimiter(cfg.ConnectLimit, cfg.ConnectWindow),
		signal.Config{SendBuffer: cfg.SendBuffer, ReadLimit: cfg.ReadLimit, PingPeriod: cfg.PingPeriod},
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "participants": relay.Registry.Count()})
	})

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("token", c.GetString(tokenKey)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/participants", func(c *gin.Context) {
		ps := relay.Registry.Participants()
		out := make([]participantView, 0, len(ps))
		for _, p := range ps {
			out = append(out, participantView{
				ID:     string(p.ID),
				X:      p.Position.X,
				Y:      p.Position.Y,
				Name:   p.Name,
				Avatar: string(p.Avatar),
			})
		}
		c.JSON(http.StatusOK, out)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
