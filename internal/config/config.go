package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "PLAZA"

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	SendBuffer    int           `mapstructure:"send_buffer"`
	Secret        string        `mapstructure:"secret"`
	SpawnX        float64       `mapstructure:"spawn_x"`
	SpawnY        float64       `mapstructure:"spawn_y"`
	ConnectLimit  int           `mapstructure:"connect_limit"`
	ConnectWindow time.Duration `mapstructure:"connect_window"`
	LogLevel      string        `mapstructure:"log_level"`
	CORSOrigins   []string      `mapstructure:"cors_origins"`

	v *viper.Viper
}

type ClientConfig struct {
	ServerURL          string        `mapstructure:"server_url"`
	Name               string        `mapstructure:"name"`
	Avatar             string        `mapstructure:"avatar"`
	ProximityThreshold float64       `mapstructure:"proximity_threshold"`
	TickPeriod         time.Duration `mapstructure:"tick_period"`
	ICEServers         []string      `mapstructure:"ice_servers"`
	Media              string        `mapstructure:"media"`
	MapWidth           float64       `mapstructure:"map_width"`
	MapHeight          float64       `mapstructure:"map_height"`
	Step               float64       `mapstructure:"step"`
	ShareScreen        bool          `mapstructure:"share_screen"`
	LogLevel           string        `mapstructure:"log_level"`

	v *viper.Viper
}

func serverDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "30s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "plaza-dev-secret")
	v.SetDefault("spawn_x", 400)
	v.SetDefault("spawn_y", 300)
	v.SetDefault("connect_limit", 10)
	v.SetDefault("connect_window", "1m")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{"*"})
}

func clientDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("name", "")
	v.SetDefault("avatar", "playerDown")
	v.SetDefault("proximity_threshold", 150)
	v.SetDefault("tick_period", "250ms")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("media", "auto")
	v.SetDefault("map_width", 800)
	v.SetDefault("map_height", 600)
	v.SetDefault("step", 12)
	v.SetDefault("share_screen", false)
	v.SetDefault("log_level", "info")
}

func envName() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return env
}

// Load reads config/config.<CONFIG_ENV>.yaml. A missing file falls back to
// defaults; PLAZA_* environment variables override both.
func Load() (*Config, error) {
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", envName()))
}

func LoadFile(fileName string) (*Config, error) {
	v, err := newViper(fileName, serverDefaults)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.v = v
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("server config")
	return &cfg, nil
}

// LoadClient reads config/client.<CONFIG_ENV>.yaml.
func LoadClient() (*ClientConfig, error) {
	return LoadClientFile(fmt.Sprintf("config/client.%s.yaml", envName()))
}

func LoadClientFile(fileName string) (*ClientConfig, error) {
	v, err := newViper(fileName, clientDefaults)
	if err != nil {
		return nil, err
	}
	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	cfg.v = v
	log.Info().Str("module", "config").Str("server", cfg.ServerURL).Str("media", cfg.Media).Msg("client config")
	return &cfg, nil
}

// newViper reads fileName over defaults. Only a missing file is tolerated.
func newViper(fileName string, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
	}
	return v, nil
}

// ApplyLogLevel sets the global zerolog level; unknown names keep info.
func ApplyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		log.Warn().Str("module", "config").Str("level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// WatchLogLevel re-applies log_level whenever the config file changes.
func (c *Config) WatchLogLevel() { watch(c.v) }

func (c *ClientConfig) WatchLogLevel() { watch(c.v) }

func watch(v *viper.Viper) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err != nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		level := v.GetString("log_level")
		log.Info().Str("module", "config").Str("file", e.Name).Str("op", e.Op.String()).Str("level", level).Msg("config changed")
		ApplyLogLevel(level)
	})
	v.WatchConfig()
}
