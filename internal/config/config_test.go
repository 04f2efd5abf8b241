package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.PingPeriod)
	assert.Equal(t, int64(65536), cfg.ReadLimit)
	assert.Equal(t, time.Minute, cfg.ConnectWindow)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\nmode: debug\nspawn_x: 10\n"), 0o600))
	t.Setenv("PLAZA_MODE", "release")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 10.0, cfg.SpawnX)
}

func TestClientDefaults(t *testing.T) {
	cfg, err := LoadClientFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 150.0, cfg.ProximityThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.TickPeriod)
	assert.Equal(t, "auto", cfg.Media)
	assert.NotEmpty(t, cfg.ICEServers)
}

func TestApplyLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	ApplyLogLevel("DEBUG")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	ApplyLogLevel("loud")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestMalformedFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [9000\nmode: : debug\n"), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
	_, err = LoadClientFile(path)
	assert.Error(t, err)
}
