package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SessionEnvOverrides(t *testing.T) {
	t.Setenv("SESSION_IDLE_TIMEOUT", "45m")
	t.Setenv("SESSION_RETENTION", "2h")
	t.Setenv("SESSION_SWEEP_INTERVAL", "30s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.Retention)
	assert.Equal(t, 30*time.Second, cfg.Sessions.SweepInterval)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sessions:\n  idle_timeout: 10m\ndownload:\n  max_photos: 7\n"), 0o600))
	t.Setenv("DOWNLOAD_MAX_PHOTOS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, 9, cfg.Download.MaxPhotos)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Sessions.IdleTimeout, "idle expiry is opt-in")
	assert.Equal(t, 15*time.Minute, cfg.Sessions.Retention)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("BROADCAST_MODE", "carrier-pigeon")

	_, err := Load("")
	assert.ErrorContains(t, err, "unsupported broadcast mode")
}
