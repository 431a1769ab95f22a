package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, "gui", cfg.Sender)
	assert.NoError(t, cfg.Validate())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wscomsrv.yaml")
	cfg := Default()
	cfg.URL = "ws://relay:9000"
	cfg.ReconnectDelay = 250 * time.Millisecond

	require.NoError(t, cfg.Save(path))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: ws://board:81\nsender: arduino\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://board:81", cfg.URL)
	assert.Equal(t, "arduino", cfg.Sender)
	assert.Equal(t, 10*time.Second, cfg.ReconnectDelay)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestApplyEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("WSCS_SENDER=panel\n"), 0o644))
	t.Setenv("WSCS_SENDER", "")
	t.Setenv("WSCS_URL", "wss://relay.example:443")
	t.Setenv("WSCS_RECONNECT_DELAY", "2s")
	t.Setenv("WSCS_READ_LIMIT", "4096")

	// godotenv never overrides a variable that is already set
	require.NoError(t, os.Unsetenv("WSCS_SENDER"))

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(envFile))
	assert.Equal(t, "wss://relay.example:443", cfg.URL)
	assert.Equal(t, "panel", cfg.Sender)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, int64(4096), cfg.ReadLimit)
}

func TestApplyEnvMissingFile(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestApplyEnvBadDuration(t *testing.T) {
	t.Setenv("WSCS_PING_INTERVAL", "often")
	cfg := Default()
	assert.Error(t, cfg.ApplyEnv(""))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"HTTPScheme":   func(c *Config) { c.URL = "http://localhost:8765" },
		"NoHost":       func(c *Config) { c.URL = "ws://" },
		"EmptySender":  func(c *Config) { c.Sender = "" },
		"ZeroDelay":    func(c *Config) { c.ReconnectDelay = 0 },
		"NegativePing": func(c *Config) { c.PingInterval = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
