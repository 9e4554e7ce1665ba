package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigDefaults verifies that every key has a usable default.
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, FanoutModeRooms, cfg.Fanout.Mode)
	assert.Equal(t, 25*time.Second, cfg.Heartbeat.PingInterval)
	assert.Error(t, cfg.Validate(), "missing secret must not validate")
}

// TestLoadConfigLayers verifies precedence: flags over environment over file
// over defaults.
func TestLoadConfigLayers(t *testing.T) {
	file := filepath.Join(t.TempDir(), "teamsync.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
port: ":9000"
allowedOrigins:
  - https://app.example.com
auth:
  jwtSecret: from-file
fanout:
  mode: Membership
  queueSize: 16
redis:
  addr: localhost:6379
`), 0o600))

	t.Setenv("TEAMSYNC_AUTH_JWTSECRET", "from-env")
	t.Setenv("TEAMSYNC_HEARTBEAT_PONGTIMEOUT", "30s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("port", "", "")
	require.NoError(t, flags.Parse([]string{"--port", ":7000"}))

	cfg, err := LoadConfig(file, flags)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, FanoutModeMembership, cfg.Fanout.Mode)
	assert.Equal(t, 16, cfg.Fanout.QueueSize)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.PongTimeout)
	assert.Equal(t, 25*time.Second, cfg.Heartbeat.PingInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

// TestSanitizeConfig verifies that invalid values fall back to defaults and
// that the ping interval always fits inside the pong window.
func TestSanitizeConfig(t *testing.T) {
	cfg := sanitizeConfig(Config{
		MaxMessageSize: -1,
		RateLimit:      RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
		Heartbeat:      HeartbeatConfig{PingInterval: time.Minute, PongTimeout: 10 * time.Second},
		Fanout:         FanoutConfig{Mode: "bogus"},
	})

	d := DefaultConfig()
	assert.Equal(t, d.Port, cfg.Port)
	assert.Equal(t, d.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, d.RateLimit, cfg.RateLimit)
	assert.Equal(t, 9*time.Second, cfg.Heartbeat.PingInterval)
	assert.Equal(t, FanoutModeRooms, cfg.Fanout.Mode)
	assert.Equal(t, d.Fanout.QueueSize, cfg.Fanout.QueueSize)
	assert.Empty(t, cfg.AllowedOrigins)
}
