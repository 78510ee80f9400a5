package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test inside an empty directory so no stray config.yaml
// or .env is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
	return dir
}

// TestLoadConfigDefaults verifies the built-in defaults.
func TestLoadConfigDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), *cfg)
	assert.Equal(t, 6300, cfg.Port)
	assert.Equal(t, ":6300", cfg.ListenAddress())
	assert.Equal(t, PairingTwoParty, cfg.Pairing)
}

// TestLoadConfigFromEnv verifies RELAY_* overrides, including the nested
// rate limit keys and comma separated origins.
func TestLoadConfigFromEnv(t *testing.T) {
	chdirTemp(t)

	t.Setenv("RELAY_PORT", "7000")
	t.Setenv("RELAY_BIND_ADDRESS", "127.0.0.1")
	t.Setenv("RELAY_HTTP_ADDRESS", ":8080")
	t.Setenv("RELAY_MAX_SESSIONS", "8")
	t.Setenv("RELAY_WRITE_TIMEOUT", "250ms")
	t.Setenv("RELAY_PAIRING", "pairs")
	t.Setenv("RELAY_RATE_LIMIT_BURST", "3")
	t.Setenv("RELAY_RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "http://a.example, http://b.example")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddress())
	assert.Equal(t, ":8080", cfg.HTTPAddress)
	assert.Equal(t, 8, cfg.MaxSessions)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteTimeout)
	assert.Equal(t, PairingPairs, cfg.Pairing)
	assert.Equal(t, RateLimitConfig{Burst: 3, RefillInterval: 2 * time.Second}, cfg.RateLimit)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
}

// TestLoadConfigFromFile verifies YAML values and that the environment wins
// over the file.
func TestLoadConfigFromFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "relay.yaml")
	yaml := `port: 6400
max_line_bytes: 128
shutdown_timeout: 3s
rate_limit:
  burst: 50
allowed_origins:
  - "*"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("RELAY_MAX_LINE_BYTES", "256")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6400, cfg.Port)
	assert.Equal(t, 256, cfg.MaxLineBytes)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

// TestLoadConfigFromDotEnv verifies that a .env file in the working
// directory is honoured.
func TestLoadConfigFromDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RELAY_PORT=6555\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("RELAY_PORT") })

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 6555, cfg.Port)
}

// TestLoadConfigErrors verifies that a missing explicit file and an unknown
// pairing policy are reported.
func TestLoadConfigErrors(t *testing.T) {
	dir := chdirTemp(t)

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("RELAY_PAIRING", "rooms")
	_, err = LoadConfig("")
	assert.Error(t, err)
}

// TestLoadConfigMalformedDotEnv verifies that a .env that exists but cannot
// be parsed is reported instead of ignored.
func TestLoadConfigMalformedDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RELAY-PORT=6555\n"), 0o600))

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load .env")
}

// TestSanitizeConfig verifies that invalid values fall back to defaults.
func TestSanitizeConfig(t *testing.T) {
	cfg := sanitizeConfig(Config{
		Port:         -1,
		MaxSessions:  0,
		WriteTimeout: -time.Second,
		MaxLineBytes: -5,
		RateLimit:    RateLimitConfig{Burst: -1},
	})

	def := DefaultConfig()
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, def.MaxSessions, cfg.MaxSessions)
	assert.Equal(t, def.WriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, def.ShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, def.MaxLineBytes, cfg.MaxLineBytes)
	assert.Equal(t, def.Pairing, cfg.Pairing)
	assert.Equal(t, def.RateLimit, cfg.RateLimit)
	assert.Equal(t, def.LogLevel, cfg.LogLevel)

	assert.Equal(t, 0, sanitizeConfig(Config{Port: 0}).Port, "port 0 picks a free port")
}
