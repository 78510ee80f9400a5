// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultConfigFile is read when LoadConfig is given no explicit path.
const DefaultConfigFile = "config.yaml"

// EnvPrefix prefixes every environment variable the relay reads.
const EnvPrefix = "RELAY"

// RateLimitConfig defines the parameters for per-session relay rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay configuration.
type Config struct {
	BindAddress     string
	Port            int
	HTTPAddress     string
	MaxSessions     int
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxLineBytes    int
	Pairing         string
	RateLimit       RateLimitConfig
	AllowedOrigins  []string
	LogLevel        string
	LogFormat       string
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		BindAddress:     "",
		Port:            6300,
		HTTPAddress:     "",
		MaxSessions:     64,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxLineBytes:    4096,
		Pairing:         PairingTwoParty,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// ListenAddress is the host:port the TCP acceptor binds.
func (c Config) ListenAddress() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

func sanitizeConfig(cfg Config) Config {
	def := DefaultConfig()

	if cfg.Port < 0 || cfg.Port > 65535 {
		cfg.Port = def.Port
	}

	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = def.MaxLineBytes
	}

	if strings.TrimSpace(cfg.Pairing) == "" {
		cfg.Pairing = def.Pairing
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)

	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}

	return cfg
}

// LoadConfig builds a Config from defaults, an optional YAML file, a .env
// file, and RELAY_* environment variables, in increasing precedence.
// An empty path means DefaultConfigFile, which may be absent.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// missing .env is fine, only the environment is used then
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "failed to load .env")
	}
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("bind_address", def.BindAddress)
	v.SetDefault("port", def.Port)
	v.SetDefault("http_address", def.HTTPAddress)
	v.SetDefault("max_sessions", def.MaxSessions)
	v.SetDefault("write_timeout", def.WriteTimeout)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("max_line_bytes", def.MaxLineBytes)
	v.SetDefault("pairing", def.Pairing)
	v.SetDefault("rate_limit.burst", def.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", def.RateLimit.RefillInterval)
	v.SetDefault("allowed_origins", def.AllowedOrigins)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)

	configFile := path
	if configFile == "" {
		configFile = DefaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil || path != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configFile)
		}
	}

	cfg := Config{
		BindAddress:     v.GetString("bind_address"),
		Port:            v.GetInt("port"),
		HTTPAddress:     v.GetString("http_address"),
		MaxSessions:     v.GetInt("max_sessions"),
		WriteTimeout:    v.GetDuration("write_timeout"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		MaxLineBytes:    v.GetInt("max_line_bytes"),
		Pairing:         v.GetString("pairing"),
		RateLimit: RateLimitConfig{
			Burst:          v.GetInt("rate_limit.burst"),
			RefillInterval: v.GetDuration("rate_limit.refill_interval"),
		},
		AllowedOrigins: parseOriginList(v.GetStringSlice("allowed_origins")),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
	}

	if _, err := PairingByName(cfg.Pairing); err != nil {
		return nil, err
	}

	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

// parseOriginList accepts both YAML lists and a single comma separated
// environment value.
func parseOriginList(values []string) []string {
	var origins []string
	for _, value := range values {
		origins = append(origins, parseOrigins(value)...)
	}
	return origins
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
