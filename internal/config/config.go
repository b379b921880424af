// Package config loads application settings from IMMORTAL_-prefixed
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// APIKey authenticates against the realtime endpoint.
	APIKey string

	// RealtimeURL overrides the default endpoint. Empty keeps the
	// client default.
	RealtimeURL string

	// DataDir holds the persona store. Defaults to the user config dir.
	DataDir string

	LogLevel         slog.Level
	HandshakeTimeout time.Duration

	// Sensitivity and SpeakingPulse tune the intensity meter.
	Sensitivity   float64
	SpeakingPulse float64
	TrackEnvelope bool

	// DiagAddr enables the diagnostics server when non-empty, e.g.
	// "127.0.0.1:9090".
	DiagAddr string
}

func Load() (Config, error) {
	cfg := Config{
		APIKey:      os.Getenv("IMMORTAL_API_KEY"),
		RealtimeURL: os.Getenv("IMMORTAL_REALTIME_URL"),
		DataDir:     os.Getenv("IMMORTAL_DATA_DIR"),
		DiagAddr:    os.Getenv("IMMORTAL_DIAG_ADDR"),
	}
	var err error
	if cfg.LogLevel, err = levelFromEnv("IMMORTAL_LOG_LEVEL", slog.LevelInfo); err != nil {
		return Config{}, err
	}
	if cfg.HandshakeTimeout, err = durationFromEnv("IMMORTAL_HANDSHAKE_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Sensitivity, err = floatFromEnv("IMMORTAL_ENERGY_SENSITIVITY", 8.0); err != nil {
		return Config{}, err
	}
	if cfg.SpeakingPulse, err = floatFromEnv("IMMORTAL_SPEAKING_PULSE", 0.65); err != nil {
		return Config{}, err
	}
	if cfg.TrackEnvelope, err = boolFromEnv("IMMORTAL_TRACK_ENVELOPE", false); err != nil {
		return Config{}, err
	}
	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve data dir: %w", err)
		}
		cfg.DataDir = filepath.Join(base, "immortal")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("config: IMMORTAL_HANDSHAKE_TIMEOUT must be positive")
	}
	if c.Sensitivity <= 0 {
		return fmt.Errorf("config: IMMORTAL_ENERGY_SENSITIVITY must be positive")
	}
	if c.SpeakingPulse <= 0 || c.SpeakingPulse > 1 {
		return fmt.Errorf("config: IMMORTAL_SPEAKING_PULSE must be in (0, 1]")
	}
	return nil
}

func levelFromEnv(key string, def slog.Level) (slog.Level, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return def, fmt.Errorf("config: %s: unknown level %q", key, raw)
	}
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func floatFromEnv(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
