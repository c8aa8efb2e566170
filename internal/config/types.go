package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds http and websocket settings.
type ServerConfig struct {
	Address         string    `yaml:"address"`
	Port            int       `yaml:"port"`
	AllowedOrigins  []string  `yaml:"allowed_origins"`
	MaxMessageSize  SizeBytes `yaml:"max_message_size"`
	SendBuffer      int       `yaml:"send_buffer"`
	ShutdownTimeout Duration  `yaml:"shutdown_timeout"`
}

// StoreConfig holds message store settings.
type StoreConfig struct {
	Path           string   `yaml:"path"`
	DefaultRoom    string   `yaml:"default_room"`
	WelcomeMessage string   `yaml:"welcome_message"`
	BusyTimeout    Duration `yaml:"busy_timeout"`
}

// AuthConfig controls the cookie session layer in front of the websocket.
type AuthConfig struct {
	Required      bool      `yaml:"required"`
	SessionTTL    Duration  `yaml:"session_ttl"`
	SecureCookie  bool      `yaml:"secure_cookie"`
	MaxAvatarSize SizeBytes `yaml:"max_avatar_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// On reports whether metrics are enabled. Unset means enabled.
func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "4MiB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration wraps time.Duration and parses "30s" style strings or plain
// numbers of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
