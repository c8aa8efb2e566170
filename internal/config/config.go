// Package config loads chathub settings from a YAML file, a .env file and
// CHATHUB_* environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = 8080
	defaultDBPath          = "chathub.sqlite"
	defaultRoom            = "Lobby"
	defaultWelcome         = "Welcome to CHATHUB"
	defaultMaxMessageSize  = 4 * 1024 * 1024 // images travel inline as data URLs
	defaultSendBuffer      = 256
	defaultShutdownTimeout = 10 * time.Second
	defaultBusyTimeout     = 5 * time.Second
	defaultSessionTTL      = 12 * time.Hour
	defaultMaxAvatarSize   = 2 * 1024 * 1024
	defaultMetricsPath     = "/metrics"
)

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the optional YAML file at path, then .env, then the
// environment, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses a config file.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolvePath prefers the flag value, then CHATHUB_CONFIG.
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return os.Getenv("CHATHUB_CONFIG")
}

// Addr returns the HTTP listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.MaxMessageSize <= 0 {
		c.Server.MaxMessageSize = SizeBytes(defaultMaxMessageSize)
	}
	if c.Server.SendBuffer <= 0 {
		c.Server.SendBuffer = defaultSendBuffer
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = Duration(defaultShutdownTimeout)
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{fmt.Sprintf("http://localhost:%d", c.Server.Port)}
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultDBPath
	}
	if c.Store.DefaultRoom == "" {
		c.Store.DefaultRoom = defaultRoom
	}
	if c.Store.WelcomeMessage == "" {
		c.Store.WelcomeMessage = defaultWelcome
	}
	if c.Store.BusyTimeout <= 0 {
		c.Store.BusyTimeout = Duration(defaultBusyTimeout)
	}
	if c.Auth.SessionTTL <= 0 {
		c.Auth.SessionTTL = Duration(defaultSessionTTL)
	}
	if c.Auth.MaxAvatarSize <= 0 {
		c.Auth.MaxAvatarSize = SizeBytes(defaultMaxAvatarSize)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Store.DefaultRoom) == "" {
		return errors.New("store default_room must not be blank")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/': %q", c.Metrics.Path)
	}
	return nil
}

// Summary renders the effective settings for the startup log.
func (c *Config) Summary() []string {
	return []string{
		"listen: " + c.Addr(),
		"db: " + c.Store.Path,
		"default room: " + c.Store.DefaultRoom,
		"origins: " + strings.Join(c.Server.AllowedOrigins, ","),
		"max frame: " + c.Server.MaxMessageSize.String(),
		"auth required: " + strconv.FormatBool(c.Auth.Required),
		"metrics: " + strconv.FormatBool(c.Metrics.On()),
	}
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("CHATHUB_ADDRESS", &c.Server.Address)
	str("CHATHUB_DB_PATH", &c.Store.Path)
	str("CHATHUB_DEFAULT_ROOM", &c.Store.DefaultRoom)
	str("CHATHUB_WELCOME_MESSAGE", &c.Store.WelcomeMessage)
	str("CHATHUB_LOG_LEVEL", &c.Logging.Level)
	str("CHATHUB_METRICS_PATH", &c.Metrics.Path)

	if v, ok := lookup("CHATHUB_PORT"); ok && v != "" {
		p, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("CHATHUB_PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v, ok := lookup("CHATHUB_ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = parseList(v)
	}
	if v, ok := lookup("CHATHUB_MAX_MESSAGE_SIZE"); ok && v != "" {
		size, err := parseSize(v)
		if err != nil {
			return fmt.Errorf("CHATHUB_MAX_MESSAGE_SIZE: %w", err)
		}
		c.Server.MaxMessageSize = size
	}
	if v, ok := lookup("CHATHUB_SEND_BUFFER"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("CHATHUB_SEND_BUFFER: %w", err)
		}
		c.Server.SendBuffer = n
	}
	if v, ok := lookup("CHATHUB_SESSION_TTL"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("CHATHUB_SESSION_TTL: %w", err)
		}
		c.Auth.SessionTTL = d
	}
	if v, ok := lookup("CHATHUB_AUTH_REQUIRED"); ok && v != "" {
		c.Auth.Required = parseBool(v)
	}
	if v, ok := lookup("CHATHUB_METRICS_ENABLED"); ok && v != "" {
		on := parseBool(v)
		c.Metrics.Enabled = &on
	}
	return nil
}

func parseList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
