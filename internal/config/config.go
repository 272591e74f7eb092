// ABOUTME: Configuration loading and parsing for coven-desk
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-desk/internal/classify"
	"github.com/2389/coven-desk/internal/widget"
)

// Config represents the complete coven-desk configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	LocalState LocalStateConfig `yaml:"local_state" toml:"local_state"`
	Realtime   RealtimeConfig   `yaml:"realtime" toml:"realtime"`
	AutoReply  AutoReplyConfig  `yaml:"autoreply" toml:"autoreply"`
	Routing    RoutingConfig    `yaml:"routing" toml:"routing"`
	Janitor    JanitorConfig    `yaml:"janitor" toml:"janitor"`
	Widget     widget.Options   `yaml:"widget" toml:"widget"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds the store of record location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LocalStateConfig holds the durable key-value file used by the chat widget
type LocalStateConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Realtime transports
const (
	TransportMemory = "memory"
	TransportRedis  = "redis"
)

// RealtimeConfig selects the push channel between store and widgets
type RealtimeConfig struct {
	Transport     string `yaml:"transport" toml:"transport"`
	RedisAddr     string `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `yaml:"redis_password" toml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" toml:"redis_db"`

	ResubscribeBackoff    time.Duration `yaml:"-" toml:"-"`
	ResubscribeBackoffRaw string        `yaml:"resubscribe_backoff" toml:"resubscribe_backoff"`
}

// AutoReplyConfig holds bot reply timing
type AutoReplyConfig struct {
	TypingDelay    time.Duration `yaml:"-" toml:"-"`
	TypingDelayRaw string        `yaml:"typing_delay" toml:"typing_delay"`
}

// RoutingConfig overrides the category to department table
type RoutingConfig struct {
	Departments map[string]string `yaml:"departments" toml:"departments"`
}

// JanitorConfig controls closing of idle conversations
type JanitorConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Schedule string `yaml:"schedule" toml:"schedule"`

	IdleTimeout    time.Duration `yaml:"-" toml:"-"`
	IdleTimeoutRaw string        `yaml:"idle_timeout" toml:"idle_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration that runs a single local server.
func Default() *Config {
	return &Config{
		Server:     ServerConfig{HTTPAddr: "127.0.0.1:8090"},
		Database:   DatabaseConfig{Path: "coven-desk.db"},
		LocalState: LocalStateConfig{Path: "coven-desk-local.db"},
		Realtime: RealtimeConfig{
			Transport:             TransportMemory,
			ResubscribeBackoffRaw: "500ms",
		},
		AutoReply: AutoReplyConfig{TypingDelayRaw: "1500ms"},
		Janitor: JanitorConfig{
			Enabled:        true,
			Schedule:       "*/5 * * * *",
			IdleTimeoutRaw: "24h",
		},
		Widget: widget.Options{
			Title:    "Atendimento",
			Position: widget.PositionBottomRight,
			Greeting: "Olá! Como podemos ajudar?",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns the config file location.
// Priority: COVEN_DESK_CONFIG env var > XDG_CONFIG_HOME/coven-desk/desk.yaml > ~/.config/coven-desk/desk.yaml
func DefaultPath() string {
	if envPath := os.Getenv("COVEN_DESK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "desk.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven-desk", "desk.yaml")
}

// Load reads a configuration file from the given path on top of Default().
// Files ending in .toml are TOML, everything else is YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize parses durations and validates. Load calls it; callers building
// a Config in code call it themselves.
func (c *Config) Finalize() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(re.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.LocalState.Path == "" {
		return fmt.Errorf("local_state.path is required")
	}

	switch c.Realtime.Transport {
	case TransportMemory:
	case TransportRedis:
		if c.Realtime.RedisAddr == "" {
			return fmt.Errorf("realtime.redis_addr is required for the redis transport")
		}
	default:
		return fmt.Errorf("realtime.transport must be %q or %q, got %q",
			TransportMemory, TransportRedis, c.Realtime.Transport)
	}

	for category := range c.Routing.Departments {
		if !slices.Contains(classify.Categories, classify.Category(category)) {
			return fmt.Errorf("routing.departments: unknown category %q", category)
		}
	}

	if c.Janitor.Enabled {
		if c.Janitor.Schedule == "" {
			return fmt.Errorf("janitor.schedule is required when the janitor is enabled")
		}
		if c.Janitor.IdleTimeout <= 0 {
			return fmt.Errorf("janitor.idle_timeout must be positive")
		}
	}

	if err := c.Widget.Validate(); err != nil {
		return err
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"realtime.resubscribe_backoff", cfg.Realtime.ResubscribeBackoffRaw, &cfg.Realtime.ResubscribeBackoff},
		{"autoreply.typing_delay", cfg.AutoReply.TypingDelayRaw, &cfg.AutoReply.TypingDelay},
		{"janitor.idle_timeout", cfg.Janitor.IdleTimeoutRaw, &cfg.Janitor.IdleTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
