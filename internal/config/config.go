package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Host     HostConfig   `yaml:"host"`
	Player   PlayerConfig `yaml:"player"`
}

// HostConfig holds quiz host settings.
type HostConfig struct {
	ScanDuration time.Duration `yaml:"scan_duration"` // default discovery window
	ConsoleAddr  string        `yaml:"console_addr"`  // HTTP console listen address, empty disables it
	Announce     bool          `yaml:"announce"`      // publish the console over mDNS
}

// PlayerConfig holds quiz player settings.
type PlayerConfig struct {
	ID                string `yaml:"id"`   // published identity, generated when empty
	Name              string `yaml:"name"` // advertised local name
	ConsoleAddr       string `yaml:"console_addr"`
	Announce          bool   `yaml:"announce"`
	AdvertiseRetryMax int    `yaml:"advertise_retry_max"` // seconds
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "quizlink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Host: HostConfig{
			ScanDuration: 10 * time.Second,
			ConsoleAddr:  "127.0.0.1:8420",
		},
		Player: PlayerConfig{
			Name:              "quizlink",
			ConsoleAddr:       "127.0.0.1:8421",
			AdvertiseRetryMax: 30,
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. An empty player.id is replaced by a random UUID.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.EnsurePlayerID()
	return cfg, nil
}

// EnsurePlayerID generates a player id if none is configured.
func (c *Config) EnsurePlayerID() {
	if strings.TrimSpace(c.Player.ID) == "" {
		c.Player.ID = uuid.NewString()
	}
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Host.ScanDuration <= 0 {
		return fmt.Errorf("host.scan_duration must be > 0, got %s", c.Host.ScanDuration)
	}

	if c.Player.Name == "" {
		return fmt.Errorf("player.name must not be empty")
	}
	if len(c.Player.ID) > 512 {
		return fmt.Errorf("player.id must be at most 512 bytes, got %d", len(c.Player.ID))
	}

	if c.Player.AdvertiseRetryMax <= 0 {
		return fmt.Errorf("player.advertise_retry_max must be > 0")
	}

	if c.Host.Announce && c.Host.ConsoleAddr == "" {
		return fmt.Errorf("host.announce needs host.console_addr")
	}
	if c.Player.Announce && c.Player.ConsoleAddr == "" {
		return fmt.Errorf("player.announce needs player.console_addr")
	}

	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	return ParseLogLevel(c.LogLevel)
}

// ParseLogLevel maps a log_level value to a slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# quizlink configuration
#
# log_level: debug, info, warn or error
# host.scan_duration: how long a discovery window stays open (e.g. 10s)
# host.console_addr / player.console_addr: HTTP console address, empty disables it
# host.announce / player.announce: publish the console over mDNS (bind a LAN address)
# player.id: identity published to the host, generated at startup when empty
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
