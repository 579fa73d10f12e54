// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultDisappearingDelay = 300 * time.Millisecond
	DefaultLogLevel          = "info"
	DefaultScopePath         = "alertflow/dnd"
	DefaultScopeName         = "default"
	maxDisappearingDelay     = time.Minute
)

// Config represents the alertflow configuration.
type Config struct {
	Display   DisplayConfig   `toml:"display"`
	Fatal     FatalConfig     `toml:"fatal"`
	Log       LogConfig       `toml:"log"`
	DnD       DnDConfig       `toml:"dnd"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Trace     TraceConfig     `toml:"trace"`
}

// DisplayConfig controls the display slots.
type DisplayConfig struct {
	Scope             string   `toml:"scope"`               // Scope the notification bridge submits to
	DisappearingDelay Duration `toml:"disappearing_delay"`  // e.g. "300ms" or 300
	DelayAfterDismiss bool     `toml:"delay_after_dismiss"` // Wait out the delay after a dismissal too
}

// FatalConfig controls how unobserved fatal inconsistencies are handled.
type FatalConfig struct {
	Strict bool `toml:"strict"` // Panic even in release builds
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// DnDConfig holds Do Not Disturb settings.
type DnDConfig struct {
	StateFile string `toml:"state_file"` // Empty = XDG state path
	ScopePath string `toml:"scope_path"` // Interrupt source name
}

// TelemetryConfig holds metrics settings.
type TelemetryConfig struct {
	Enabled bool `toml:"enabled"`
}

// TraceConfig holds event trace settings.
type TraceConfig struct {
	Path string `toml:"path"` // Empty = no trace
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Display: DisplayConfig{
			Scope:             DefaultScopeName,
			DisappearingDelay: Duration(DefaultDisappearingDelay),
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		DnD: DnDConfig{
			ScopePath: DefaultScopePath,
		},
	}
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "alertflow", "config.toml")
}

// StatePath returns the path to the state directory.
// Uses XDG_STATE_HOME if set, otherwise ~/.local/state.
func StatePath() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "alertflow")
}

// DnDStatePath returns the DnD state file, honouring dnd.state_file.
func (c *Config) DnDStatePath() string {
	if c.DnD.StateFile != "" {
		return expandPath(c.DnD.StateFile)
	}
	return filepath.Join(StatePath(), "state.json")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	delay := c.Display.DisappearingDelay.Duration()
	if delay < 0 || delay > maxDisappearingDelay {
		return fmt.Errorf("disappearing_delay must be between 0 and %s, got %s", maxDisappearingDelay, delay)
	}
	if strings.TrimSpace(c.Display.Scope) == "" {
		return errors.New("display scope cannot be empty")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if strings.TrimSpace(c.DnD.ScopePath) == "" {
		return errors.New("dnd scope_path cannot be empty")
	}
	return nil
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// ScopeDelay returns the disappearing delay in the form flow.Options
// expects, where zero selects the built-in default. An explicit zero in
// the config means no delay at all and is returned as -1.
func (c *Config) ScopeDelay() time.Duration {
	if d := c.Display.DisappearingDelay.Duration(); d > 0 {
		return d
	}
	return -1
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
