package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Database configures the SQLite store.
type Database struct {
	Path string `toml:"path" json:"path"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `toml:"level" json:"level"`   // debug|info|warn|error
	Format string `toml:"format" json:"format"` // text|json|auto
}

// Bus configures the in-process event bus.
type Bus struct {
	Workers      int `toml:"workers" json:"workers"`
	Redeliveries int `toml:"redeliveries" json:"redeliveries"`
}

// AutoStack configures conflict retries for auto-stacking.
type AutoStack struct {
	MaxAttempts    int `toml:"max_attempts" json:"max_attempts"`
	InitialDelayMS int `toml:"initial_delay_ms" json:"initial_delay_ms"`
	MaxDelayMS     int `toml:"max_delay_ms" json:"max_delay_ms"`
}

// Metrics configures the Prometheus endpoint served by `stackctl run`.
// An empty Listen address disables it.
type Metrics struct {
	Listen string `toml:"listen" json:"listen"`
}

// Config is the full photostack configuration.
type Config struct {
	Database  Database  `toml:"database" json:"database"`
	Logging   Logging   `toml:"logging" json:"logging"`
	Bus       Bus       `toml:"bus" json:"bus"`
	AutoStack AutoStack `toml:"autostack" json:"autostack"`
	Metrics   Metrics   `toml:"metrics" json:"metrics"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: Database{Path: "photostack.db"},
		Logging:  Logging{Level: "info", Format: "auto"},
		Bus:      Bus{Workers: 4, Redeliveries: 3},
		AutoStack: AutoStack{
			MaxAttempts:    5,
			InitialDelayMS: 10,
			MaxDelayMS:     250,
		},
	}
}

// Load reads the configuration at path over the defaults.
// An empty path returns the defaults; a named file that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		resolved, err := expandPath(path)
		if err != nil {
			return nil, err
		}
		file, err := os.Open(resolved)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)

	path, err := expandPath(strings.TrimSpace(c.Database.Path))
	if err != nil {
		return err
	}
	c.Database.Path = path
	return nil
}

// InitialDelay returns the first auto-stack retry backoff.
func (a AutoStack) InitialDelay() time.Duration {
	return time.Duration(a.InitialDelayMS) * time.Millisecond
}

// MaxDelay returns the auto-stack retry backoff ceiling.
func (a AutoStack) MaxDelay() time.Duration {
	return time.Duration(a.MaxDelayMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath applies the config path rules (home expansion, absolute path)
// to a path given on the command line.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
