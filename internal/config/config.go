package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all maildock configuration.
type Config struct {
	Sync SyncConfig `toml:"sync"`
	DB   DBConfig   `toml:"db"`
	Log  LogConfig  `toml:"log"`
}

// SyncConfig holds mailbox synchronization settings.
type SyncConfig struct {
	Interval  string `toml:"interval"`
	Backoff   string `toml:"backoff"`
	BatchSize int    `toml:"batch_size"`
}

// DBConfig holds local cache settings.
type DBConfig struct {
	Path string `toml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

func defaults() Config {
	return Config{
		Sync: SyncConfig{
			Interval:  "5m",
			Backoff:   "30s",
			BatchSize: 500,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads config from path. If path is empty or the file does not exist,
// it returns defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Interval returns the periodic sweep interval, falling back to the default
// on a malformed value.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.Sync.Interval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Backoff returns the watch reconnect backoff, falling back to the default
// on a malformed value.
func (c *Config) Backoff() time.Duration {
	d, err := time.ParseDuration(c.Sync.Backoff)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// BatchSize returns the fetch window size for full syncs.
func (c *Config) BatchSize() int {
	if c.Sync.BatchSize <= 0 {
		return 500
	}
	return c.Sync.BatchSize
}

// DBPath returns the cache database path, defaulting to the data dir.
func (c *Config) DBPath() string {
	if c.DB.Path != "" {
		return c.DB.Path
	}
	return filepath.Join(DataDir(), "maildock.db")
}

// ConfigDir returns the maildock config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "maildock")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "maildock")
}

// DataDir returns the maildock data directory path.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "maildock")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "maildock")
}
