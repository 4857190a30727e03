// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `json:"host" yaml:"host"`
		Port int    `json:"port" yaml:"port"`
	} `json:"server" yaml:"server"`

	// Database holds the badger directory used for the recent repositories list.
	Database struct {
		Path string `json:"path" yaml:"path"`
	} `json:"database" yaml:"database"`

	Status struct {
		CacheTTLMillis int `json:"cache_ttl_ms" yaml:"cache_ttl_ms"`
	} `json:"status" yaml:"status"`

	Diff struct {
		CacheCapacity   int `json:"cache_capacity" yaml:"cache_capacity"`
		CompressMinSize int `json:"compress_min_size" yaml:"compress_min_size"`
	} `json:"diff" yaml:"diff"`

	Watch struct {
		DebounceMillis int      `json:"debounce_ms" yaml:"debounce_ms"`
		PollMillis     int      `json:"poll_ms" yaml:"poll_ms"`
		IgnoreDirs     []string `json:"ignore_dirs" yaml:"ignore_dirs"`
	} `json:"watch" yaml:"watch"`

	Workers   int    `json:"workers" yaml:"workers"`
	GitBinary string `json:"git_binary" yaml:"git_binary"`

	Environment string `json:"environment" yaml:"environment"` // dev, prod
	LogLevel    string `json:"log_level" yaml:"log_level"`     // debug, info, warn, error
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 7420
	cfg.Database.Path = defaultDataDir()
	cfg.Status.CacheTTLMillis = 1500
	cfg.Diff.CacheCapacity = 200
	cfg.Diff.CompressMinSize = 16 * 1024
	cfg.Watch.DebounceMillis = 400
	cfg.Watch.PollMillis = 250
	cfg.Watch.IgnoreDirs = []string{"node_modules", "vendor", "dist", "build", "target"}
	cfg.Workers = runtime.NumCPU()
	cfg.GitBinary = "git"
	cfg.Environment = "development"
	cfg.LogLevel = "info"
	return cfg
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gitpanel")
	}
	return filepath.Join(dir, "gitpanel", "db")
}

// ConfigPath returns the per-environment config file path.
func ConfigPath() string {
	if p := os.Getenv("GITPANEL_CONFIG"); p != "" {
		return p
	}
	env := os.Getenv("GITPANEL_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads a JSON or YAML file (chosen by extension) over the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.fillZeroes()
	return cfg, nil
}

// fillZeroes restores defaults for fields a file explicitly zeroed.
func (c *Config) fillZeroes() {
	d := Default()
	if c.Status.CacheTTLMillis <= 0 {
		c.Status.CacheTTLMillis = d.Status.CacheTTLMillis
	}
	if c.Diff.CacheCapacity <= 0 {
		c.Diff.CacheCapacity = d.Diff.CacheCapacity
	}
	if c.Watch.DebounceMillis <= 0 {
		c.Watch.DebounceMillis = d.Watch.DebounceMillis
	}
	if c.Watch.PollMillis <= 0 {
		c.Watch.PollMillis = d.Watch.PollMillis
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.GitBinary == "" {
		c.GitBinary = d.GitBinary
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

func (c *Config) StatusTTL() time.Duration {
	return time.Duration(c.Status.CacheTTLMillis) * time.Millisecond
}

func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.Watch.DebounceMillis) * time.Millisecond
}

func (c *Config) WatchPoll() time.Duration {
	return time.Duration(c.Watch.PollMillis) * time.Millisecond
}
