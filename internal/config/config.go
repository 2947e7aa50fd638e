// Package config reads the daemon configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Listen         string   `yaml:"listen"`
	Paths          []string `yaml:"paths"`
	MinimumFreeGB  uint     `yaml:"minimumFreeGB"`
	Backend        string   `yaml:"backend"` // "badger" or "memory"
	Workers        int      `yaml:"workers"`
	TreeCacheBytes int64    `yaml:"treeCacheBytes"`
	GCInterval     string   `yaml:"gcInterval"`
	LogLevel       string   `yaml:"logLevel"`
	AuthToken      string   `yaml:"authToken"` // empty leaves uploads open
}

const (
	DefaultListen         = "localhost:4242"
	DefaultBackend        = "badger"
	DefaultTreeCacheBytes = 64 << 20
	DefaultGCInterval     = "10m"
	DefaultLogLevel       = "info"
)

// Load reads path, fills in defaults and validates the result.
func Load(path string) (Config, error) {
	config, err := Read(path)
	if err != nil {
		return Config{}, err
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Read is Load without validation, for callers that still override fields.
// An empty path returns the defaults.
func Read(path string) (Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("error reading config %s: %w", path, err)
		}

		err = yaml.UnmarshalStrict(data, &config)
		if err != nil {
			return Config{}, fmt.Errorf("error parsing config %s: %w", path, err)
		}
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.TreeCacheBytes == 0 {
		c.TreeCacheBytes = DefaultTreeCacheBytes
	}
	if c.GCInterval == "" {
		c.GCInterval = DefaultGCInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case "badger":
		if len(c.Paths) == 0 {
			return fmt.Errorf("backend badger needs at least one path")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}

	if _, err := c.GarbageCollectionInterval(); err != nil {
		return err
	}
	return nil
}

// GarbageCollectionInterval parses GCInterval. "0" disables collection.
func (c Config) GarbageCollectionInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.GCInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid gcInterval %q: %w", c.GCInterval, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("gcInterval must not be negative, got %s", d)
	}
	return d, nil
}
