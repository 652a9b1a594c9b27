package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent truthstore configuration stored as
// config.toml in the .truthstore/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Recompute   RecomputeConfig   `toml:"recompute"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Schema      SchemaConfig      `toml:"schema"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running API
// server. APITarget is a full URL (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// RecomputeConfig controls when snapshots are rebuilt.
type RecomputeConfig struct {
	Async     bool `toml:"async,omitempty"`
	Workers   uint `toml:"workers,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`
}

// EventStreamConfig selects where snapshot and merge events go.
type EventStreamConfig struct {
	// Provider is "none" or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// SchemaConfig points at a directory of schema definition files applied at
// startup and optionally watched.
type SchemaConfig struct {
	Dir   string `toml:"dir,omitempty"`
	Watch bool   `toml:"watch,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return b, nil
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func parseUint(key, v string) (uint, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return uint(n), nil
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			if !isValidDriver(v) {
				return fmt.Errorf("invalid value for storage.driver: %q (available: %s)", v, strings.Join(ValidDrivers(), ", "))
			}
			c.Storage.Driver = v
			return nil
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"recompute.async": {
		get: func(c *Config) string { return strconv.FormatBool(c.Recompute.Async) },
		set: func(c *Config, v string) error {
			b, err := parseBool("recompute.async", v)
			if err != nil {
				return err
			}
			c.Recompute.Async = b
			return nil
		},
	},
	"recompute.workers": {
		get: func(c *Config) string { return formatUint(c.Recompute.Workers) },
		set: func(c *Config, v string) error {
			n, err := parseUint("recompute.workers", v)
			if err != nil {
				return err
			}
			c.Recompute.Workers = n
			return nil
		},
	},
	"recompute.queue_size": {
		get: func(c *Config) string { return formatUint(c.Recompute.QueueSize) },
		set: func(c *Config, v string) error {
			n, err := parseUint("recompute.queue_size", v)
			if err != nil {
				return err
			}
			c.Recompute.QueueSize = n
			return nil
		},
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error { c.EventStream.Provider = v; return nil },
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error { c.EventStream.Brokers = SplitList(v); return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"schema.dir": {
		get: func(c *Config) string { return c.Schema.Dir },
		set: func(c *Config, v string) error { c.Schema.Dir = v; return nil },
	},
	"schema.watch": {
		get: func(c *Config) string { return strconv.FormatBool(c.Schema.Watch) },
		set: func(c *Config, v string) error {
			b, err := parseBool("schema.watch", v)
			if err != nil {
				return err
			}
			c.Schema.Watch = b
			return nil
		},
	},
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
