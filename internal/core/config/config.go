package config

import (
	"time"

	"shelltree/internal/engine/buffer"
	"shelltree/internal/engine/changes"
)

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Session       Session       `toml:"session"`
	Journal       Journal       `toml:"journal"`
	Follow        Follow        `toml:"follow"`
	Observability Observability `toml:"observability"`
}

type Paths struct {
	StateDir string `toml:"state_dir"`
}

type Session struct {
	MaxBufferSize int `toml:"max_buffer_size"`
	// FirstParseChangedNodes is "all" or "none".
	FirstParseChangedNodes string `toml:"first_parse_changed_nodes"`
	// RootRangeChanges is "root" or "statements".
	RootRangeChanges string `toml:"root_range_changes"`
}

type Journal struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type Follow struct {
	Debounce             time.Duration `toml:"debounce"`
	ExcludeFiles         []string      `toml:"exclude_files"`
	Extensions           []string      `toml:"extensions"`
	MaxReparsesPerSecond float64       `toml:"max_reparses_per_second"`
	Burst                int           `toml:"burst"`
}

type Observability struct {
	Enabled      bool   `toml:"enabled"`
	Address      string `toml:"address"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	OTLPInsecure bool   `toml:"otlp_insecure"`
	ServiceName  string `toml:"service_name"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// FirstParsePolicy returns the validated session policy.
func (c *Config) FirstParsePolicy() changes.FirstParsePolicy {
	p, err := changes.ParseFirstParsePolicy(c.Session.FirstParseChangedNodes)
	if err != nil {
		return changes.FirstParseAll
	}
	return p
}

// RootRangePolicy returns the validated root-range policy.
func (c *Config) RootRangePolicy() changes.RootRangePolicy {
	p, err := changes.ParseRootRangePolicy(c.Session.RootRangeChanges)
	if err != nil {
		return changes.RootRangeRoot
	}
	return p
}

func defaultMaxBufferSize() int { return buffer.DefaultMaxSize }
