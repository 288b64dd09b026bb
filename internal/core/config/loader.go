package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML file, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	applyDefaults(&cfg)
	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

// LoadOrDefault loads path, or returns DefaultConfig when path is empty or
// names a file that does not exist. Environment overrides apply either way.
func LoadOrDefault(path string) (*Config, error) {
	var cfg *Config
	if strings.TrimSpace(path) != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, os.ErrNotExist):
			cfg = DefaultConfig()
		default:
			return nil, err
		}
	} else {
		cfg = DefaultConfig()
	}

	ApplyEnvOverrides(cfg)
	if errs := Validate(cfg); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = "data/state"
	}

	if cfg.Session.MaxBufferSize == 0 {
		cfg.Session.MaxBufferSize = defaultMaxBufferSize()
	}
	if strings.TrimSpace(cfg.Session.FirstParseChangedNodes) == "" {
		cfg.Session.FirstParseChangedNodes = "all"
	}
	if strings.TrimSpace(cfg.Session.RootRangeChanges) == "" {
		cfg.Session.RootRangeChanges = "root"
	}

	if strings.TrimSpace(cfg.Journal.Path) == "" {
		cfg.Journal.Path = "journal.db"
	}
	if cfg.Journal.BusyTimeout == 0 {
		cfg.Journal.BusyTimeout = 2 * time.Second
	}

	if cfg.Follow.Debounce == 0 {
		cfg.Follow.Debounce = 200 * time.Millisecond
	}
	if len(cfg.Follow.Extensions) == 0 {
		cfg.Follow.Extensions = []string{".sh", ".bash"}
	}
	if cfg.Follow.MaxReparsesPerSecond == 0 {
		cfg.Follow.MaxReparsesPerSecond = 20
	}
	if cfg.Follow.Burst == 0 {
		cfg.Follow.Burst = 5
	}

	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = "127.0.0.1:9464"
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "shelltree"
	}
}
