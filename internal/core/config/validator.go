package config

import (
	"fmt"
	"net"
	"strings"

	"shelltree/internal/engine/changes"

	"github.com/gobwas/glob"
)

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d", cfg.Version)
	}
	return nil
}

func validateSession(cfg *Config) error {
	if cfg.Session.MaxBufferSize <= 0 {
		return fmt.Errorf("session.max_buffer_size must be positive, got %d", cfg.Session.MaxBufferSize)
	}
	if _, err := changes.ParseFirstParsePolicy(cfg.Session.FirstParseChangedNodes); err != nil {
		return fmt.Errorf("session.first_parse_changed_nodes: %w", err)
	}
	if _, err := changes.ParseRootRangePolicy(cfg.Session.RootRangeChanges); err != nil {
		return fmt.Errorf("session.root_range_changes: %w", err)
	}
	return nil
}

func validateJournal(cfg *Config) error {
	if cfg.Journal.BusyTimeout < 0 {
		return fmt.Errorf("journal.busy_timeout must not be negative")
	}
	if cfg.Journal.Enabled && strings.TrimSpace(cfg.Journal.Path) == "" {
		return fmt.Errorf("journal.path is required when journal.enabled is true")
	}
	return nil
}

func validateFollow(cfg *Config) error {
	if cfg.Follow.Debounce < 0 {
		return fmt.Errorf("follow.debounce must not be negative")
	}
	if cfg.Follow.MaxReparsesPerSecond < 0 {
		return fmt.Errorf("follow.max_reparses_per_second must not be negative")
	}
	if cfg.Follow.Burst < 0 {
		return fmt.Errorf("follow.burst must not be negative")
	}
	for i, pattern := range cfg.Follow.ExcludeFiles {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("follow.exclude_files[%d] %q: %w", i, pattern, err)
		}
	}
	for i, ext := range cfg.Follow.Extensions {
		if strings.TrimSpace(ext) == "" {
			return fmt.Errorf("follow.extensions[%d] must not be empty", i)
		}
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if !cfg.Observability.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Observability.Address); err != nil {
		return fmt.Errorf("observability.address %q: %w", cfg.Observability.Address, err)
	}
	return nil
}

// Validate returns every problem found in cfg.
func Validate(cfg *Config) []error {
	var errs []error
	for _, check := range []func(*Config) error{
		validateVersion,
		validateSession,
		validateJournal,
		validateFollow,
		validateObservability,
	} {
		if err := check(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
