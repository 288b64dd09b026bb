package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: SHELLTREE_[SECTION]_[KEY] (e.g., SHELLTREE_SESSION_MAX_BUFFER_SIZE).
func ApplyEnvOverrides(cfg *Config) {
	setEnvString(&cfg.Paths.StateDir, "SHELLTREE_PATHS_STATE_DIR")

	// Session
	setEnvInt(&cfg.Session.MaxBufferSize, "SHELLTREE_SESSION_MAX_BUFFER_SIZE")
	setEnvString(&cfg.Session.FirstParseChangedNodes, "SHELLTREE_SESSION_FIRST_PARSE_CHANGED_NODES")
	setEnvString(&cfg.Session.RootRangeChanges, "SHELLTREE_SESSION_ROOT_RANGE_CHANGES")

	// Journal
	setEnvBool(&cfg.Journal.Enabled, "SHELLTREE_JOURNAL_ENABLED")
	setEnvString(&cfg.Journal.Path, "SHELLTREE_JOURNAL_PATH")
	setEnvDuration(&cfg.Journal.BusyTimeout, "SHELLTREE_JOURNAL_BUSY_TIMEOUT")

	// Follow
	setEnvDuration(&cfg.Follow.Debounce, "SHELLTREE_FOLLOW_DEBOUNCE")
	setEnvList(&cfg.Follow.ExcludeFiles, "SHELLTREE_FOLLOW_EXCLUDE_FILES")
	setEnvList(&cfg.Follow.Extensions, "SHELLTREE_FOLLOW_EXTENSIONS")
	setEnvFloat64(&cfg.Follow.MaxReparsesPerSecond, "SHELLTREE_FOLLOW_MAX_REPARSES_PER_SECOND")
	setEnvInt(&cfg.Follow.Burst, "SHELLTREE_FOLLOW_BURST")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "SHELLTREE_OBSERVABILITY_ENABLED")
	setEnvString(&cfg.Observability.Address, "SHELLTREE_OBSERVABILITY_ADDRESS")
	setEnvString(&cfg.Observability.OTLPEndpoint, "SHELLTREE_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.OTLPInsecure, "SHELLTREE_OBSERVABILITY_OTLP_INSECURE")
	setEnvString(&cfg.Observability.ServiceName, "SHELLTREE_OBSERVABILITY_SERVICE_NAME")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

// setEnvList splits a comma-separated value.
func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		var items []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		slog.Debug("applying env override", "key", key, "value", val)
		*target = items
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
