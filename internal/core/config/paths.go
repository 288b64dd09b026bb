package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	StateDir    string
	JournalPath string
}

// ResolvePaths anchors relative paths: the state dir at cwd, the journal at
// the state dir.
func ResolvePaths(cfg *Config, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}
	stateDir := ResolveRelative(cwd, cfg.Paths.StateDir)
	return ResolvedPaths{
		StateDir:    stateDir,
		JournalPath: ResolveRelative(stateDir, cfg.Journal.Path),
	}, nil
}

func ResolveRelative(base, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Clean(filepath.Join(base, value))
}
