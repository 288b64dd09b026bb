package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shelltree/internal/core/config"
	"shelltree/internal/core/session"
	"shelltree/internal/data/journal"
	"shelltree/internal/engine/ast"
	"shelltree/internal/engine/changes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T, cfg *config.Config) (*runtimeEnv, *bytes.Buffer) {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	dir := t.TempDir()
	paths, err := config.ResolvePaths(cfg, dir)
	require.NoError(t, err)

	store, err := openJournalIfEnabled(cfg, paths)
	require.NoError(t, err)
	var sink journal.Sink
	if store != nil {
		t.Cleanup(func() { _ = store.Close() })
		sink = store
	}
	manager := session.NewManager(sessionOptions(cfg, sink)...)
	t.Cleanup(func() { _ = manager.Close() })

	out := &bytes.Buffer{}
	return &runtimeEnv{cfg: cfg, paths: paths, manager: manager, journal: store, out: out}, out
}

func TestParseOptions_CommandAndArgs(t *testing.T) {
	opts, err := parseOptions([]string{"--verbose", "--format", "outline", "parse", "run.sh"})
	require.NoError(t, err)
	assert.True(t, opts.verbose)
	assert.Equal(t, "parse", opts.command)
	assert.Equal(t, []string{"run.sh"}, opts.args)
	assert.NoError(t, validateCommand(opts))
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name string
		opts cliOptions
		want string
	}{
		{"missing", cliOptions{}, "missing command"},
		{"unknown", cliOptions{command: "lint"}, "unknown command"},
		{"parse args", cliOptions{command: "parse", format: "json"}, "exactly one FILE"},
		{"parse format", cliOptions{command: "parse", format: "xml", args: []string{"a.sh"}}, "--format"},
		{"stream args", cliOptions{command: "stream"}, "at least one path"},
		{"repl args", cliOptions{command: "repl", args: []string{"x"}}, "no arguments"},
		{"journal args", cliOptions{command: "journal", args: []string{"a", "b"}}, "at most one"},
		{"limit", cliOptions{command: "journal", limit: -1}, "--limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCommand(tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyOptionOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, applyOptionOverrides(cliOptions{policy: "none", command: "journal"}, cfg))
	assert.Equal(t, changes.FirstParseNone, cfg.FirstParsePolicy())
	assert.True(t, cfg.Journal.Enabled)

	assert.Error(t, applyOptionOverrides(cliOptions{policy: "some"}, cfg))
}

func TestLoadConfig_DefaultDiscoveryOrder(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "data", "config"), 0o755))
	cfgPath := filepath.Join(tmpDir, "data", "config", "shelltree.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[session]\nmax_buffer_size = 2048\n"), 0o644))

	cfg, path, err := loadConfig(defaultConfigPath, tmpDir)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, path)
	assert.Equal(t, 2048, cfg.Session.MaxBufferSize)
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	cfg, path, err := loadConfig(defaultConfigPath, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, config.DefaultConfig().Session, cfg.Session)
}

func TestLoadConfig_CustomPathNoFallback(t *testing.T) {
	tmpDir := t.TempDir()
	_, _, err := loadConfig(filepath.Join(tmpDir, "custom.toml"), tmpDir)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestRunParse_JSONAndOutline(t *testing.T) {
	env, out := newTestEnv(t, nil)
	script := filepath.Join(t.TempDir(), "hello.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo hello world\n"), 0o644))

	code := runParse(context.Background(), env, cliOptions{format: "json", args: []string{script}})
	require.Equal(t, 0, code)
	var root ast.Node
	require.NoError(t, json.Unmarshal(out.Bytes(), &root))
	assert.Equal(t, "program", root.Type)
	require.Len(t, root.NamedChildren(), 1)
	assert.Equal(t, "command", root.NamedChildren()[0].Type)

	out.Reset()
	code = runParse(context.Background(), env, cliOptions{format: "outline", args: []string{script}})
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out.String(), "program [0:0-1:0]"))
}

func TestRunParse_WritesOutFile(t *testing.T) {
	env, out := newTestEnv(t, nil)
	dir := t.TempDir()
	script := filepath.Join(dir, "a.bash")
	require.NoError(t, os.WriteFile(script, []byte("x=1\n"), 0o644))
	dest := filepath.Join(dir, "out", "tree.json")

	require.Equal(t, 0, runParse(context.Background(), env, cliOptions{format: "json", out: dest, args: []string{script}}))
	assert.Zero(t, out.Len())
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "variable_assignment")
}

func TestRunParse_UnsupportedFile(t *testing.T) {
	env, _ := newTestEnv(t, nil)
	script := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(script, []byte("echo hi\n"), 0o644))
	assert.Equal(t, 1, runParse(context.Background(), env, cliOptions{format: "json", args: []string{script}}))
}

func TestRunStream_EmitsOneRecordPerFile(t *testing.T) {
	env, out := newTestEnv(t, nil)
	dir := t.TempDir()
	first := filepath.Join(dir, "01.sh")
	second := filepath.Join(dir, "02.sh")
	require.NoError(t, os.WriteFile(first, []byte("echo 1\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("echo 2\n"), 0o644))

	require.Equal(t, 0, runStream(context.Background(), env, []string{first, second}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var rec streamRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, second, rec.Path)
	assert.Equal(t, 2, rec.Seq)
	assert.Equal(t, 14, rec.BufferSize)
	require.NotNil(t, rec.Changes)
	require.Len(t, rec.Changes.ChangedNodes, 1)
	assert.Equal(t, "echo 2", rec.Changes.ChangedNodes[0].Text)
}

func TestRunStream_OverflowFails(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Session.MaxBufferSize = 4
	env, out := newTestEnv(t, cfg)
	script := filepath.Join(t.TempDir(), "big.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo too long\n"), 0o644))

	assert.Equal(t, 1, runStream(context.Background(), env, []string{script}))
	assert.Contains(t, out.String(), "BUFFER_OVERFLOW")
}

func TestRunJournal_ListsRecordedSessions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Journal.Enabled = true
	env, out := newTestEnv(t, cfg)
	script := filepath.Join(t.TempDir(), "a.sh")
	require.NoError(t, os.WriteFile(script, []byte("ls\n"), 0o644))

	require.Equal(t, 0, runStream(context.Background(), env, []string{script}))
	ids := env.manager.List()
	require.Len(t, ids, 1)

	out.Reset()
	require.Equal(t, 0, runJournal(env, cliOptions{}))
	assert.Contains(t, out.String(), ids[0])

	out.Reset()
	require.Equal(t, 0, runJournal(env, cliOptions{args: []string{ids[0]}}))
	var entry journal.Entry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry))
	assert.Equal(t, 1, entry.Seq)
	assert.Equal(t, journal.KindAppend, entry.Kind)
}

func TestRunJournal_Disabled(t *testing.T) {
	env, _ := newTestEnv(t, nil)
	assert.Equal(t, 1, runJournal(env, cliOptions{}))
}

func TestObservabilityServer_HealthAndMetrics(t *testing.T) {
	manager := session.NewManager()
	t.Cleanup(func() { _ = manager.Close() })
	_, err := manager.Create()
	require.NoError(t, err)

	srv := NewObservabilityServer("127.0.0.1:0", NewHealthService(manager))
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var status HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "up", status.Status)
	assert.Equal(t, "ok (1 open)", status.Components["sessions"])
	assert.Equal(t, "ok", status.Components["parser"])

	metrics, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}
