package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"shelltree/internal/core/config"
	"shelltree/internal/core/follow"
	"shelltree/internal/core/session"
	"shelltree/internal/data/journal"
	"shelltree/internal/engine/ast"
	"shelltree/internal/engine/changes"
	"shelltree/internal/engine/parser"
	"shelltree/internal/shared/observability"
	"shelltree/internal/shared/util"
)

// runtimeEnv carries what every command needs once config is loaded.
type runtimeEnv struct {
	cfg        *config.Config
	configPath string
	paths      config.ResolvedPaths
	manager    *session.Manager
	journal    *journal.Store
	out        io.Writer
}

func Run(args []string) int {
	opts, err := parseOptions(args)
	if err != nil {
		return 2
	}

	if opts.version {
		fmt.Printf("shelltree v%s\n", versionString)
		return 0
	}

	if err := validateCommand(opts); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		printUsage(os.Stderr, newFlagSet(&cliOptions{}))
		return 2
	}

	cleanupLogs := configureLogging(opts.command == commandRepl, opts.verbose)
	defer cleanupLogs()

	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("failed to detect working directory", "error", err)
		return 1
	}

	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	if err := applyOptionOverrides(opts, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		slog.Error("failed to resolve runtime paths", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &runtimeEnv{
		cfg:        cfg,
		configPath: cfgPath,
		paths:      paths,
		out:        os.Stdout,
	}

	store, err := openJournalIfEnabled(cfg, paths)
	if err != nil {
		slog.Error("journal setup failed", "error", err)
		return 1
	}
	var sink journal.Sink
	if store != nil {
		defer store.Close()
		env.journal = store
		writer := journal.NewWriter(store, journal.WriterOptions{}, slog.Default())
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := writer.Close(closeCtx); err != nil {
				slog.Warn("journal writer did not drain", "error", err)
			}
		}()
		sink = writer
	}

	env.manager = session.NewManager(sessionOptions(cfg, sink)...)
	defer env.manager.Close()

	shutdown, err := startObservability(ctx, cfg, env.manager)
	if err != nil {
		slog.Error("failed to start observability", "error", err)
		return 1
	}
	defer shutdown()

	switch opts.command {
	case commandParse:
		return runParse(ctx, env, opts)
	case commandStream:
		return runStream(ctx, env, opts.args)
	case commandFollow:
		return runFollow(ctx, env, opts.args)
	case commandRepl:
		return runRepl(env)
	case commandJournal:
		return runJournal(env, opts)
	}
	return 2
}

func loadConfig(path, cwd string) (*config.Config, string, error) {
	if path != defaultConfigPath {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		config.ApplyEnvOverrides(cfg)
		if errs := config.Validate(cfg); len(errs) > 0 {
			return nil, "", errors.Join(errs...)
		}
		return cfg, path, nil
	}

	candidates, err := discoverDefaultConfig(cwd)
	if err != nil {
		return nil, "", err
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		cfg, err := config.LoadOrDefault(candidate)
		if err != nil {
			return nil, "", err
		}
		return cfg, candidate, nil
	}

	cfg, err := config.LoadOrDefault("")
	if err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

func discoverDefaultConfig(cwd string) ([]string, error) {
	if strings.TrimSpace(cwd) == "" {
		return nil, fmt.Errorf("cwd must not be empty")
	}
	return []string{
		filepath.Clean(filepath.Join(cwd, "data/config/shelltree.toml")),
		filepath.Clean(filepath.Join(cwd, "shelltree.toml")),
	}, nil
}

func applyOptionOverrides(opts cliOptions, cfg *config.Config) error {
	if opts.policy != "" {
		if _, err := changes.ParseFirstParsePolicy(opts.policy); err != nil {
			return fmt.Errorf("--first-parse: %w", err)
		}
		cfg.Session.FirstParseChangedNodes = opts.policy
	}
	if opts.journal || opts.command == commandJournal {
		cfg.Journal.Enabled = true
	}
	return nil
}

func sessionOptions(cfg *config.Config, sink journal.Sink) []session.Option {
	opts := []session.Option{
		session.WithMaxBufferSize(cfg.Session.MaxBufferSize),
		session.WithFirstParsePolicy(cfg.FirstParsePolicy()),
		session.WithRootRangePolicy(cfg.RootRangePolicy()),
		session.WithLogger(slog.Default()),
	}
	if sink != nil {
		opts = append(opts, session.WithObserver(journal.NewRecorder(sink, slog.Default())))
	}
	return opts
}

func openJournalIfEnabled(cfg *config.Config, paths config.ResolvedPaths) (*journal.Store, error) {
	if !cfg.Journal.Enabled {
		return nil, nil
	}
	store, err := journal.Open(paths.JournalPath, cfg.Journal.BusyTimeout)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return store, nil
}

func startObservability(ctx context.Context, cfg *config.Config, manager *session.Manager) (func(), error) {
	if !cfg.Observability.Enabled {
		return func() {}, nil
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:  cfg.Observability.ServiceName,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
		Insecure:     cfg.Observability.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	server := NewObservabilityServer(cfg.Observability.Address, NewHealthService(manager))
	if err := server.Start(ctx); err != nil {
		_ = shutdownTracing(context.Background())
		return nil, err
	}

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Stop(stopCtx); err != nil {
			slog.Warn("observability server shutdown failed", "error", err)
		}
		if err := shutdownTracing(stopCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}, nil
}

func runParse(ctx context.Context, env *runtimeEnv, opts cliOptions) int {
	path := opts.args[0]

	var (
		root *ast.Node
		err  error
	)
	if path == "-" {
		content, readErr := io.ReadAll(os.Stdin)
		if readErr != nil {
			slog.Error("failed to read stdin", "error", readErr)
			return 1
		}
		root, err = parser.ParseOnce(ctx, content)
	} else {
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			slog.Error("failed to read script", "path", path, "error", readErr)
			return 1
		}
		root, err = parser.NewParser(parser.NewGrammarLoader()).ParseFile(ctx, path, content)
	}
	if err != nil {
		slog.Error("parse failed", "path", path, "error", err)
		return 1
	}
	if root.AnyError() {
		slog.Warn("script has syntax errors", "path", path)
	}

	data, err := renderParse(root, opts.format)
	if err != nil {
		slog.Error("failed to render tree", "error", err)
		return 1
	}
	if opts.out != "" {
		if err := util.WriteFileWithDirs(opts.out, data, 0o644); err != nil {
			slog.Error("failed to write output", "path", opts.out, "error", err)
			return 1
		}
		return 0
	}
	_, _ = env.out.Write(data)
	return 0
}

func renderParse(root *ast.Node, format string) ([]byte, error) {
	if format == "outline" {
		return []byte(ast.Outline(root)), nil
	}
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// streamRecord is one JSON line of stream and follow output.
type streamRecord struct {
	Path       string            `json:"path"`
	SessionID  string            `json:"session_id"`
	Seq        int               `json:"seq,omitempty"`
	BufferSize int               `json:"buffer_size,omitempty"`
	HasErrors  bool              `json:"has_errors"`
	Reset      bool              `json:"reset,omitempty"`
	Removed    bool              `json:"removed,omitempty"`
	Changes    *ast.ChangeReport `json:"changes,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func recordFromResult(path, sessionID string, res *session.Result) streamRecord {
	rec := streamRecord{Path: path, SessionID: sessionID}
	if res != nil {
		rec.Seq = res.Seq
		rec.BufferSize = res.BufferSize
		rec.HasErrors = res.HasErrors
		rec.Changes = &res.Changes
	}
	return rec
}

func runStream(ctx context.Context, env *runtimeEnv, files []string) int {
	sess, err := env.manager.Create()
	if err != nil {
		slog.Error("failed to create session", "error", err)
		return 1
	}

	enc := json.NewEncoder(env.out)
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			slog.Error("failed to read fragment", "path", path, "error", err)
			return 1
		}
		res, err := sess.Append(ctx, string(content))
		if err != nil {
			rec := recordFromResult(path, sess.ID(), nil)
			rec.Error = err.Error()
			_ = enc.Encode(rec)
			slog.Error("append failed", "path", path, "error", err)
			return 1
		}
		if err := enc.Encode(recordFromResult(path, sess.ID(), res)); err != nil {
			slog.Error("failed to write record", "error", err)
			return 1
		}
	}
	return 0
}

func followOptions(cfg *config.Config, loader *parser.GrammarLoader) follow.Options {
	return follow.Options{
		Debounce:             cfg.Follow.Debounce,
		ExcludeFiles:         cfg.Follow.ExcludeFiles,
		Extensions:           cfg.Follow.Extensions,
		Filenames:            loader.SupportedFilenames(),
		MaxReparsesPerSecond: cfg.Follow.MaxReparsesPerSecond,
		Burst:                cfg.Follow.Burst,
	}
}

func runFollow(ctx context.Context, env *runtimeEnv, paths []string) int {
	loader := parser.NewGrammarLoader()
	var encMu sync.Mutex
	enc := json.NewEncoder(env.out)
	follower := follow.NewFollower(env.manager, followOptions(env.cfg, loader), func(u follow.Update) {
		encMu.Lock()
		defer encMu.Unlock()
		rec := recordFromResult(u.Path, u.SessionID, u.Result)
		rec.Reset = u.Reset
		rec.Removed = u.Removed
		if u.Err != nil {
			rec.Error = u.Err.Error()
		}
		if err := enc.Encode(rec); err != nil {
			slog.Warn("failed to write record", "error", err)
		}
	}, slog.Default())

	if env.configPath != "" {
		watcher := config.NewWatcher(env.configPath, func(cfg *config.Config) {
			if err := follower.Apply(followOptions(cfg, loader)); err != nil {
				slog.Warn("failed to apply reloaded follow settings", "error", err)
				return
			}
			slog.Info("follow settings reloaded", "path", env.configPath)
		})
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if err := follower.Run(ctx, paths); err != nil {
		slog.Error("follow failed", "error", err)
		return 1
	}
	return 0
}

func runRepl(env *runtimeEnv) int {
	sess, err := env.manager.Create()
	if err != nil {
		slog.Error("failed to create session", "error", err)
		return 1
	}
	if err := runUI(sess); err != nil {
		slog.Error("failed to run UI", "error", err)
		return 1
	}
	return 0
}

func runJournal(env *runtimeEnv, opts cliOptions) int {
	if env.journal == nil {
		fmt.Fprintln(os.Stderr, "journal is not available")
		return 1
	}
	if len(opts.args) == 0 {
		if err := printSessions(env.out, env.journal); err != nil {
			slog.Error("failed to list sessions", "error", err)
			return 1
		}
		return 0
	}

	entries, err := env.journal.List(opts.args[0], opts.limit)
	if err != nil {
		slog.Error("failed to list entries", "session", opts.args[0], "error", err)
		return 1
	}
	enc := json.NewEncoder(env.out)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			slog.Error("failed to write entry", "error", err)
			return 1
		}
	}
	return 0
}

func printSessions(w io.Writer, store *journal.Store) error {
	sessions, err := store.Sessions()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tENTRIES\tLAST SEQ\tFIRST SEEN\tLAST SEEN")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
			s.SessionID, s.Entries, s.LastSeq,
			s.FirstSeen.Local().Format(time.DateTime),
			s.LastSeen.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func configureLogging(uiMode, verbose bool) func() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	output := os.Stderr
	var closeFn func() = func() {}
	if uiMode {
		logPath := resolveLogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to create log dir for %s: %v\n", logPath, err)
		} else {
			if fi, err := os.Lstat(logPath); err == nil && (fi.Mode()&os.ModeSymlink) != 0 {
				fmt.Fprintf(os.Stderr, "warning: refusing to write logs to symlink path %s\n", logPath)
			} else {
				f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
				if err == nil {
					output = f
					closeFn = func() { _ = f.Close() }
				} else {
					fmt.Fprintf(os.Stderr, "warning: failed to open log file %s: %v\n", logPath, err)
				}
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return closeFn
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "shelltree", "shelltree.log")
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "shelltree", "shelltree.log")
	}

	return "shelltree.log"
}
