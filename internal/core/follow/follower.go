// Package follow tails shell scripts on disk and feeds appended bytes into
// parse sessions, one session per file.
package follow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"shelltree/internal/core/session"
	"shelltree/internal/shared/util"
)

// Options configures a Follower.
type Options struct {
	Debounce             time.Duration
	ExcludeFiles         []string
	Extensions           []string
	Filenames            []string
	MaxReparsesPerSecond float64
	Burst                int
}

// Update reports what one sync of a file did.
type Update struct {
	Path      string
	SessionID string
	// Reset is set when the file shrank or was replaced and its session
	// was restarted from the beginning.
	Reset   bool
	Removed bool
	Result  *session.Result
	Err     error
}

// followedFile is guarded by its own mu so a throttled file never holds up
// the others.
type followedFile struct {
	sess *session.Session

	mu     sync.Mutex
	offset int64
	info   os.FileInfo
}

// Follower keeps one session per followed file.
type Follower struct {
	manager  *session.Manager
	limiters *util.LimiterRegistry
	onUpdate func(Update)
	logger   *slog.Logger

	opts    Options
	watcher *Watcher

	mu    sync.Mutex
	files map[string]*followedFile
}

func NewFollower(manager *session.Manager, opts Options, onUpdate func(Update), logger *slog.Logger) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	return &Follower{
		manager:  manager,
		limiters: util.NewLimiterRegistry(opts.MaxReparsesPerSecond, opts.Burst, 10*time.Minute),
		onUpdate: onUpdate,
		logger:   logger,
		opts:     opts,
		files:    make(map[string]*followedFile),
	}
}

// Run follows paths until ctx is done. Files already present are parsed
// once up front.
func (f *Follower) Run(ctx context.Context, paths []string) error {
	w, err := NewWatcher(f.opts.Debounce, f.opts.ExcludeFiles, func(changed []string) {
		f.HandleChanges(ctx, changed)
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if len(f.opts.Extensions) > 0 || len(f.opts.Filenames) > 0 {
		w.SetFilters(f.opts.Extensions, f.opts.Filenames)
	}
	if err := w.Watch(paths); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %v: %w", paths, err)
	}

	f.mu.Lock()
	f.watcher = w
	f.mu.Unlock()

	initial := w.Files(paths)
	f.logger.Info("following scripts", "paths", paths, "files", len(initial))
	f.HandleChanges(ctx, initial)

	<-ctx.Done()
	f.limiters.Close()
	return w.Close()
}

// Apply swaps in new options, typically after a config reload.
func (f *Follower) Apply(opts Options) error {
	f.mu.Lock()
	w := f.watcher
	f.opts = opts
	f.mu.Unlock()

	f.limiters.SetRate(opts.MaxReparsesPerSecond, opts.Burst)
	if w == nil {
		return nil
	}
	w.SetDebounce(opts.Debounce)
	if len(opts.Extensions) > 0 || len(opts.Filenames) > 0 {
		w.SetFilters(opts.Extensions, opts.Filenames)
	}
	return w.SetExcludes(opts.ExcludeFiles)
}

// HandleChanges syncs every path in order and reports each outcome.
func (f *Follower) HandleChanges(ctx context.Context, paths []string) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	for _, path := range sorted {
		if ctx.Err() != nil {
			return
		}
		if update, changed := f.Sync(ctx, path); changed {
			f.onUpdate(update)
		}
	}
}

// Sync brings the session for path up to date with the file. It reports
// false when there was nothing to do.
func (f *Follower) Sync(ctx context.Context, path string) (Update, bool) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.forget(path)
		}
		return Update{Path: path, Err: err}, true
	}

	tracked, err := f.track(path)
	if err != nil {
		return Update{Path: path, Err: err}, true
	}

	tracked.mu.Lock()
	defer tracked.mu.Unlock()

	update := Update{Path: path, SessionID: tracked.sess.ID()}
	replaced := tracked.info != nil && !os.SameFile(tracked.info, info)
	if replaced || info.Size() < tracked.offset {
		if err := tracked.sess.Reset(); err != nil {
			update.Err = err
			return update, true
		}
		tracked.offset = 0
		update.Reset = true
		f.logger.Info("file truncated or replaced, restarting session", "path", path, "session", tracked.sess.ID())
	}
	tracked.info = info

	if info.Size() == tracked.offset {
		return update, update.Reset
	}

	if err := f.limiters.Get(path).Wait(ctx, 1); err != nil {
		update.Err = err
		return update, true
	}

	chunk, err := readRange(path, tracked.offset, info.Size())
	if err != nil {
		update.Err = err
		return update, true
	}

	res, err := tracked.sess.Append(ctx, string(chunk))
	if err != nil {
		f.logger.Warn("append failed", "path", path, "session", tracked.sess.ID(), "error", err)
		update.Err = err
		return update, true
	}
	tracked.offset += int64(len(chunk))
	update.Result = res
	return update, true
}

// track returns the entry for path, starting a session on first sight.
func (f *Follower) track(path string) (*followedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if tracked, ok := f.files[path]; ok {
		return tracked, nil
	}
	sess, err := f.manager.Create()
	if err != nil {
		return nil, err
	}
	tracked := &followedFile{sess: sess}
	f.files[path] = tracked
	f.logger.Debug("following file", "path", path, "session", sess.ID())
	return tracked, nil
}

// forget drops the session of a deleted file.
func (f *Follower) forget(path string) (Update, bool) {
	f.mu.Lock()
	tracked, ok := f.files[path]
	if ok {
		delete(f.files, path)
	}
	f.mu.Unlock()
	if !ok {
		return Update{}, false
	}

	update := Update{Path: path, SessionID: tracked.sess.ID(), Removed: true}
	if err := f.manager.Remove(tracked.sess.ID()); err != nil {
		update.Err = err
	}
	return update, true
}

// Session returns the session following path, if any.
func (f *Follower) Session(path string) (*session.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tracked, ok := f.files[path]
	if !ok {
		return nil, false
	}
	return tracked.sess, true
}

func readRange(path string, from, to int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(io.NewSectionReader(file, from, to-from))
}
