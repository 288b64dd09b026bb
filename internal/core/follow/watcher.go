package follow

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"shelltree/internal/shared/observability"
	"shelltree/internal/shared/util"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// Watcher reports debounced batches of changed script paths.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	onChange   func([]string)
	callbackMu sync.Mutex

	filterMu     sync.RWMutex
	excludeFiles []glob.Glob
	extFilters   map[string]bool
	nameFilters  map[string]bool
	explicit     map[string]bool
	roots        []string

	pending   map[string]time.Time
	pendingMu sync.Mutex
	debounce  time.Duration
	timer     *time.Timer

	done      chan struct{}
	closeOnce sync.Once
}

func NewWatcher(debounce time.Duration, excludeFiles []string, onChange func([]string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}
	excludes, err := compileGlobs(excludeFiles)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher:    fsw,
		onChange:     onChange,
		excludeFiles: excludes,
		extFilters:   map[string]bool{".sh": true, ".bash": true},
		nameFilters:  map[string]bool{},
		explicit:     map[string]bool{},
		pending:      make(map[string]time.Time),
		debounce:     debounce,
		done:         make(chan struct{}),
	}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// SetFilters limits directory watches to these extensions and file names.
func (w *Watcher) SetFilters(extensions, filenames []string) {
	extFilter := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		extFilter[normalized] = true
	}

	nameFilter := make(map[string]bool, len(filenames))
	for _, name := range filenames {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		nameFilter[normalized] = true
	}

	w.filterMu.Lock()
	w.extFilters = extFilter
	w.nameFilters = nameFilter
	w.filterMu.Unlock()
}

func (w *Watcher) SetExcludes(patterns []string) error {
	excludes, err := compileGlobs(patterns)
	if err != nil {
		return err
	}
	w.filterMu.Lock()
	w.excludeFiles = excludes
	w.filterMu.Unlock()
	return nil
}

func (w *Watcher) SetDebounce(debounce time.Duration) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.debounce = debounce
}

// Watch starts watching paths. A directory is watched recursively; a file
// is watched through its parent directory and always passes the filters.
func (w *Watcher) Watch(paths []string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			abs := filepath.Clean(path)
			w.filterMu.Lock()
			w.explicit[abs] = true
			w.filterMu.Unlock()
			if err := w.fsWatcher.Add(filepath.Dir(abs)); err != nil {
				return err
			}
			continue
		}
		w.filterMu.Lock()
		w.roots = append(w.roots, filepath.Clean(path))
		w.filterMu.Unlock()
		if err := w.watchRecursive(path); err != nil {
			return err
		}
	}

	go w.run()
	return nil
}

// Files lists the followed files currently present under paths.
func (w *Watcher) Files(paths []string) []string {
	seen := make(map[string]bool)
	for _, root := range paths {
		_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info == nil || info.IsDir() {
				return nil
			}
			if !w.shouldExcludeFile(path) {
				seen[filepath.Clean(path)] = true
			}
			return nil
		})
	}
	out := make([]string, 0, len(seen))
	for path := range seen {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.fsWatcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.FollowEventsTotal.Inc()

			if event.Has(fsnotify.Create) {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					if err := w.watchRecursive(event.Name); err != nil {
						slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
					} else {
						w.enqueueExistingFiles(event.Name)
					}
					continue
				}
			}

			if w.shouldExcludeFile(event.Name) {
				continue
			}

			if event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) ||
				event.Has(fsnotify.Rename) {
				w.scheduleChange(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[filepath.Clean(path)] = time.Now()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flushChanges)
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]time.Time)
	w.pendingMu.Unlock()

	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)

	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	select {
	case <-w.done:
		return
	default:
	}
	w.onChange(paths)
}

func (w *Watcher) shouldExcludeFile(path string) bool {
	clean := filepath.Clean(path)
	base := strings.ToLower(filepath.Base(clean))

	w.filterMu.RLock()
	defer w.filterMu.RUnlock()

	slashed := filepath.ToSlash(clean)
	for _, g := range w.excludeFiles {
		if g.Match(base) || g.Match(slashed) {
			return true
		}
	}

	if w.explicit[clean] {
		return false
	}
	if !w.underRoot(clean) {
		return true
	}
	if w.nameFilters[base] {
		return false
	}
	return !w.extFilters[strings.ToLower(filepath.Ext(base))]
}

// underRoot reports whether path lies inside a recursively watched
// directory. Callers hold filterMu.
func (w *Watcher) underRoot(path string) bool {
	for _, root := range w.roots {
		if util.WithinDir(path, root) {
			return true
		}
	}
	return false
}

func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if w.shouldExcludeFile(path) {
			return nil
		}
		w.scheduleChange(path)
		return nil
	})
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.pendingMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.pendingMu.Unlock()
		err = w.fsWatcher.Close()
	})
	return err
}
