package follow

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shelltree/internal/core/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFollower(t *testing.T, onUpdate func(Update)) (*Follower, *session.Manager) {
	t.Helper()
	m := session.NewManager()
	t.Cleanup(func() { _ = m.Close() })
	f := NewFollower(m, Options{Debounce: 50 * time.Millisecond}, onUpdate, nil)
	t.Cleanup(f.limiters.Close)
	return f, m
}

func appendFile(t *testing.T, path, text string) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}

func nodeTexts(u Update) []string {
	out := []string{}
	for _, n := range u.Result.Changes.ChangedNodes {
		out = append(out, n.Text)
	}
	return out
}

func TestFollower_SyncAppendsNewBytes(t *testing.T) {
	f, m := newFollower(t, nil)
	path := filepath.Join(t.TempDir(), "run.sh")
	appendFile(t, path, "echo 1\n")

	u, changed := f.Sync(context.Background(), path)
	require.True(t, changed)
	require.NoError(t, u.Err)
	assert.Equal(t, []string{"echo 1"}, nodeTexts(u))
	assert.Equal(t, []string{u.SessionID}, m.List())

	appendFile(t, path, "echo 2\n")
	u, changed = f.Sync(context.Background(), path)
	require.True(t, changed)
	require.NoError(t, u.Err)
	assert.False(t, u.Reset)
	assert.Equal(t, []string{"echo 2"}, nodeTexts(u))
	assert.Equal(t, 2, u.Result.Seq)

	_, changed = f.Sync(context.Background(), path)
	assert.False(t, changed, "unchanged file is a no-op")

	sess, ok := f.Session(path)
	require.True(t, ok)
	assert.Equal(t, "echo 1\necho 2\n", sess.BufferContents())
}

func TestFollower_TruncationResetsSession(t *testing.T) {
	f, _ := newFollower(t, nil)
	path := filepath.Join(t.TempDir(), "run.sh")
	appendFile(t, path, "echo one\necho two\n")

	_, changed := f.Sync(context.Background(), path)
	require.True(t, changed)

	require.NoError(t, os.WriteFile(path, []byte("ls\n"), 0o644))
	u, changed := f.Sync(context.Background(), path)
	require.True(t, changed)
	require.NoError(t, u.Err)
	assert.True(t, u.Reset)
	assert.Equal(t, 1, u.Result.Seq)
	assert.Equal(t, []string{"ls"}, nodeTexts(u))

	sess, ok := f.Session(path)
	require.True(t, ok)
	assert.Equal(t, "ls\n", sess.BufferContents())
}

func TestFollower_RemovedFileDropsSession(t *testing.T) {
	f, m := newFollower(t, nil)
	path := filepath.Join(t.TempDir(), "run.sh")
	appendFile(t, path, "true\n")

	u, _ := f.Sync(context.Background(), path)
	require.NoError(t, u.Err)
	require.NoError(t, os.Remove(path))

	u, changed := f.Sync(context.Background(), path)
	require.True(t, changed)
	assert.True(t, u.Removed)
	assert.NoError(t, u.Err)
	assert.Empty(t, m.List())
	_, ok := f.Session(path)
	assert.False(t, ok)

	_, changed = f.Sync(context.Background(), path)
	assert.False(t, changed, "untracked missing file is ignored")
}

func TestFollower_OverflowKeepsOffset(t *testing.T) {
	m := session.NewManager(session.WithMaxBufferSize(8))
	t.Cleanup(func() { _ = m.Close() })
	f := NewFollower(m, Options{}, nil, nil)
	t.Cleanup(f.limiters.Close)

	path := filepath.Join(t.TempDir(), "run.sh")
	appendFile(t, path, "echo 1\n")
	u, _ := f.Sync(context.Background(), path)
	require.NoError(t, u.Err)

	appendFile(t, path, "echo 2\n")
	u, changed := f.Sync(context.Background(), path)
	require.True(t, changed)
	require.Error(t, u.Err)

	sess, ok := f.Session(path)
	require.True(t, ok)
	assert.Equal(t, "echo 1\n", sess.BufferContents())
}

func TestFollower_ThrottledFileDoesNotBlockOthers(t *testing.T) {
	m := session.NewManager()
	t.Cleanup(func() { _ = m.Close() })
	f := NewFollower(m, Options{MaxReparsesPerSecond: 0.001, Burst: 1}, nil, nil)
	t.Cleanup(f.limiters.Close)

	dir := t.TempDir()
	slow := filepath.Join(dir, "slow.sh")
	other := filepath.Join(dir, "other.sh")
	appendFile(t, slow, "echo 1\n")
	u, _ := f.Sync(context.Background(), slow)
	require.NoError(t, u.Err)

	appendFile(t, slow, "echo 2\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	blocked := make(chan Update, 1)
	go func() {
		u, _ := f.Sync(ctx, slow)
		blocked <- u
	}()

	select {
	case <-blocked:
		t.Fatal("second sync of a throttled file should wait for a token")
	case <-time.After(100 * time.Millisecond):
	}

	appendFile(t, other, "ls\n")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := f.Session(slow)
		assert.True(t, ok)

		u, changed := f.Sync(context.Background(), other)
		assert.True(t, changed)
		assert.NoError(t, u.Err)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("other files were blocked by the throttled one")
	}

	cancel()
	u = <-blocked
	assert.Error(t, u.Err)
	sess, ok := f.Session(slow)
	require.True(t, ok)
	assert.Equal(t, "echo 1\n", sess.BufferContents(), "a cancelled wait appends nothing")
}

func TestFollower_RunPicksUpExistingAndNewBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build.sh")
	appendFile(t, path, "make all\n")

	var (
		mu      sync.Mutex
		updates []Update
	)
	got := make(chan struct{}, 16)
	f, _ := newFollower(t, func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
		got <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, []string{dir}) }()

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial parse")
	}

	appendFile(t, path, "make test\n")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		last := updates[len(updates)-1]
		return last.Result != nil && last.Result.Seq == 2
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"make all"}, nodeTexts(updates[0]))
	assert.Equal(t, []string{"make test"}, nodeTexts(updates[len(updates)-1]))
}

func TestFollower_ApplyUpdatesLiveWatcher(t *testing.T) {
	f, _ := newFollower(t, nil)
	require.NoError(t, f.Apply(Options{MaxReparsesPerSecond: 5, Burst: 2}), "no watcher yet")

	w, err := NewWatcher(time.Second, nil, func([]string) {})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	f.watcher = w

	require.NoError(t, f.Apply(Options{Debounce: 10 * time.Millisecond, Extensions: []string{".ksh"}}))
	assert.True(t, w.extFilters[".ksh"])
	assert.Equal(t, 10*time.Millisecond, w.debounce)
	assert.Error(t, f.Apply(Options{ExcludeFiles: []string{"[bad"}}))
}
