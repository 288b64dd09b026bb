package journal

import (
	"context"
	"testing"

	"shelltree/internal/core/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_JournalsSessionActivity(t *testing.T) {
	store := openStore(t)
	s, err := session.New(session.WithObserver(NewRecorder(store, nil)), session.WithID("repl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	_, err = s.Append(ctx, "echo 1\n")
	require.NoError(t, err)
	_, err = s.Append(ctx, "echo 2\n")
	require.NoError(t, err)
	require.NoError(t, s.Reset())

	entries, err := store.List("repl", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, KindAppend, entries[0].Kind)
	assert.Equal(t, 1, entries[0].Seq)
	assert.Equal(t, 7, entries[0].FragmentSize)

	assert.Equal(t, 2, entries[1].Seq)
	assert.Equal(t, 14, entries[1].BufferSize)
	require.Len(t, entries[1].Report.ChangedNodes, 1)
	assert.Equal(t, "echo 2", entries[1].Report.ChangedNodes[0].Text)

	assert.Equal(t, KindReset, entries[2].Kind)
}

func TestRecorder_WriteFailureDoesNotFailAppend(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Close())

	s, err := session.New(session.WithObserver(NewRecorder(store, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Append(context.Background(), "ls\n")
	assert.NoError(t, err)
}
