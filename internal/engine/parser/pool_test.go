package parser

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bashPool(t *testing.T) *ParserPool {
	t.Helper()
	lang, err := NewGrammarLoader().Language(LanguageBash)
	require.NoError(t, err)
	pool, err := NewParserPool(lang)
	require.NoError(t, err)
	return pool
}

func TestNewParserPool_NilGrammar(t *testing.T) {
	_, err := NewParserPool(nil)
	require.Error(t, err)
}

func TestParserPool_GetPutTracksLeases(t *testing.T) {
	pool := bashPool(t)

	sp, err := pool.Get()
	require.NoError(t, err)
	require.NotNil(t, sp)
	assert.Equal(t, 1, pool.Stats())

	pool.Put(sp)
	assert.Equal(t, 0, pool.Stats())

	pool.Put(nil)
	assert.Equal(t, 0, pool.Stats())
}

func TestParserPool_ParsesShell(t *testing.T) {
	pool := bashPool(t)

	sp, err := pool.Get()
	require.NoError(t, err)
	defer pool.Put(sp)

	tree := sp.Parse([]byte("echo hi\n"), nil)
	require.NotNil(t, tree)
	defer tree.Close()

	root := tree.RootNode()
	assert.Equal(t, "program", root.Kind())
	assert.False(t, root.HasError())
}

func TestParserPool_LanguageSetAfterReset(t *testing.T) {
	pool := bashPool(t)

	sp, err := pool.Get()
	require.NoError(t, err)
	sp.Reset()
	pool.Put(sp)

	sp2, err := pool.Get()
	require.NoError(t, err)
	defer pool.Put(sp2)

	tree := sp2.Parse([]byte("ls -la\n"), nil)
	require.NotNil(t, tree)
	tree.Close()
}

func TestParserPool_ConcurrentAccess(t *testing.T) {
	pool := bashPool(t)

	const goroutines = 16
	const iters = 25

	var wg sync.WaitGroup
	wg.Add(goroutines)
	src := []byte("for i in 1 2 3; do echo $i; done\n")

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				sp, err := pool.Get()
				if err != nil {
					t.Errorf("get parser: %v", err)
					return
				}
				tree := sp.Parse(src, nil)
				if tree == nil {
					t.Errorf("expected non-nil parse tree")
				} else {
					tree.Close()
				}
				pool.Put(sp)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 0, pool.Stats())
}
