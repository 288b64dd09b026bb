package parser

import (
	"sync"
	"time"

	"shelltree/internal/core/errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ParserPool recycles tree-sitter parsers for one-shot parses.
//
// Each pool is tied to a single grammar. Parsers are reset before they go
// back into the pool so no parse state crosses between callers.
//
//	sp, err := pool.Get()
//	if err != nil { ... }
//	defer pool.Put(sp)
//	tree := sp.Parse(source, nil)
//
// Concurrency: safe for use by multiple goroutines simultaneously.
type ParserPool struct {
	lang *sitter.Language
	pool sync.Pool

	leases   map[*sitter.Parser]time.Time
	leasesMu sync.Mutex
}

// NewParserPool creates a pool for lang. It fails when the grammar is
// rejected by the runtime, for example on an ABI mismatch.
func NewParserPool(lang *sitter.Language) (*ParserPool, error) {
	if lang == nil {
		return nil, errors.New(errors.CodeInitError, "nil grammar")
	}
	probe := sitter.NewParser()
	if err := probe.SetLanguage(lang); err != nil {
		probe.Close()
		return nil, errors.Wrap(err, errors.CodeInitError, "grammar rejected by parser runtime")
	}

	p := &ParserPool{
		lang:   lang,
		leases: make(map[*sitter.Parser]time.Time),
	}
	p.pool = sync.Pool{
		New: func() any {
			return sitter.NewParser()
		},
	}
	p.pool.Put(probe)
	return p, nil
}

// Get retrieves a parser configured for the pool's grammar.
func (p *ParserPool) Get() (*sitter.Parser, error) {
	sp := p.pool.Get().(*sitter.Parser)
	if err := sp.SetLanguage(p.lang); err != nil {
		sp.Close()
		return nil, errors.Wrap(err, errors.CodeInitError, "configure pooled parser")
	}

	p.leasesMu.Lock()
	p.leases[sp] = time.Now()
	p.leasesMu.Unlock()

	return sp, nil
}

// Put returns sp to the pool. Callers must not use sp afterwards.
func (p *ParserPool) Put(sp *sitter.Parser) {
	if sp == nil {
		return
	}

	p.leasesMu.Lock()
	delete(p.leases, sp)
	p.leasesMu.Unlock()

	sp.Reset()
	p.pool.Put(sp)
}

// Stats returns the number of parsers currently leased.
func (p *ParserPool) Stats() int {
	p.leasesMu.Lock()
	defer p.leasesMu.Unlock()
	return len(p.leases)
}
