// Package parser drives the tree-sitter shell grammar: one-shot parses
// through pooled parsers and incremental reparses through an Engine.
package parser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shelltree/internal/core/errors"
	"shelltree/internal/engine/ast"
	"shelltree/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Parser performs stateless parses. Pools are created lazily per language.
type Parser struct {
	loader *GrammarLoader

	mu    sync.Mutex
	pools map[string]*ParserPool
}

func NewParser(loader *GrammarLoader) *Parser {
	return &Parser{
		loader: loader,
		pools:  make(map[string]*ParserPool),
	}
}

// Loader exposes the grammar loader backing p.
func (p *Parser) Loader() *GrammarLoader { return p.loader }

func (p *Parser) pool(lang string) (*ParserPool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok := p.pools[lang]; ok {
		return pool, nil
	}
	grammar, err := p.loader.Language(lang)
	if err != nil {
		return nil, err
	}
	pool, err := NewParserPool(grammar)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxLanguage, lang)
	}
	p.pools[lang] = pool
	return pool, nil
}

// Parse parses content from scratch and returns its normalized tree.
// Syntax errors do not fail the parse; they show up as node flags.
func (p *Parser) Parse(ctx context.Context, lang string, content []byte) (*ast.Node, error) {
	ctx, span := observability.Tracer().Start(ctx, "parser.Parse", trace.WithAttributes(
		attribute.String("language", lang),
		attribute.Int("bytes", len(content)),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pool, err := p.pool(lang)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	sp, err := pool.Get()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer pool.Put(sp)

	start := time.Now()
	tree := sp.Parse(content, nil)
	observability.ParsingDuration.WithLabelValues("oneshot").Observe(time.Since(start).Seconds())
	if tree == nil {
		observability.ParseFailuresTotal.Inc()
		err := errors.AddContext(errors.New(errors.CodeParseFailure, "parser produced no tree"), errors.CtxLanguage, lang)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer tree.Close()

	root := ast.Normalize(Syntax(tree.RootNode()), content)
	span.SetAttributes(attribute.Bool("has_error", root.Flags.HasError))
	return root, nil
}

// ParseFile detects the language of path, falling back to a "#!" line in
// content, and parses content.
func (p *Parser) ParseFile(ctx context.Context, path string, content []byte) (*ast.Node, error) {
	lang := p.loader.DetectLanguage(path, content)
	if lang == "" {
		return nil, errors.AddContext(
			errors.New(errors.CodeNotSupported, fmt.Sprintf("no grammar for %s", path)),
			errors.CtxPath, path,
		)
	}
	root, err := p.Parse(ctx, lang, content)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return root, nil
}

var defaultParser = sync.OnceValue(func() *Parser {
	return NewParser(NewGrammarLoader())
})

// ParseOnce parses a complete shell script with no incremental state.
func ParseOnce(ctx context.Context, content []byte) (*ast.Node, error) {
	return defaultParser().Parse(ctx, LanguageBash, content)
}
