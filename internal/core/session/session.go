// Package session ties a buffer, an incremental parse engine, and change
// tracking into one independently owned parse session.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shelltree/internal/core/errors"
	"shelltree/internal/engine/ast"
	"shelltree/internal/engine/buffer"
	"shelltree/internal/engine/changes"
	"shelltree/internal/engine/parser"
	"shelltree/internal/shared/observability"

	"github.com/google/uuid"
	sitter "github.com/tree-sitter/go-tree-sitter"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result is what one successful append returns. It shares nothing with the
// session.
type Result struct {
	Root       *ast.Node        `json:"root"`
	Changes    ast.ChangeReport `json:"changes"`
	HasErrors  bool             `json:"has_errors"`
	BufferSize int              `json:"buffer_size"`
	Seq        int              `json:"seq"`
}

// Session accumulates fragments and reparses incrementally after each one.
//
// Every operation holds the session lock for its whole duration, so
// concurrent callers observe appends and resets as atomic steps.
type Session struct {
	id            string
	maxBufferSize int
	policy        changes.Policy
	observer      Observer
	logger        *slog.Logger

	mu     sync.Mutex
	acc    *buffer.Accumulator
	engine *parser.Engine
	seq    int
	closed bool
}

var bashGrammar = sync.OnceValues(func() (*sitter.Language, error) {
	return parser.NewGrammarLoader().Language(parser.LanguageBash)
})

// New creates a session with its own parser.
func New(opts ...Option) (*Session, error) {
	s := &Session{
		id:            uuid.NewString(),
		maxBufferSize: buffer.DefaultMaxSize,
		policy:        changes.DefaultPolicy(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxBufferSize <= 0 {
		return nil, errors.AddContext(
			errors.New(errors.CodeValidationError, fmt.Sprintf("max buffer size must be positive, got %d", s.maxBufferSize)),
			errors.CtxSession, s.id)
	}

	lang, err := bashGrammar()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInitError, "load shell grammar")
	}
	engine, err := parser.NewEngine(lang)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxSession, s.id)
	}
	s.engine = engine
	s.acc = buffer.New(s.maxBufferSize)

	observability.ActiveSessions.Inc()
	s.logger.Debug("session created", "session", s.id, "max_buffer_size", s.maxBufferSize, "first_parse", s.policy.FirstParse, "root_range", s.policy.RootRange)
	return s, nil
}

func (s *Session) ID() string { return s.id }

// MaxBufferSize is the configured buffer bound.
func (s *Session) MaxBufferSize() int { return s.maxBufferSize }

// Append adds fragment to the buffer, reparses, and reports what changed.
//
// An oversized fragment fails with BUFFER_OVERFLOW and a parser that yields
// no tree fails with PARSE_FAILURE. Either way the buffer and tree are left
// exactly as they were.
func (s *Session) Append(ctx context.Context, fragment string) (*Result, error) {
	ctx, span := observability.Tracer().Start(ctx, "session.Append", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.Int("fragment.bytes", len(fragment)),
	))
	defer span.End()

	res, err := s.append(fragment)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.AddContext(err, errors.CtxSession, s.id)
	}
	span.SetAttributes(
		attribute.Int("changed.nodes", len(res.Changes.ChangedNodes)),
		attribute.Bool("has_errors", res.HasErrors),
	)

	if s.observer != nil {
		s.observer.OnAppend(ctx, AppendEvent{
			SessionID:    s.id,
			FragmentSize: len(fragment),
			At:           time.Now().UTC(),
			Result:       res,
		})
	}
	return res, nil
}

func (s *Session) append(fragment string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New(errors.CodeClosed, "session is closed")
	}

	edit, err := s.acc.Append(fragment)
	if err != nil {
		observability.BufferOverflowsTotal.Inc()
		s.logger.Warn("fragment rejected", "session", s.id, "fragment_size", len(fragment), "buffer_size", s.acc.Len(), "error", err)
		return nil, err
	}

	source := s.acc.Bytes()
	start := time.Now()
	reparse, err := s.engine.Reparse(edit, source)
	observability.ParsingDuration.WithLabelValues("incremental").Observe(time.Since(start).Seconds())
	if err != nil {
		s.acc.Truncate(int(edit.StartByte))
		observability.ParseFailuresTotal.Inc()
		s.logger.Error("reparse failed", "session", s.id, "buffer_size", s.acc.Len(), "error", err)
		return nil, err
	}
	defer reparse.Release()

	report := parser.TrackChanges(reparse, source, s.policy)
	s.seq++
	res := &Result{
		Root:       ast.Normalize(reparse.Root(), source),
		Changes:    report,
		HasErrors:  s.engine.HasError(),
		BufferSize: s.acc.Len(),
		Seq:        s.seq,
	}

	observability.FragmentsTotal.Inc()
	observability.FragmentBytes.Observe(float64(len(fragment)))
	observability.ChangedNodes.Observe(float64(len(report.ChangedNodes)))
	if res.HasErrors {
		observability.InvalidTreesTotal.Inc()
	}
	s.logger.Debug("fragment parsed",
		"session", s.id,
		"seq", res.Seq,
		"buffer_size", res.BufferSize,
		"changed_ranges", len(report.ChangedRanges),
		"changed_nodes", len(report.ChangedNodes),
		"has_errors", res.HasErrors,
	)
	return res, nil
}

// Reset clears the buffer and drops the tree. The next append is a first
// parse.
func (s *Session) Reset() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.AddContext(errors.New(errors.CodeClosed, "session is closed"), errors.CtxSession, s.id)
	}
	s.acc.Reset()
	s.engine.Reset()
	s.seq = 0
	s.mu.Unlock()

	s.logger.Debug("session reset", "session", s.id)
	if s.observer != nil {
		s.observer.OnReset(context.Background(), s.id)
	}
	return nil
}

// CurrentTree normalizes the stored tree without reparsing. It fails with
// NO_TREE before the first successful parse.
func (s *Session) CurrentTree() (*ast.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.engine.HasTree() {
		return nil, errors.AddContext(errors.New(errors.CodeNoTree, "no tree has been parsed yet"), errors.CtxSession, s.id)
	}
	return ast.Normalize(s.engine.Root(), s.acc.Bytes()), nil
}

// HasErrors reports whether the current tree has error or missing nodes.
// It is false when there is no tree.
func (s *Session) HasErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.engine.HasError()
}

func (s *Session) BufferSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.Len()
}

func (s *Session) BufferContents() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.String()
}

// Seq is the number of successful appends since creation or the last reset.
func (s *Session) Seq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Close releases the native parser and tree. Further appends fail with
// SESSION_CLOSED. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.engine.Close()
	observability.ActiveSessions.Dec()
	s.logger.Debug("session closed", "session", s.id)
	return nil
}
