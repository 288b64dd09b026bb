package session

import (
	"context"
	"log/slog"
	"time"

	"shelltree/internal/engine/changes"
)

// Option configures a Session.
type Option func(*Session)

// WithMaxBufferSize bounds the accumulated source. New rejects a
// non-positive bound.
func WithMaxBufferSize(n int) Option {
	return func(s *Session) { s.maxBufferSize = n }
}

// WithFirstParsePolicy selects what a first parse reports as changed.
func WithFirstParsePolicy(p changes.FirstParsePolicy) Option {
	return func(s *Session) {
		if p != "" {
			s.policy.FirstParse = p
		}
	}
}

// WithRootRangePolicy selects what a changed range only the root contains
// is reported as.
func WithRootRangePolicy(p changes.RootRangePolicy) Option {
	return func(s *Session) {
		if p != "" {
			s.policy.RootRange = p
		}
	}
}

// WithObserver receives an event after every successful append and reset.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// Observer is notified outside the session lock, so it may call back into
// the session's read-only methods.
type Observer interface {
	OnAppend(ctx context.Context, ev AppendEvent)
	OnReset(ctx context.Context, sessionID string)
}

// AppendEvent describes one accepted fragment.
type AppendEvent struct {
	SessionID    string
	FragmentSize int
	At           time.Time
	Result       *Result
}

// Observers fans out to several observers in order.
type Observers []Observer

func (o Observers) OnAppend(ctx context.Context, ev AppendEvent) {
	for _, obs := range o {
		obs.OnAppend(ctx, ev)
	}
}

func (o Observers) OnReset(ctx context.Context, sessionID string) {
	for _, obs := range o {
		obs.OnReset(ctx, sessionID)
	}
}
