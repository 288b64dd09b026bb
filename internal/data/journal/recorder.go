package journal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shelltree/internal/core/session"
	"shelltree/internal/shared/observability"
)

// Sink accepts journal entries. *Store writes them synchronously, *Writer
// queues them.
type Sink interface {
	Record(Entry) error
}

// Recorder journals session events. Write failures are logged and counted
// but never fail the session operation that triggered them.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

var _ session.Observer = (*Recorder)(nil)

func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger}
}

func (r *Recorder) OnAppend(_ context.Context, ev session.AppendEvent) {
	e := Entry{
		Kind:         KindAppend,
		SessionID:    ev.SessionID,
		Timestamp:    ev.At,
		FragmentSize: ev.FragmentSize,
	}
	if ev.Result != nil {
		e.Seq = ev.Result.Seq
		e.BufferSize = ev.Result.BufferSize
		e.HasErrors = ev.Result.HasErrors
		e.Report = ev.Result.Changes
	}
	r.record(e)
}

func (r *Recorder) OnReset(_ context.Context, sessionID string) {
	r.record(Entry{
		Kind:      KindReset,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	})
}

func (r *Recorder) record(e Entry) {
	if err := r.sink.Record(e); err != nil {
		if !errors.Is(err, ErrQueueFull) {
			observability.JournalWriteErrorsTotal.Inc()
		}
		r.logger.Warn("journal write failed", "session", e.SessionID, "kind", e.Kind, "error", err)
	}
}
