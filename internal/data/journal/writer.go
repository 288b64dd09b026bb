package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"shelltree/internal/shared/observability"
)

// ErrQueueFull is returned by Writer.Record when the queue is full or closed.
var ErrQueueFull = errors.New("journal queue full or closed")

// WriterOptions tunes a Writer. Zero values select the defaults.
type WriterOptions struct {
	Capacity      int
	BatchSize     int
	FlushInterval time.Duration
}

// Writer records entries from a background goroutine, one transaction per
// batch.
type Writer struct {
	store  *Store
	queue  *Queue
	opts   WriterOptions
	logger *slog.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewWriter(store *Store, opts WriterOptions, logger *slog.Logger) *Writer {
	if opts.Capacity <= 0 {
		opts.Capacity = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{
		store:  store,
		queue:  NewQueue(opts.Capacity),
		opts:   opts,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

// Record queues e. It fails with ErrQueueFull instead of blocking.
func (w *Writer) Record(e Entry) error {
	if !w.queue.Enqueue(e) {
		observability.JournalDroppedTotal.Inc()
		return ErrQueueFull
	}
	observability.JournalQueueDepth.Set(float64(w.queue.Len()))
	return nil
}

// Close stops accepting entries and waits until queued ones are written or
// ctx expires.
func (w *Writer) Close(ctx context.Context) error {
	var err error
	w.closeOnce.Do(func() {
		_ = w.queue.Close()
		select {
		case <-w.done:
		case <-ctx.Done():
			w.cancel()
			<-w.done
			err = fmt.Errorf("journal writer stopped with %d entries unwritten: %w", w.queue.Len(), ctx.Err())
		}
		w.cancel()
	})
	return err
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)

	for {
		batch, err := w.queue.DequeueBatch(ctx, w.opts.BatchSize, w.opts.FlushInterval)
		if errors.Is(err, context.Canceled) {
			return
		}
		if len(batch) > 0 {
			w.write(batch)
		}
		observability.JournalQueueDepth.Set(float64(w.queue.Len()))
		if errors.Is(err, io.EOF) {
			return
		}
	}
}

func (w *Writer) write(batch []Entry) {
	started := time.Now()
	err := w.store.RecordBatch(batch)
	observability.JournalBatchDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		observability.JournalWriteErrorsTotal.Add(float64(len(batch)))
		w.logger.Warn("journal batch write failed", "entries", len(batch), "path", w.store.Path(), "error", err)
		return
	}
	w.logger.Debug("journal batch written", "entries", len(batch), "duration", time.Since(started))
}
