package journal

import (
	"context"
	"io"
	"sync"
	"time"
)

// Queue is a bounded in-memory FIFO of entries. Enqueue never blocks.
type Queue struct {
	ch     chan Entry
	mu     sync.RWMutex
	closed bool
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Entry, capacity)}
}

// Enqueue reports false when the queue is full or closed.
func (q *Queue) Enqueue(e Entry) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

// DequeueBatch waits up to wait for a first entry, then takes whatever else
// is ready up to maxItems. It returns io.EOF once the queue is closed and
// drained, possibly alongside a final batch.
func (q *Queue) DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]Entry, error) {
	if maxItems <= 0 {
		maxItems = 1
	}
	batch := make([]Entry, 0, maxItems)

	var timer <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timer = t.C
	}

	if wait <= 0 {
		select {
		case e, ok := <-q.ch:
			if !ok {
				return nil, io.EOF
			}
			batch = append(batch, e)
		default:
			return nil, nil
		}
	} else {
		select {
		case e, ok := <-q.ch:
			if !ok {
				return nil, io.EOF
			}
			batch = append(batch, e)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer:
			return nil, nil
		}
	}

	for len(batch) < maxItems {
		select {
		case e, ok := <-q.ch:
			if !ok {
				return batch, io.EOF
			}
			batch = append(batch, e)
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	return nil
}

func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}
