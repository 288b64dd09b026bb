// Package buffer accumulates appended source fragments under a size bound
// and describes each append as an edit the incremental parser can apply.
package buffer

import (
	"fmt"
	"strings"

	"shelltree/internal/core/errors"
)

// DefaultMaxSize is the default accumulated-buffer bound (10 MiB).
const DefaultMaxSize = 10 * 1024 * 1024

// Point is a zero-based (row, column) position.
type Point struct {
	Row    uint
	Column uint
}

// Edit describes one contiguous insertion in both byte and row/column
// coordinates. Appends always report column 0 for every position.
type Edit struct {
	StartByte      uint
	OldEndByte     uint
	NewEndByte     uint
	StartPosition  Point
	OldEndPosition Point
	NewEndPosition Point
}

// OverflowError reports a fragment that would push the buffer past its bound.
type OverflowError struct {
	CurrentSize  int
	FragmentSize int
	MaxSize      int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("buffer overflow: current=%d fragment=%d max=%d", e.CurrentSize, e.FragmentSize, e.MaxSize)
}

// Accumulator owns the growing source text. It is not safe for concurrent
// use; the owning session serializes access.
type Accumulator struct {
	text    strings.Builder
	rows    uint
	maxSize int
}

// New returns an empty accumulator bounded by maxSize bytes. A non-positive
// maxSize selects DefaultMaxSize.
func New(maxSize int) *Accumulator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Accumulator{maxSize: maxSize}
}

// Append adds fragment to the buffer and returns the edit it represents.
// A fragment that does not fit is rejected without touching the buffer.
func (a *Accumulator) Append(fragment string) (Edit, error) {
	oldLen := a.text.Len()
	oldRows := a.rows

	if oldLen+len(fragment) > a.maxSize {
		overflow := &OverflowError{CurrentSize: oldLen, FragmentSize: len(fragment), MaxSize: a.maxSize}
		return Edit{}, errors.Wrap(overflow, errors.CodeBufferOverflow, "fragment does not fit in buffer")
	}

	a.text.WriteString(fragment)
	a.rows += uint(strings.Count(fragment, "\n"))

	start := Point{Row: oldRows}
	return Edit{
		StartByte:      uint(oldLen),
		OldEndByte:     uint(oldLen),
		NewEndByte:     uint(a.text.Len()),
		StartPosition:  start,
		OldEndPosition: start,
		NewEndPosition: Point{Row: a.rows},
	}, nil
}

// Truncate shrinks the buffer back to size bytes. It exists to undo an
// append whose reparse failed; sizes beyond the current length are ignored.
func (a *Accumulator) Truncate(size int) {
	if size < 0 || size >= a.text.Len() {
		return
	}
	kept := a.text.String()[:size]
	a.text.Reset()
	a.text.WriteString(kept)
	a.rows = uint(strings.Count(kept, "\n"))
}

// Reset clears the buffer.
func (a *Accumulator) Reset() {
	a.text.Reset()
	a.rows = 0
}

// Len returns the accumulated byte length.
func (a *Accumulator) Len() int { return a.text.Len() }

// Rows returns the number of newlines accumulated so far.
func (a *Accumulator) Rows() uint { return a.rows }

// MaxSize returns the configured bound.
func (a *Accumulator) MaxSize() int { return a.maxSize }

// String returns the full accumulated source.
func (a *Accumulator) String() string { return a.text.String() }

// Bytes returns a copy of the accumulated source.
func (a *Accumulator) Bytes() []byte { return []byte(a.text.String()) }
