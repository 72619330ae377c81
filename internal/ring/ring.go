// Package ring provides a fixed-capacity circular buffer addressed by absolute series index.
package ring

import (
	"errors"
	"fmt"
)

// ErrOutOfOrder is returned when a push does not extend the valid range by exactly one index.
var ErrOutOfOrder = errors.New("ring: out-of-order push")

// Buffer keeps the most recent values of a series. The valid range is [First, Last].
type Buffer struct {
	data  []float64
	first int
	last  int
	size  int
}

// New creates a buffer holding at most capacity values.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{data: make([]float64, capacity), first: 0, last: -1}
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the number of valid values.
func (b *Buffer) Len() int { return b.size }

// First returns the oldest valid index, or -1 when empty.
func (b *Buffer) First() int {
	if b.size == 0 {
		return -1
	}
	return b.first
}

// Last returns the newest valid index, or -1 when empty.
func (b *Buffer) Last() int {
	if b.size == 0 {
		return -1
	}
	return b.last
}

// Push appends the value of index. An empty buffer accepts any index >= 0,
// afterwards index must be Last()+1. The oldest value is evicted when full.
func (b *Buffer) Push(index int, v float64) error {
	if index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrOutOfOrder, index)
	}
	if b.size > 0 && index != b.last+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, index, b.last+1)
	}
	if b.size == 0 {
		b.first = index
	}
	b.last = index
	b.data[index%len(b.data)] = v
	if b.size < len(b.data) {
		b.size++
	} else {
		b.first++
	}
	return nil
}

// At returns the value of index if it is still held.
func (b *Buffer) At(index int) (float64, bool) {
	if b.size == 0 || index < b.first || index > b.last {
		return 0, false
	}
	return b.data[index%len(b.data)], true
}

// Window copies the values of [from, to] into a new slice.
// It reports false if any index of the range is not held.
func (b *Buffer) Window(from, to int) ([]float64, bool) {
	if from > to || b.size == 0 || from < b.first || to > b.last {
		return nil, false
	}
	out := make([]float64, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, b.data[i%len(b.data)])
	}
	return out, true
}

// Reset drops every value.
func (b *Buffer) Reset() {
	b.first, b.last, b.size = 0, -1, 0
}
