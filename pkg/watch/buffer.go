package watch

import (
	"bytes"
	"sync"
)

const (
	// BufferMax bounds the output retained for the body.
	BufferMax = 200 * 1024
	// BufferTrim is how much of the oldest output is dropped once BufferMax
	// is exceeded.
	BufferTrim = 100 * 1024
)

// Buffer retains the most recent output up to a bound. Trimming advances to
// the next line boundary so lines are never split, except for a single line
// longer than the retained window.
type Buffer struct {
	mu      sync.Mutex
	data    []byte
	max     int
	trim    int
	dropped int64
}

// NewBuffer creates a buffer holding at most max bytes and dropping trim bytes
// at a time. Invalid values fall back to BufferMax and BufferTrim.
func NewBuffer(max, trim int) *Buffer {
	if max <= 0 {
		max = BufferMax
	}
	if trim <= 0 || trim > max {
		trim = max / 2
		if trim == 0 {
			trim = max
		}
	}
	return &Buffer{max: max, trim: trim}
}

// Append adds text and trims if the bound is exceeded.
func (b *Buffer) Append(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, text...)
	for len(b.data) > b.max {
		cut := b.trim
		if i := bytes.IndexByte(b.data[cut:], '\n'); i >= 0 {
			cut += i + 1
		}
		b.dropped += int64(cut)
		b.data = append(b.data[:0], b.data[cut:]...)
	}
}

// String returns the retained text.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// Len returns the retained size in bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Dropped returns how many bytes were trimmed so far.
func (b *Buffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
