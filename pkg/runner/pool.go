package runner

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize bounds concurrent drain goroutines when no size is configured.
const DefaultPoolSize = 25

// Pool caps the number of stream drains reading at once across every Runner
// that shares it. A drain gives its slot back while its observer runs, so
// nested runs need one free slot per level.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewPool creates a pool with room for size concurrent drains. Sizes below one
// use DefaultPoolSize.
func NewPool(size int) *Pool {
	if size < 1 {
		size = DefaultPoolSize
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return int(p.size)
}

// Acquire reserves n drain slots, blocking until they are free or ctx ends.
// A nil pool never blocks.
func (p *Pool) Acquire(ctx context.Context, n int) error {
	if p == nil {
		return nil
	}
	return p.sem.Acquire(ctx, p.clamp(n))
}

// Release returns n slots.
func (p *Pool) Release(n int) {
	if p == nil {
		return
	}
	p.sem.Release(p.clamp(n))
}

// clamp keeps a single run from requesting more than the pool can ever hold.
func (p *Pool) clamp(n int) int64 {
	w := int64(n)
	if w > p.size {
		w = p.size
	}
	return w
}
