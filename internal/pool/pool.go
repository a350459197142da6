// Package pool bounds concurrent outbound calls to the capability
// services.
package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent outbound tool executions using a weighted
// semaphore. Steps within one workflow already run sequentially; the
// pool caps total pressure across sessions so a burst of workflows
// cannot exhaust the capability upstreams.
type Pool struct {
	sem *semaphore.Weighted
}

// New creates a Pool that allows at most limit concurrent calls.
func New(limit int64) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(limit)}
}

// Run acquires a slot, runs fn, and releases the slot.
// Blocks if all slots are busy. Returns ctx.Err() if the context
// is cancelled while waiting for a slot.
// If the pool is nil, fn is executed directly without concurrency control.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
