package propagate

import (
	"context"
	"errors"
	"sync"

	"github.com/mvailla/spantree"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("pool closed")

// job pairs a task with the span that was current when it was submitted.
type job struct {
	task func(ctx context.Context)
	span spantree.Span
	has  bool
}

// Pool is a fixed-size worker pool that carries trace context. The span is
// captured at submission time, not execution time: two callers inside
// different traces can share one pool and each task still lands under the
// span of whoever submitted it.
type Pool struct {
	jobs    chan job
	done    chan struct{}
	workers sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool starts a pool with the given number of workers.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{jobs: make(chan job), done: make(chan struct{})}
	p.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.workers.Done()
	for {
		select {
		case j := <-p.jobs:
			ctx := context.Background()
			if j.has {
				ctx = spantree.ContextWithSpan(ctx, j.span)
			}
			j.task(ctx)
		case <-p.done:
			return
		}
	}
}

// Submit hands task to a worker, capturing the caller's current span. Blocks
// while all workers are busy; a blocked Submit unblocks on ctx cancellation
// or on Close. The jobs channel is never closed, so blocked submitters race
// Close safely through the done channel instead.
func (p *Pool) Submit(ctx context.Context, task func(ctx context.Context)) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}

	span, has := spantree.SpanFromContext(ctx)
	select {
	case p.jobs <- job{task: task, span: span, has: has}:
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and releases the workers. A task a worker is
// already running finishes.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
}

// Wait blocks until the workers have exited. Call Close first.
func (p *Pool) Wait() {
	p.workers.Wait()
}
