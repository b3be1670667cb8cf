package worker

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/pipeline"
)

// Pool tracks a bounded set of workers and one designated default worker.
type Pool struct {
	cfg poolConfig

	mu      sync.Mutex
	workers []*Worker
	def     *Worker
	closed  bool
}

// NewPool creates an empty pool. Workers are started on demand.
func NewPool(opts ...PoolOption) *Pool {
	var cfg poolConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pool{cfg: cfg}
}

// NewWorker starts a worker owned by the pool, applying opts after the
// pool's worker options. It fails with WorkerUnavailable when the pool is
// closed or full.
func (p *Pool) NewWorker(opts ...Option) (*Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.newWorkerLocked(opts...)
}

func (p *Pool) newWorkerLocked(opts ...Option) (*Worker, error) {
	if p.closed {
		return nil, errors.WorkerUnavailable("", "pool closed")
	}
	p.pruneLocked()
	if p.cfg.maxWorkers > 0 && len(p.workers) >= p.cfg.maxWorkers {
		return nil, errors.WorkerUnavailable("", fmt.Sprintf("pool is full (%d workers)", p.cfg.maxWorkers))
	}
	w, err := New(append(slices.Clone(p.cfg.workerOptions), opts...)...)
	if err != nil {
		return nil, err
	}
	p.workers = append(p.workers, w)
	return w, nil
}

// pruneLocked forgets workers terminated outside the pool.
func (p *Pool) pruneLocked() {
	p.workers = slices.DeleteFunc(p.workers, func(w *Worker) bool {
		return w.State() == Terminated
	})
	if p.def != nil && p.def.State() == Terminated {
		p.def = nil
	}
}

// Default returns the default worker, starting it on first use and again
// after the previous default was terminated.
func (p *Pool) Default() (*Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.def != nil && p.def.State() != Terminated {
		return p.def, nil
	}
	w, err := p.newWorkerLocked()
	if err != nil {
		return nil, err
	}
	p.def = w
	return w, nil
}

// Submit runs req on w, or on the default worker when w is nil.
func (p *Pool) Submit(ctx context.Context, w *Worker, req pipeline.Request) (*pipeline.Envelope, error) {
	if w == nil {
		var err error
		if w, err = p.Default(); err != nil {
			return nil, err
		}
	}
	return w.Submit(ctx, req)
}

// Terminate stops w and removes it from the pool. A nil w is ignored.
func (p *Pool) Terminate(w *Worker) {
	if w == nil {
		return
	}
	w.Terminate()
	p.mu.Lock()
	p.pruneLocked()
	p.mu.Unlock()
}

// Get returns the live worker with the given ID.
func (p *Pool) Get(id string) (*Worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked()
	for _, w := range p.workers {
		if w.ID() == id {
			return w, true
		}
	}
	return nil, false
}

// Workers returns the live workers in creation order.
func (p *Pool) Workers() []*Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked()
	return slices.Clone(p.workers)
}

// Close terminates every worker and waits for them to release their caches.
// A closed pool starts no new workers.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	workers := p.workers
	p.workers = nil
	p.def = nil
	p.mu.Unlock()

	for _, w := range workers {
		w.Terminate()
	}
	for _, w := range workers {
		w.Wait()
	}
}
