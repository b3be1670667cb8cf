package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/pipeline"
)

// ErrWorkerBusy is the cause of the WorkerUnavailable error returned when a
// worker already has an invocation in flight. Workers do not queue.
var ErrWorkerBusy = errors.New("worker busy")

// State is the lifecycle state of a Worker.
type State int32

const (
	Idle State = iota
	Busy
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Stats describes one worker.
type Stats struct {
	ID          string              `json:"id"`
	State       string              `json:"state"`
	Invocations int64               `json:"invocations"`
	Cache       pipeline.CacheStats `json:"cache"`
	Created     time.Time           `json:"created"`
}

type job struct {
	req   pipeline.Request
	reply chan reply
}

type reply struct {
	env *pipeline.Envelope
	err error
}

// Worker is a background execution context with its own module cache. It
// runs one invocation at a time on a dedicated goroutine.
type Worker struct {
	id      string
	created time.Time
	cache   *pipeline.Cache
	logger  *zap.Logger

	state       atomic.Int32
	invocations atomic.Int64

	requests chan job
	ctx      context.Context // cancelled by Terminate; aborts the running instance
	cancel   context.CancelFunc
	done     chan struct{}
	exited   chan struct{}
	once     sync.Once
}

// New starts a worker.
func New(opts ...Option) (*Worker, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.NewString()
	logger := cfg.logger
	if logger == nil {
		logger = pipeline.Logger()
	}
	logger = logger.With(zap.String("worker", id))

	cache, err := pipeline.NewCache(append(cfg.cacheOptions, pipeline.WithLogger(logger))...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		id:       id,
		created:  time.Now(),
		cache:    cache,
		logger:   logger,
		requests: make(chan job),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go w.loop()
	logger.Debug("worker started")
	return w, nil
}

// ID returns the worker's unique identifier.
func (w *Worker) ID() string { return w.id }

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Cache returns the worker's module cache.
func (w *Worker) Cache() *pipeline.Cache { return w.cache }

// Stats returns a snapshot of the worker's counters.
func (w *Worker) Stats() Stats {
	return Stats{
		ID:          w.id,
		State:       w.State().String(),
		Invocations: w.invocations.Load(),
		Cache:       w.cache.Stats(),
		Created:     w.created,
	}
}

// Submit runs req on the worker and waits for its result.
//
// A busy worker rejects the request with a WorkerUnavailable error wrapping
// ErrWorkerBusy; a terminated one with WorkerUnavailable. If the worker is
// terminated while req runs, Submit returns WorkerTerminated at once. ctx
// bounds only how long Submit waits: when it expires the invocation keeps
// running and the worker stays busy until it finishes.
//
// A failed invocation returns both the envelope and the InvocationFailure.
func (w *Worker) Submit(ctx context.Context, req pipeline.Request) (*pipeline.Envelope, error) {
	if !w.state.CompareAndSwap(int32(Idle), int32(Busy)) {
		if w.State() == Terminated {
			return nil, errors.WorkerUnavailable(w.id, "worker terminated")
		}
		e := errors.WorkerUnavailable(w.id, "")
		e.Cause = ErrWorkerBusy
		return nil, e
	}

	j := job{req: req, reply: make(chan reply, 1)}
	select {
	case w.requests <- j:
	case <-w.done:
		return nil, errors.WorkerUnavailable(w.id, "worker terminated")
	}

	select {
	case r := <-j.reply:
		return r.env, r.err
	case <-w.done:
		return nil, errors.WorkerTerminated(w.id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Terminate stops the worker. An in-flight invocation is aborted and its
// Submit returns WorkerTerminated; the module cache is released once the
// worker goroutine exits. Terminate is idempotent.
func (w *Worker) Terminate() {
	w.once.Do(func() {
		w.state.Store(int32(Terminated))
		w.cancel()
		close(w.done)
		w.logger.Debug("worker terminated")
	})
}

// Wait blocks until the worker goroutine has exited and its cache is closed.
func (w *Worker) Wait() { <-w.exited }

func (w *Worker) loop() {
	defer close(w.exited)
	defer func() {
		if err := w.cache.Close(context.Background()); err != nil {
			w.logger.Warn("closing module cache", zap.Error(err))
		}
	}()

	for {
		select {
		case j := <-w.requests:
			env, err := w.run(j.req)
			// Terminate may have raced the state back; it always wins.
			w.state.CompareAndSwap(int32(Busy), int32(Idle))
			moved, herr := env.Handoff()
			if herr != nil {
				err = herr
			}
			j.reply <- reply{env: moved, err: err}
		case <-w.done:
			return
		}
	}
}

func (w *Worker) run(req pipeline.Request) (*pipeline.Envelope, error) {
	w.invocations.Add(1)
	start := time.Now()

	m, err := w.cache.EnsureLoaded(w.ctx, req.Location, req.BaseURL)
	if err != nil {
		w.logger.Debug("module load failed", zap.String("location", req.Location), zap.Error(err))
		return pipeline.NewEnvelope(nil), err
	}

	res, err := pipeline.Invoke(w.ctx, m, req)
	fields := []zap.Field{
		zap.String("module", m.Name()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if res != nil {
		fields = append(fields, zap.Int("rc", res.ReturnValue))
	}
	if err != nil {
		w.logger.Debug("invocation failed", append(fields, zap.Error(err))...)
	} else {
		w.logger.Debug("invocation done", fields...)
	}
	return pipeline.NewEnvelope(res), err
}
