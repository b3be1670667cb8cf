package runner

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/mount"
	"github.com/caffeineduck/itkpipe/pipeline"
	"github.com/caffeineduck/itkpipe/worker"
)

// Result is the outcome of Run. Outputs is populated exactly when
// ReturnValue is 0. Worker is the worker that ran the module, for reuse by
// the next call; it is nil for in-process runs.
type Result struct {
	Worker      *worker.Worker
	ReturnValue int
	Stdout      string
	Stderr      string
	Outputs     []pipeline.Output
}

var (
	defaultMu    sync.Mutex
	defaultPool  *worker.Pool
	processCache *pipeline.Cache
)

// DefaultPool returns the package pool used when no WithPool option is
// given, creating it on first use.
func DefaultPool() *worker.Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool == nil {
		defaultPool = worker.NewPool()
	}
	return defaultPool
}

// ProcessCache returns the module cache shared by in-process runs that do
// not set WithCache.
func ProcessCache() (*pipeline.Cache, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if processCache == nil {
		c, err := pipeline.NewCache()
		if err != nil {
			return nil, err
		}
		processCache = c
	}
	return processCache, nil
}

// Shutdown terminates the default pool and closes the process cache. Later
// calls recreate them.
func Shutdown(ctx context.Context) error {
	defaultMu.Lock()
	pool, cache := defaultPool, processCache
	defaultPool, processCache = nil, nil
	defaultMu.Unlock()

	if pool != nil {
		pool.Close()
	}
	if cache != nil {
		return cache.Close(ctx)
	}
	return nil
}

// Run invokes module with args and the declared outputs and inputs.
//
// It runs in-process with WithInProcess, on w when w is non-nil, on a new
// worker when WithPipelineWorkerURL is set, and on the pool's default
// worker otherwise. Inputs are deep-copied before dispatch unless
// WithNoCopy is given.
//
// A non-zero return code yields a Result with empty Outputs together with
// an InvocationFailure error.
func Run(ctx context.Context, w *worker.Worker, module string, args []string, outputs []pipeline.Output, inputs []pipeline.Input, opts ...Option) (*Result, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if w == nil {
		w = cfg.worker
	}
	if module == "" {
		return nil, errors.InvalidArgument("run", "module location is required")
	}

	req := pipeline.Request{
		Location: module,
		BaseURL:  cfg.baseURL,
		Args:     append([]string(nil), args...),
		Outputs:  append([]pipeline.Output(nil), outputs...),
		Inputs:   inputs,
		Mounts:   mount.ResolveMounts(cfg.mounts),
	}
	if !cfg.noCopy {
		req.Inputs = copyInputs(inputs)
	}

	log := pipeline.Logger().With(zap.String("module", module))

	if cfg.inProcess {
		log.Debug("running in process")
		return runInProcess(ctx, cfg, req)
	}

	if w == nil {
		pool := cfg.pool
		if pool == nil {
			pool = DefaultPool()
		}
		var err error
		if cfg.workerURL != "" {
			w, err = pool.NewWorker(worker.WithCompilationCache(cfg.workerURL))
		} else {
			w, err = pool.Default()
		}
		if err != nil {
			return nil, err
		}
	}

	log.Debug("dispatching", zap.String("worker", w.ID()))
	env, err := w.Submit(ctx, req)
	if env == nil {
		return nil, err
	}
	res, rerr := env.Result()
	if rerr != nil {
		return nil, rerr
	}
	return newResult(w, res), err
}

func runInProcess(ctx context.Context, cfg config, req pipeline.Request) (*Result, error) {
	cache := cfg.cache
	if cache == nil {
		var err error
		if cache, err = ProcessCache(); err != nil {
			return nil, err
		}
	}
	m, err := cache.EnsureLoaded(ctx, req.Location, req.BaseURL)
	if err != nil {
		return nil, err
	}
	res, err := pipeline.Invoke(ctx, m, req)
	if res == nil {
		return nil, err
	}
	return newResult(nil, res), err
}

func newResult(w *worker.Worker, res *pipeline.Result) *Result {
	if res == nil {
		return &Result{Worker: w}
	}
	out := &Result{
		Worker:      w,
		ReturnValue: res.ReturnValue,
		Stdout:      res.Stdout,
		Stderr:      res.Stderr,
	}
	if res.ReturnValue == 0 {
		out.Outputs = res.Outputs
	}
	return out
}

func copyInputs(inputs []pipeline.Input) []pipeline.Input {
	if inputs == nil {
		return nil
	}
	out := make([]pipeline.Input, len(inputs))
	for i, in := range inputs {
		out[i] = in
		if in.Value != nil {
			out[i].Value = in.Value.Clone()
		}
	}
	return out
}
