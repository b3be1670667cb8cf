package runner

import (
	"github.com/caffeineduck/itkpipe/pipeline"
	"github.com/caffeineduck/itkpipe/worker"
)

type config struct {
	baseURL   string
	workerURL string
	worker    *worker.Worker
	noCopy    bool
	mounts    []string
	inProcess bool
	pool      *worker.Pool
	cache     *pipeline.Cache
}

// Option configures one Run call.
type Option func(*config)

// WithPipelineBaseURL sets the URL or directory module locations are
// resolved against.
func WithPipelineBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithPipelineWorkerURL sets the compilation cache directory used when Run
// bootstraps a new worker. When set and no worker is given, Run starts a
// fresh worker instead of using the pool's default.
func WithPipelineWorkerURL(dir string) Option {
	return func(c *config) {
		c.workerURL = dir
	}
}

// WithWorker runs on w. It is equivalent to passing w to Run directly.
func WithWorker(w *worker.Worker) Option {
	return func(c *config) {
		c.worker = w
	}
}

// WithNoCopy hands inputs to the invocation without copying them first.
// The caller must not touch input buffers until Run returns.
func WithNoCopy() Option {
	return func(c *config) {
		c.noCopy = true
	}
}

// WithMountDirs makes host paths visible to the module. Files stand for
// their parent directory.
func WithMountDirs(paths ...string) Option {
	return func(c *config) {
		c.mounts = append(c.mounts, paths...)
	}
}

// WithInProcess runs the module on the calling goroutine against the
// process module cache. The result has no worker.
func WithInProcess() Option {
	return func(c *config) {
		c.inProcess = true
	}
}

// WithPool dispatches to p instead of the package default pool.
func WithPool(p *worker.Pool) Option {
	return func(c *config) {
		c.pool = p
	}
}

// WithCache sets the module cache used by in-process runs.
func WithCache(cache *pipeline.Cache) Option {
	return func(c *config) {
		c.cache = cache
	}
}
