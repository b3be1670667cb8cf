package worker

import (
	"go.uber.org/zap"

	"github.com/caffeineduck/itkpipe/pipeline"
)

type config struct {
	cacheOptions []pipeline.CacheOption
	logger       *zap.Logger
}

// Option configures a Worker.
type Option func(*config)

// WithCacheOptions passes options to the worker's private module cache.
func WithCacheOptions(opts ...pipeline.CacheOption) Option {
	return func(c *config) {
		c.cacheOptions = append(c.cacheOptions, opts...)
	}
}

// WithCompilationCache makes the worker's cache persist compiled modules in
// dir, so a freshly started worker skips compiling modules seen before.
func WithCompilationCache(dir string) Option {
	return func(c *config) {
		c.cacheOptions = append(c.cacheOptions, pipeline.WithDiskCache(dir))
	}
}

// WithLogger sets the worker's logger. The default is the pipeline package
// logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

type poolConfig struct {
	maxWorkers    int
	workerOptions []Option
}

// PoolOption configures a Pool.
type PoolOption func(*poolConfig)

// WithMaxWorkers bounds the number of live workers. 0 means unbounded.
func WithMaxWorkers(n int) PoolOption {
	return func(c *poolConfig) {
		c.maxWorkers = n
	}
}

// WithWorkerOptions applies opts to every worker the pool creates.
func WithWorkerOptions(opts ...Option) PoolOption {
	return func(c *poolConfig) {
		c.workerOptions = append(c.workerOptions, opts...)
	}
}
