package pipeline

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// CacheOption configures a Cache at creation time.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = wazero default (4GB)
	fetcher          Fetcher
	engine           Engine
	logger           *zap.Logger
}

func defaultCacheConfig() cacheConfig {
	return cacheConfig{}
}

// WithDiskCache enables the persistent compilation cache, so that a fresh
// worker skips native compilation of modules any worker compiled before.
// Optionally provide a custom directory; otherwise uses ~/.cache/itkpipe or
// XDG_CACHE_HOME/itkpipe.
//
// Examples:
//
//	pipeline.NewCache(pipeline.WithDiskCache())            // default dir
//	pipeline.NewCache(pipeline.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) CacheOption {
	return func(c *cacheConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit sets the maximum memory available to each instance.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(1024) = 64MB max
//   - WithMemoryLimit(16384) = 1GB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) CacheOption {
	return func(c *cacheConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
	MemoryLimit2GB   uint32 = 32768 // 2 GB
)

// WithFetcher replaces the HTTP/file fetcher used to obtain module bytes.
func WithFetcher(f Fetcher) CacheOption {
	return func(c *cacheConfig) {
		c.fetcher = f
	}
}

// WithEngine replaces the wazero engine. Disk cache and memory limit
// options only apply to the default engine.
func WithEngine(e Engine) CacheOption {
	return func(c *cacheConfig) {
		c.engine = e
	}
}

// WithLogger sets the logger of one cache instead of the package logger.
func WithLogger(l *zap.Logger) CacheOption {
	return func(c *cacheConfig) {
		c.logger = l
	}
}

// DefaultCacheDir is the compilation cache directory used when WithDiskCache
// is given no directory.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "itkpipe")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "itkpipe")
	}
	return filepath.Join(os.TempDir(), "itkpipe-cache")
}
