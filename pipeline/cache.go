package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/caffeineduck/itkpipe/errors"
)

// Module is a compiled pipeline module owned by one Cache. It is immutable
// and is released when the cache closes.
type Module struct {
	key      string
	source   string
	name     string
	program  Program
	memoryIO bool
}

// Location is the resolved location the module is cached under.
func (m *Module) Location() string { return m.key }

// Source is the URL or path the bytes were actually read from.
func (m *Module) Source() string { return m.source }

// Name is the program name the module sees as argv[0].
func (m *Module) Name() string { return m.name }

// MemoryIO reports whether the module exports the memory-io ABI.
func (m *Module) MemoryIO() bool { return m.memoryIO }

// CacheStats counts cache activity.
type CacheStats struct {
	Modules int   `json:"modules"`
	Loads   int64 `json:"loads"`
	Hits    int64 `json:"hits"`
}

// Cache loads and memoizes modules for a single execution context. A cache
// is never shared between workers.
type Cache struct {
	engine  Engine
	fetcher Fetcher
	logger  *zap.Logger

	mu      sync.RWMutex
	modules map[string]*Module
	closed  bool

	group singleflight.Group
	loads atomic.Int64
	hits  atomic.Int64
}

// NewCache creates a cache with its own engine.
func NewCache(opts ...CacheOption) (*Cache, error) {
	cfg := defaultCacheConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	engine := cfg.engine
	if engine == nil {
		e, err := newWazeroEngine(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		engine = e
	}

	fetcher := cfg.fetcher
	if fetcher == nil {
		fetcher = &HTTPFetcher{}
	}

	l := cfg.logger
	if l == nil {
		l = Logger()
	}

	return &Cache{
		engine:  engine,
		fetcher: fetcher,
		logger:  l,
		modules: make(map[string]*Module),
	}, nil
}

// EnsureLoaded returns the module at location, loading it on first use.
// Concurrent calls for the same location share one load; later calls return
// the same *Module. Load failures are not cached and not retried.
func (c *Cache) EnsureLoaded(ctx context.Context, location, baseURL string) (*Module, error) {
	key, err := ResolveLocation(location, baseURL)
	if err != nil {
		return nil, errors.ModuleLoad(location, "resolve", err)
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, errors.ModuleLoad(key, "load", stderrors.New("cache closed"))
	}
	if m, ok := c.modules[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return m, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		m, ok := c.modules[key]
		c.mu.RUnlock()
		if ok {
			c.hits.Add(1)
			return m, nil
		}
		return c.load(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Module), nil
}

func (c *Cache) load(ctx context.Context, key string) (*Module, error) {
	c.loads.Add(1)

	var (
		wasm   []byte
		source string
		err    error
	)
	for _, cand := range Candidates(key) {
		wasm, err = c.fetcher.Fetch(ctx, cand)
		if err == nil {
			source = cand
			break
		}
		if !stderrors.Is(err, ErrNotFound) {
			break
		}
	}
	if err != nil {
		c.logger.Warn("module fetch failed", zap.String("location", key), zap.Error(err))
		return nil, errors.ModuleLoad(key, "fetch", err)
	}

	name := moduleName(key)
	program, err := c.engine.Compile(ctx, name, wasm)
	if err != nil {
		c.logger.Warn("module compile failed", zap.String("location", key), zap.Error(err))
		return nil, errors.ModuleLoad(key, "compile", err)
	}

	m := &Module{
		key:      key,
		source:   source,
		name:     name,
		program:  program,
		memoryIO: program.HasExport(FuncDelayedStart),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		program.Close(context.Background())
		return nil, errors.ModuleLoad(key, "load", stderrors.New("cache closed"))
	}
	c.modules[key] = m

	c.logger.Debug("module loaded",
		zap.String("location", key),
		zap.String("source", source),
		zap.Int("bytes", len(wasm)),
		zap.Bool("memory_io", m.memoryIO))
	return m, nil
}

// Lookup returns the module cached under an already resolved location.
func (c *Cache) Lookup(key string) (*Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.modules[key]
	return m, ok
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.modules)
	c.mu.RUnlock()
	return CacheStats{Modules: n, Loads: c.loads.Load(), Hits: c.hits.Load()}
}

// Close releases every module and the engine. Further loads fail.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	modules := c.modules
	c.modules = make(map[string]*Module)
	c.mu.Unlock()

	var first error
	for _, m := range modules {
		if err := m.program.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	if err := c.engine.Close(ctx); err != nil && first == nil {
		first = err
	}
	return first
}
