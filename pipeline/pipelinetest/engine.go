// Package pipelinetest provides an in-process engine for testing code that
// runs pipelines, without compiling real WebAssembly.
//
// Fake pipelines are Go functions registered by name. They see the module
// side of the memory-io ABI through [Module] and read files through the
// invocation's mount table, so inputs and outputs cross exactly the same
// marshaling code as they would with a real module.
//
//	eng := pipelinetest.NewEngine()
//	eng.Register("echo", pipelinetest.Echo)
//	cache, _ := pipeline.NewCache(eng.CacheOptions()...)
package pipelinetest

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/itkpipe/marshal"
	"github.com/caffeineduck/itkpipe/mount"
	"github.com/caffeineduck/itkpipe/pipeline"
)

// Func is the body of a fake pipeline. It returns the process return code.
type Func func(ctx context.Context, m *Module) int

const magic = "pipelinetest:"

type definition struct {
	name    string
	fn      Func
	command bool
}

// Engine is a pipeline.Engine whose programs are registered Funcs.
type Engine struct {
	mu       sync.RWMutex
	defs     map[string]definition
	compiles atomic.Int64
	fetches  atomic.Int64
	closes   atomic.Int64
}

// NewEngine returns an engine with no pipelines.
func NewEngine() *Engine {
	return &Engine{defs: make(map[string]definition)}
}

// Register adds a memory-io pipeline, served as <name>.wasi.wasm.
func (e *Engine) Register(name string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defs[name] = definition{name: name, fn: fn}
}

// RegisterCommand adds a plain WASI command without the memory-io ABI,
// served as <name>.wasm.
func (e *Engine) RegisterCommand(name string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defs[name] = definition{name: name, fn: fn, command: true}
}

// Compiles counts successful compilations.
func (e *Engine) Compiles() int64 { return e.compiles.Load() }

// Fetches counts fetch attempts, including misses.
func (e *Engine) Fetches() int64 { return e.fetches.Load() }

// CacheOptions wires the engine and its fetcher into a pipeline.Cache.
func (e *Engine) CacheOptions() []pipeline.CacheOption {
	return []pipeline.CacheOption{
		pipeline.WithEngine(e),
		pipeline.WithFetcher(pipeline.FetcherFunc(e.fetch)),
	}
}

func (e *Engine) fetch(ctx context.Context, location string) ([]byte, error) {
	e.fetches.Add(1)

	base := path.Base(location)
	var name string
	var command bool
	switch {
	case strings.HasSuffix(base, ".wasi.wasm"):
		name = strings.TrimSuffix(base, ".wasi.wasm")
	case strings.HasSuffix(base, ".wasm"):
		name = strings.TrimSuffix(base, ".wasm")
		command = true
	default:
		return nil, fmt.Errorf("%s: %w", location, pipeline.ErrNotFound)
	}

	e.mu.RLock()
	def, ok := e.defs[name]
	e.mu.RUnlock()
	if !ok || def.command != command {
		return nil, fmt.Errorf("%s: %w", location, pipeline.ErrNotFound)
	}
	return []byte(magic + name), nil
}

func (e *Engine) Compile(ctx context.Context, name string, wasm []byte) (pipeline.Program, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := strings.CutPrefix(string(wasm), magic)
	if !ok {
		return nil, fmt.Errorf("compile %s: invalid magic number", name)
	}
	def, ok := e.defs[id]
	if !ok {
		return nil, fmt.Errorf("compile %s: unknown pipeline %q", name, id)
	}
	e.compiles.Add(1)
	return &program{engine: e, def: def}, nil
}

// Close only counts: one engine may back the caches of many workers.
func (e *Engine) Close(ctx context.Context) error {
	e.closes.Add(1)
	return nil
}

// Closes counts Close calls, one per closed cache.
func (e *Engine) Closes() int64 { return e.closes.Load() }

type program struct {
	engine *Engine
	def    definition
}

var memoryIOExports = map[string]bool{
	pipeline.FuncInitialize:        true,
	pipeline.FuncDelayedStart:      true,
	pipeline.FuncDelayedExit:       true,
	marshal.FuncInputArrayAlloc:    true,
	marshal.FuncInputJSONAlloc:     true,
	marshal.FuncOutputJSONAddress:  true,
	marshal.FuncOutputJSONSize:     true,
	marshal.FuncOutputArrayAddress: true,
	marshal.FuncOutputArraySize:    true,
}

func (p *program) HasExport(name string) bool {
	if p.def.command {
		return name == pipeline.FuncStart
	}
	return memoryIOExports[name]
}

func (p *program) Instantiate(ctx context.Context, cfg pipeline.InstanceConfig) (pipeline.Instance, error) {
	stdout, stderr := cfg.Stdout, cfg.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Module{
		Name:    cfg.Name,
		Args:    append([]string(nil), cfg.Args...),
		Stdout:  stdout,
		Stderr:  stderr,
		FS:      cfg.Mounts,
		program: p,
		mem:     make([]byte, 8),
		inputs:  make(map[int]*slot),
		outputs: make(map[int]*slot),
	}, nil
}

func (p *program) Close(ctx context.Context) error { return nil }

// NewModule returns a standalone memory-io instance whose entry point runs
// fn. It lets marshaling code be tested without a cache.
func NewModule(fn Func, fsys *mount.Set, args ...string) *Module {
	p := &program{def: definition{name: "module", fn: fn}}
	inst, _ := p.Instantiate(context.Background(), pipeline.InstanceConfig{
		Name:   "module",
		Args:   args,
		Mounts: fsys,
	})
	return inst.(*Module)
}
