package pipeline

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/caffeineduck/itkpipe/mount"
)

type wazeroEngine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
}

func newWazeroEngine(ctx context.Context, cfg cacheConfig) (*wazeroEngine, error) {
	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = DefaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	return &wazeroEngine{runtime: rt, cache: cache}, nil
}

func (e *wazeroEngine) Compile(ctx context.Context, name string, wasm []byte) (Program, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return &wazeroProgram{runtime: e.runtime, compiled: compiled}, nil
}

func (e *wazeroEngine) Close(ctx context.Context) error {
	var first error
	if err := e.runtime.Close(ctx); err != nil {
		first = err
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type wazeroProgram struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

func (p *wazeroProgram) HasExport(name string) bool {
	_, ok := p.compiled.ExportedFunctions()[name]
	return ok
}

func (p *wazeroProgram) Instantiate(ctx context.Context, cfg InstanceConfig) (Instance, error) {
	fsConfig := wazero.NewFSConfig()
	if cfg.Mounts != nil {
		for _, m := range cfg.Mounts.Mounts() {
			if m.Mode == mount.ReadOnly {
				fsConfig = fsConfig.WithReadOnlyDirMount(m.HostPath, m.VirtualPath)
			} else {
				fsConfig = fsConfig.WithDirMount(m.HostPath, m.VirtualPath)
			}
		}
	}

	args := append([]string{cfg.Name}, cfg.Args...)
	moduleConfig := wazero.NewModuleConfig().
		WithArgs(args...).
		WithFSConfig(fsConfig).
		WithSysWalltime().
		WithSysNanotime().
		WithStartFunctions().
		WithName("")
	if cfg.Stdout != nil {
		moduleConfig = moduleConfig.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		moduleConfig = moduleConfig.WithStderr(cfg.Stderr)
	}

	mod, err := p.runtime.InstantiateModule(ctx, p.compiled, moduleConfig)
	if err != nil {
		return nil, err
	}
	return &wazeroInstance{mod: mod}, nil
}

func (p *wazeroProgram) Close(ctx context.Context) error {
	return p.compiled.Close(ctx)
}

type wazeroInstance struct {
	mod api.Module
}

func (i *wazeroInstance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("export %s not found", name)
	}
	return fn.Call(ctx, params...)
}

func (i *wazeroInstance) Read(offset, size uint32) ([]byte, bool) {
	mem := i.mod.Memory()
	if mem == nil {
		return nil, false
	}
	return mem.Read(offset, size)
}

func (i *wazeroInstance) Write(offset uint32, data []byte) bool {
	mem := i.mod.Memory()
	if mem == nil {
		return false
	}
	return mem.Write(offset, data)
}

func (i *wazeroInstance) HasExport(name string) bool {
	return i.mod.ExportedFunction(name) != nil
}

func (i *wazeroInstance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}
