package pipeline

import (
	"context"
	"io"

	"github.com/caffeineduck/itkpipe/marshal"
	"github.com/caffeineduck/itkpipe/mount"
)

// Engine compiles module bytes into programs. The default engine is backed
// by wazero; tests substitute an in-process one.
type Engine interface {
	Compile(ctx context.Context, name string, wasm []byte) (Program, error)
	Close(ctx context.Context) error
}

// Program is a compiled module that can be instantiated any number of times.
type Program interface {
	// HasExport reports whether the module exports a function called name.
	HasExport(name string) bool
	Instantiate(ctx context.Context, cfg InstanceConfig) (Instance, error)
	Close(ctx context.Context) error
}

// InstanceConfig describes the sandbox of one instance. Args excludes the
// program name.
type InstanceConfig struct {
	Name   string
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
	Mounts *mount.Set
}

// Instance is one live instantiation. Start functions are never run
// implicitly; the invoker drives the entry points itself.
type Instance interface {
	marshal.ABI
	HasExport(name string) bool
	Close(ctx context.Context) error
}

// Entry points of the WASI and memory-io conventions.
const (
	FuncInitialize   = "_initialize"
	FuncStart        = "_start"
	FuncDelayedStart = "itk_wasm_delayed_start"
	FuncDelayedExit  = "itk_wasm_delayed_exit"
)
