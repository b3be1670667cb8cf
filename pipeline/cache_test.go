package pipeline_test

import (
	"context"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/pipeline"
	"github.com/caffeineduck/itkpipe/pipeline/pipelinetest"
)

func newTestCache(t *testing.T, eng *pipelinetest.Engine) *pipeline.Cache {
	t.Helper()
	cache, err := pipeline.NewCache(eng.CacheOptions()...)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(func() { cache.Close(context.Background()) })
	return cache
}

func TestEnsureLoadedIdempotent(t *testing.T) {
	eng := pipelinetest.NewEngine()
	eng.Register("echo", pipelinetest.Echo)
	cache := newTestCache(t, eng)
	ctx := context.Background()

	first, err := cache.EnsureLoaded(ctx, "echo", "/pipelines")
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := cache.EnsureLoaded(ctx, "echo", "/pipelines")
	if err != nil {
		t.Fatalf("second load: %v", err)
	}

	if first != second {
		t.Error("expected the same module handle on the second call")
	}
	if eng.Compiles() != 1 {
		t.Errorf("expected 1 compile, got %d", eng.Compiles())
	}
	stats := cache.Stats()
	if stats.Loads != 1 || stats.Hits != 1 || stats.Modules != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if !first.MemoryIO() {
		t.Error("registered pipeline should expose the memory-io ABI")
	}
	if first.Name() != "echo" {
		t.Errorf("module name %q", first.Name())
	}
	if filepath.Base(first.Source()) != "echo.wasi.wasm" {
		t.Errorf("source %q", first.Source())
	}
}

func TestEnsureLoadedConcurrent(t *testing.T) {
	eng := pipelinetest.NewEngine()
	eng.Register("echo", pipelinetest.Echo)
	cache := newTestCache(t, eng)

	mods := make([]*pipeline.Module, 16)
	var g errgroup.Group
	for i := range mods {
		g.Go(func() error {
			m, err := cache.EnsureLoaded(context.Background(), "echo", "/pipelines")
			mods[i] = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i, m := range mods {
		if m != mods[0] {
			t.Errorf("caller %d got a different handle", i)
		}
	}
	if eng.Compiles() != 1 {
		t.Errorf("expected 1 compile, got %d", eng.Compiles())
	}
}

func TestEnsureLoadedFailureNotCached(t *testing.T) {
	eng := pipelinetest.NewEngine()
	cache := newTestCache(t, eng)
	ctx := context.Background()

	_, err := cache.EnsureLoaded(ctx, "missing", "/pipelines")
	if !errors.Is(err, errors.ErrModuleLoad) {
		t.Fatalf("expected ErrModuleLoad, got %v", err)
	}
	// Both candidate names are tried before giving up.
	if eng.Fetches() != 2 {
		t.Errorf("expected 2 fetch attempts, got %d", eng.Fetches())
	}

	eng.Register("missing", pipelinetest.Echo)
	if _, err := cache.EnsureLoaded(ctx, "missing", "/pipelines"); err != nil {
		t.Fatalf("load after registering: %v", err)
	}
}

func TestEnsureLoadedCommandFallback(t *testing.T) {
	eng := pipelinetest.NewEngine()
	eng.RegisterCommand("convert", pipelinetest.Fail(0, ""))
	cache := newTestCache(t, eng)

	m, err := cache.EnsureLoaded(context.Background(), "convert", "/pipelines")
	if err != nil {
		t.Fatal(err)
	}
	if m.MemoryIO() {
		t.Error("command module reported memory-io")
	}
	if filepath.Base(m.Source()) != "convert.wasm" {
		t.Errorf("source %q", m.Source())
	}
}

func TestCacheClosed(t *testing.T) {
	eng := pipelinetest.NewEngine()
	eng.Register("echo", pipelinetest.Echo)
	cache, err := pipeline.NewCache(eng.CacheOptions()...)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cache.EnsureLoaded(context.Background(), "echo", "/p"); err != nil {
		t.Fatal(err)
	}

	if err := cache.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := cache.Close(context.Background()); err != nil {
		t.Errorf("second close: %v", err)
	}

	_, err = cache.EnsureLoaded(context.Background(), "echo", "/p")
	if !errors.Is(err, errors.ErrModuleLoad) {
		t.Errorf("expected ErrModuleLoad after close, got %v", err)
	}
	if cache.Stats().Modules != 0 {
		t.Error("closed cache still holds modules")
	}
}

func TestResolveLocation(t *testing.T) {
	abs := func(p string) string {
		a, err := filepath.Abs(p)
		if err != nil {
			t.Fatal(err)
		}
		return a
	}

	tests := []struct {
		location string
		base     string
		want     string
	}{
		{"https://cdn.example.org/p/median.wasm", "https://other.example.org", "https://cdn.example.org/p/median.wasm"},
		{"median", "https://cdn.example.org/pipelines", "https://cdn.example.org/pipelines/median"},
		{"dicom/read-series", "https://cdn.example.org/pipelines/", "https://cdn.example.org/pipelines/dicom/read-series"},
		{"median", "file:///opt/pipelines", "file:///opt/pipelines/median"},
		{"median", "/opt/pipelines", abs("/opt/pipelines/median")},
		{"/opt/other/median", "/opt/pipelines", abs("/opt/other/median")},
		{"median", "", abs("median")},
	}

	for _, tt := range tests {
		got, err := pipeline.ResolveLocation(tt.location, tt.base)
		if err != nil {
			t.Errorf("ResolveLocation(%q, %q): %v", tt.location, tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveLocation(%q, %q) = %q, want %q", tt.location, tt.base, got, tt.want)
		}
	}

	if _, err := pipeline.ResolveLocation("", "/opt"); err == nil {
		t.Error("expected error for empty location")
	}
}
