package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/iface"
	"github.com/caffeineduck/itkpipe/pipeline"
	"github.com/caffeineduck/itkpipe/pipeline/pipelinetest"
	"github.com/caffeineduck/itkpipe/runner"
	"github.com/caffeineduck/itkpipe/worker"
)

type fixture struct {
	eng  *pipelinetest.Engine
	pool *worker.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	eng := pipelinetest.NewEngine()
	eng.Register("echo", pipelinetest.Echo)
	eng.Register("fail", pipelinetest.Fail(2, ""))
	eng.RegisterCommand("cat", func(ctx context.Context, m *pipelinetest.Module) int {
		ids, _ := m.Positional()
		for _, id := range ids {
			data, err := m.FS.ReadFile(id)
			if err != nil {
				m.Errorf("%v\n", err)
				return 1
			}
			m.Printf("%s", data)
		}
		return 0
	})
	pool := worker.NewPool(worker.WithWorkerOptions(worker.WithCacheOptions(eng.CacheOptions()...)))
	t.Cleanup(pool.Close)
	return &fixture{eng: eng, pool: pool}
}

func (f *fixture) opts(extra ...runner.Option) []runner.Option {
	return append([]runner.Option{runner.WithPool(f.pool), runner.WithPipelineBaseURL("/pipelines")}, extra...)
}

func textIn(s string) []pipeline.Input {
	return []pipeline.Input{{Type: iface.TypeTextStream, Value: &iface.TextStream{Data: s}}}
}

var textOut = []pipeline.Output{{Type: iface.TypeTextStream}}

func TestRunWorkerReuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	args := []string{"0", "0", runner.FlagMemoryIO}

	first, err := runner.Run(ctx, nil, "echo", args, textOut, textIn("one"), f.opts()...)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Worker == nil {
		t.Fatal("result has no worker")
	}
	if first.Stdout != "echoed 1 inputs\n" {
		t.Errorf("stdout %q", first.Stdout)
	}

	second, err := runner.Run(ctx, first.Worker, "echo", args, textOut, textIn("two"), f.opts()...)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Worker != first.Worker {
		t.Error("explicit worker was not used")
	}
	if got := second.Outputs[0].Value.(*iface.TextStream).Data; got != "two" {
		t.Errorf("output %q", got)
	}
	if hits := first.Worker.Stats().Cache.Hits; hits != 1 {
		t.Errorf("expected a cache hit on the reused worker, got %d", hits)
	}
}

func TestRunInProcess(t *testing.T) {
	f := newFixture(t)
	cache, err := pipeline.NewCache(f.eng.CacheOptions()...)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close(context.Background())

	res, err := runner.Run(context.Background(), nil, "echo", []string{"0", "0", runner.FlagMemoryIO},
		textOut, textIn("local"), f.opts(runner.WithInProcess(), runner.WithCache(cache))...)
	if err != nil {
		t.Fatal(err)
	}
	if res.Worker != nil {
		t.Error("in-process run reported a worker")
	}
	if len(f.pool.Workers()) != 0 {
		t.Error("in-process run started a worker")
	}
	want := []pipeline.Output{{Type: iface.TypeTextStream, Value: &iface.TextStream{Data: "local"}}}
	if diff := cmp.Diff(want, res.Outputs); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}
}

func TestRunFailure(t *testing.T) {
	f := newFixture(t)

	res, err := runner.Run(context.Background(), nil, "fail", []string{"0", runner.FlagMemoryIO},
		textOut, nil, f.opts()...)
	if !errors.Is(err, errors.ErrInvocationFailure) {
		t.Fatalf("expected ErrInvocationFailure, got %v", err)
	}
	if res == nil || res.ReturnValue != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Outputs != nil {
		t.Errorf("failed run has outputs %v", res.Outputs)
	}
	if !strings.Contains(err.Error(), "returned 2") {
		t.Errorf("error %q", err.Error())
	}
	if res.Worker == nil {
		t.Error("failed run should still return the worker for reuse")
	}
}

func TestRunWorkerURLStartsWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	args := []string{"0", "0", runner.FlagMemoryIO}

	a, err := runner.Run(ctx, nil, "echo", args, textOut, textIn("a"), f.opts(runner.WithPipelineWorkerURL(dir))...)
	if err != nil {
		t.Fatal(err)
	}
	b, err := runner.Run(ctx, nil, "echo", args, textOut, textIn("b"), f.opts(runner.WithPipelineWorkerURL(dir))...)
	if err != nil {
		t.Fatal(err)
	}
	if a.Worker == b.Worker {
		t.Error("expected a fresh worker per bootstrap")
	}
	if n := len(f.pool.Workers()); n != 2 {
		t.Errorf("pool has %d workers, want 2", n)
	}
}

func TestRunMountDirs(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(file, []byte("series 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	in := []pipeline.Input{{Type: iface.TypeTextFile, Value: &iface.TextFile{Path: filepath.ToSlash(file)}}}
	res, err := runner.Run(context.Background(), nil, "cat", []string{filepath.ToSlash(file)}, nil, in,
		f.opts(runner.WithMountDirs(file))...)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stdout != "series 1\n" {
		t.Errorf("stdout %q", res.Stdout)
	}

	_, err = runner.Run(context.Background(), nil, "cat", []string{filepath.ToSlash(file)}, nil, in, f.opts()...)
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument without the mount, got %v", err)
	}
}

func TestRunTerminatedWorker(t *testing.T) {
	f := newFixture(t)
	w, err := f.pool.NewWorker()
	if err != nil {
		t.Fatal(err)
	}
	f.pool.Terminate(w)

	_, err = runner.Run(context.Background(), w, "echo", []string{"0", "0", runner.FlagMemoryIO},
		textOut, textIn("x"), f.opts()...)
	if !errors.Is(err, errors.ErrWorkerUnavailable) {
		t.Errorf("expected ErrWorkerUnavailable, got %v", err)
	}
}

func TestRunRequiresModule(t *testing.T) {
	_, err := runner.Run(context.Background(), nil, "", nil, nil, nil)
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestDefaultsShutdown(t *testing.T) {
	ctx := context.Background()
	pool := runner.DefaultPool()
	if runner.DefaultPool() != pool {
		t.Fatal("DefaultPool returned a different pool")
	}
	cache, err := runner.ProcessCache()
	if err != nil {
		t.Fatalf("ProcessCache: %v", err)
	}

	if err := runner.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := pool.NewWorker(); !errors.Is(err, errors.ErrWorkerUnavailable) {
		t.Errorf("closed default pool started a worker: %v", err)
	}
	if _, err := cache.EnsureLoaded(ctx, "echo", "/pipelines"); !errors.Is(err, errors.ErrModuleLoad) {
		t.Errorf("closed process cache loaded a module: %v", err)
	}

	if runner.DefaultPool() == pool {
		t.Error("Shutdown did not reset the default pool")
	}
	if err := runner.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
