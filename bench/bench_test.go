// Package bench measures the overhead itkpipe adds around a pipeline:
// module caching, worker dispatch and memory-io marshaling.
//
// Pipelines here are Go functions behind the pipelinetest engine, so the
// numbers exclude WebAssembly execution itself.
//
// Benchmarks: go test -bench=. -benchtime=3x ./bench/
package bench

import (
	"context"
	"fmt"
	"testing"

	"github.com/caffeineduck/itkpipe/iface"
	"github.com/caffeineduck/itkpipe/pipeline"
	"github.com/caffeineduck/itkpipe/pipeline/pipelinetest"
	"github.com/caffeineduck/itkpipe/runner"
	"github.com/caffeineduck/itkpipe/worker"
)

func newEngine() *pipelinetest.Engine {
	eng := pipelinetest.NewEngine()
	eng.Register("echo", pipelinetest.Echo)
	return eng
}

func textRequest() ([]string, []pipeline.Output, []pipeline.Input) {
	args := []string{"0", "0", "--memory-io"}
	outputs := []pipeline.Output{{Type: iface.TypeTextStream}}
	inputs := []pipeline.Input{{Type: iface.TypeTextStream, Value: &iface.TextStream{Data: "x=1"}}}
	return args, outputs, inputs
}

func imageRequest(size int) ([]string, []pipeline.Output, []pipeline.Input) {
	img := iface.NewImage(iface.DefaultImageType())
	img.Size = []int{size, size}
	img.Data = make([]byte, img.DataLength())
	args := []string{"0", "0", "--memory-io"}
	outputs := []pipeline.Output{{Type: iface.TypeImage}}
	inputs := []pipeline.Input{{Type: iface.TypeImage, Value: img}}
	return args, outputs, inputs
}

// --- Cold start: a new worker (and module cache) per run ---

func BenchmarkWorker_ColdStart(b *testing.B) {
	eng := newEngine()
	pool := worker.NewPool(worker.WithWorkerOptions(worker.WithCacheOptions(eng.CacheOptions()...)))
	defer pool.Close()
	args, outputs, inputs := textRequest()
	ctx := context.Background()

	for b.Loop() {
		w, err := pool.NewWorker()
		if err != nil {
			b.Fatal(err)
		}
		if _, err := runner.Run(ctx, w, "echo", args, outputs, inputs, runner.WithPool(pool), runner.WithPipelineBaseURL("/pipelines")); err != nil {
			b.Fatal(err)
		}
		pool.Terminate(w)
	}
}

// --- Warm start: reuse one worker; the module is compiled once ---

func BenchmarkWorker_WarmStart(b *testing.B) {
	eng := newEngine()
	pool := worker.NewPool(worker.WithWorkerOptions(worker.WithCacheOptions(eng.CacheOptions()...)))
	defer pool.Close()
	args, outputs, inputs := textRequest()
	ctx := context.Background()

	runner.Run(ctx, nil, "echo", args, outputs, inputs, runner.WithPool(pool), runner.WithPipelineBaseURL("/pipelines")) // warmup

	for b.Loop() {
		if _, err := runner.Run(ctx, nil, "echo", args, outputs, inputs, runner.WithPool(pool), runner.WithPipelineBaseURL("/pipelines")); err != nil {
			b.Fatal(err)
		}
	}
}

// --- In process: no worker hop ---

func BenchmarkInProcess_WarmStart(b *testing.B) {
	eng := newEngine()
	cache, err := pipeline.NewCache(eng.CacheOptions()...)
	if err != nil {
		b.Fatal(err)
	}
	defer cache.Close(context.Background())
	args, outputs, inputs := textRequest()
	ctx := context.Background()

	for b.Loop() {
		if _, err := runner.Run(ctx, nil, "echo", args, outputs, inputs, runner.WithInProcess(), runner.WithCache(cache), runner.WithPipelineBaseURL("/pipelines")); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Image round trip: copy versus no-copy inputs ---

func BenchmarkImageRoundTrip(b *testing.B) {
	for _, size := range []int{64, 512} {
		for _, noCopy := range []bool{false, true} {
			b.Run(fmt.Sprintf("%dx%d/noCopy=%v", size, size, noCopy), func(b *testing.B) {
				eng := newEngine()
				pool := worker.NewPool(worker.WithWorkerOptions(worker.WithCacheOptions(eng.CacheOptions()...)))
				defer pool.Close()
				args, outputs, inputs := imageRequest(size)
				opts := []runner.Option{runner.WithPool(pool), runner.WithPipelineBaseURL("/pipelines")}
				if noCopy {
					opts = append(opts, runner.WithNoCopy())
				}
				ctx := context.Background()

				b.SetBytes(int64(inputs[0].Value.(*iface.Image).DataLength()))
				for b.Loop() {
					res, err := runner.Run(ctx, nil, "echo", args, outputs, inputs, opts...)
					if err != nil {
						b.Fatal(err)
					}
					if len(res.Outputs) != 1 {
						b.Fatalf("got %d outputs", len(res.Outputs))
					}
				}
			})
		}
	}
}

func TestWarmWorkerCompilesOnce(t *testing.T) {
	eng := newEngine()
	pool := worker.NewPool(worker.WithWorkerOptions(worker.WithCacheOptions(eng.CacheOptions()...)))
	defer pool.Close()
	args, outputs, inputs := textRequest()

	for range 5 {
		if _, err := runner.Run(context.Background(), nil, "echo", args, outputs, inputs, runner.WithPool(pool), runner.WithPipelineBaseURL("/pipelines")); err != nil {
			t.Fatal(err)
		}
	}
	if n := eng.Compiles(); n != 1 {
		t.Errorf("compiled %d times, want 1", n)
	}
}
