// Package runner is the entry point bindings call to run a pipeline.
//
// Run decides where a module executes: on the calling goroutine, on a
// caller-supplied worker, or on a pool worker. It returns the same Result
// shape in every case, including the worker to reuse next time.
//
//	args, _ := runner.NewArgs().Input("file0").Output("0").MemoryIO().Build()
//	res, err := runner.Run(ctx, nil, "median", args, outputs, inputs,
//		runner.WithPipelineBaseURL("https://example.org/pipelines"))
//	// reuse res.Worker for the next call
package runner
