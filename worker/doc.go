// Package worker runs pipeline invocations on background execution contexts.
//
// A [Worker] owns a private module cache and serves one request at a time on
// its own goroutine; parallelism comes from running several workers.
// Requests reach the goroutine over a channel and each carries its own
// reply channel. Results come back in a [pipeline.Envelope] that the worker
// hands off, so output buffers are moved to the caller rather than shared.
//
//	w, _ := worker.New()
//	defer w.Terminate()
//
//	env, err := w.Submit(ctx, pipeline.Request{Location: "median", BaseURL: dir})
//
// A [Pool] bounds how many workers exist and provides a lazily created
// default worker.
package worker
