// Package itkpipe runs itk-wasm image, mesh and DICOM pipelines compiled to
// WebAssembly (WASI) from Go.
//
// # Overview
//
// A pipeline is a native program compiled to WASI. itkpipe fetches and
// compiles it once per worker, marshals structured inputs (images, meshes,
// polydata, streams, files and JSON) into its memory, runs it and reads the
// typed outputs back. A module sees only the host directories mounted for
// the call; everything else it writes lands in a scratch area removed after
// the run.
//
// # Basic Usage
//
//	res, err := runner.Run(ctx, nil, "median-filter",
//	    []string{"0", "0", "--memory-io", "--radius", "2"},
//	    []pipeline.Output{{Type: iface.TypeImage}},
//	    []pipeline.Input{{Type: iface.TypeImage, Value: img}},
//	    runner.WithPipelineBaseURL("https://example.org/pipelines"))
//	if err != nil {
//	    return err
//	}
//	filtered := res.Outputs[0].Value.(*iface.Image)
//
//	// Reuse the worker so the module is not compiled again.
//	res, err = runner.Run(ctx, res.Worker, "median-filter", ...)
//
// # Workers
//
// Each [worker.Worker] runs one invocation at a time on its own goroutine
// and owns a private module cache. Run in parallel by using several
// workers from a [worker.Pool].
//
// See the [runner], [worker], [pipeline], [marshal], [mount], [iface] and
// [dicom] packages for detailed API documentation.
package itkpipe
