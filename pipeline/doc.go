// Package pipeline loads WebAssembly pipeline modules and invokes them.
//
// A [Cache] owns one wazero runtime and memoizes compiled modules by their
// resolved location. [Invoke] instantiates a module, writes the declared
// inputs through the memory-io ABI, runs the entry point and reads the
// declared outputs back.
//
//	cache, err := pipeline.NewCache(pipeline.WithDiskCache())
//	if err != nil {
//	    return err
//	}
//	defer cache.Close(ctx)
//
//	mod, err := cache.EnsureLoaded(ctx, "median-filter", "https://example.org/pipelines")
//	if err != nil {
//	    return err
//	}
//	res, err := pipeline.Invoke(ctx, mod, pipeline.Request{
//	    Args:    []string{"0", "0", "--memory-io", "--radius", "2"},
//	    Inputs:  []pipeline.Input{{Type: iface.TypeImage, Value: img}},
//	    Outputs: []pipeline.Output{{Type: iface.TypeImage}},
//	})
//
// # Argument convention
//
// Modules take positional input identifiers, then output identifiers, then
// flags. Memory-resident values are identified by their index ("0", "1",
// ...); files by their virtual path. Invoke passes Args through unchanged.
//
// # Return codes
//
// Zero is the only success value. Any other code produces an
// InvocationFailure whose message is the module's error stream, which may be
// empty.
package pipeline
