// Package iface defines the data model exchanged with pipeline modules.
//
// A [Value] is one of eight variants, selected by its [InterfaceType] tag:
// binary and text streams (module memory), binary and text files (sandbox
// filesystem), images, meshes, polydata and JSON-compatible documents.
//
// Numeric buffers are kept as little-endian byte slices together with the
// component type that describes them, so values cross the module boundary
// without reinterpretation. Use [Float32s], [Float64s] and [Uint32s] for
// typed views:
//
//	img := iface.NewImage(iface.ImageType{
//	    Dimension: 2, ComponentType: iface.Float32,
//	    PixelType: iface.PixelScalar, Components: 1,
//	})
//	img.Size = []int{64, 64}
//	img.Data = iface.Float32Bytes(make([]float32, 64*64))
package iface
