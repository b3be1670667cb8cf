// Package marshal converts [iface.Value]s to and from the memory-io ABI of a
// pipeline module.
//
// Every memory-resident input is written as one or more byte arrays,
// allocated by the module with itk_wasm_input_array_alloc, followed by a
// JSON descriptor allocated with itk_wasm_input_json_alloc. Buffer fields of
// the descriptor hold addresses of the form
//
//	data:application/vnd.itk.address,0:<ptr>
//
// Outputs are read back through the matching itk_wasm_output_* exports.
// File values bypass module memory and travel through the [Sandbox].
//
// Sub-array layout:
//
//	streams, JSON   0 data
//	Image           0 data, 1 direction (float64)
//	Mesh            0 points, 1 cells, 2 pointData, 3 cellData
//	PolyData        0 points, 1 vertices, 2 lines, 3 polygons,
//	                4 triangleStrips, 5 pointData, 6 cellData
package marshal
