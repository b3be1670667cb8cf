package marshal

import "github.com/caffeineduck/itkpipe/iface"

// Transferable names one sub-buffer of a value that is moved, not copied,
// when the value crosses a worker boundary.
type Transferable struct {
	Field string
	Size  int
}

// Transferables lists the movable buffers of v. Text and JSON values have
// none; empty buffers are omitted.
func Transferables(v iface.Value) []Transferable {
	var all []Transferable
	switch v := v.(type) {
	case *iface.BinaryStream:
		all = []Transferable{{"data", len(v.Data)}}
	case *iface.BinaryFile:
		all = []Transferable{{"data", len(v.Data)}}
	case *iface.Image:
		all = []Transferable{
			{"data", len(v.Data)},
			{"direction", len(v.Direction) * 8},
		}
	case *iface.Mesh:
		all = []Transferable{
			{"points", len(v.Points)},
			{"pointData", len(v.PointData)},
			{"cells", len(v.Cells)},
			{"cellData", len(v.CellData)},
		}
	case *iface.PolyData:
		all = []Transferable{
			{"points", len(v.Points)},
			{"vertices", len(v.Vertices)},
			{"lines", len(v.Lines)},
			{"polygons", len(v.Polygons)},
			{"triangleStrips", len(v.TriangleStrips)},
			{"pointData", len(v.PointData)},
			{"cellData", len(v.CellData)},
		}
	}

	var out []Transferable
	for _, t := range all {
		if t.Size > 0 {
			out = append(out, t)
		}
	}
	return out
}

// TransferSize is the total number of bytes Transferables reports for v.
func TransferSize(v iface.Value) int {
	n := 0
	for _, t := range Transferables(v) {
		n += t.Size
	}
	return n
}
