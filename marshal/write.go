package marshal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/iface"
)

// WriteInput places input index into the module. Memory-resident values go
// through the memory-io ABI; files are written into fsys at their virtual
// path. The value is validated against the declared type first and nothing
// is written on mismatch.
func WriteInput(ctx context.Context, mem ABI, index int, declared iface.InterfaceType, v iface.Value, fsys Sandbox) error {
	if err := Validate(v, declared); err != nil {
		return prefixed(err, "inputs", index)
	}

	switch v := v.(type) {
	case *iface.BinaryFile:
		return writeFile(fsys, index, v.Path, v.Data, v.Data != nil)
	case *iface.TextFile:
		return writeFile(fsys, index, v.Path, []byte(v.Data), v.HasData || v.Data != "")
	case *iface.BinaryStream:
		return writeStream(ctx, mem, index, v.Data)
	case *iface.TextStream:
		return writeStream(ctx, mem, index, []byte(v.Data))
	case *iface.JSONCompatible:
		return writeStream(ctx, mem, index, v.Data)
	case *iface.Image:
		return writeImage(ctx, mem, index, v)
	case *iface.Mesh:
		return writeMesh(ctx, mem, index, v)
	case *iface.PolyData:
		return writePolyData(ctx, mem, index, v)
	}
	return errors.TypeMismatch(indexPath("inputs", index), "unsupported value %T", v)
}

func writeFile(fsys Sandbox, index int, path string, data []byte, hasData bool) error {
	if fsys == nil {
		return errors.InvalidArgument("write input", "input %d: file %s needs a sandbox", index, path)
	}
	if !hasData {
		if _, err := fsys.Stat(path); err != nil {
			return errors.InvalidArgument("write input", "input %d: %s is not visible in the sandbox: %v", index, path, err)
		}
		return nil
	}
	if err := fsys.WriteFile(path, data); err != nil {
		return fmt.Errorf("input %d: write %s: %w", index, path, err)
	}
	return nil
}

func writeStream(ctx context.Context, mem ABI, index int, data []byte) error {
	ptr, err := writeArray(ctx, mem, index, subData, data)
	if err != nil {
		return err
	}
	return putJSON(ctx, mem, index, streamJSON{Size: len(data), Data: EncodeAddress(ptr)})
}

func writeImage(ctx context.Context, mem ABI, index int, img *iface.Image) error {
	dataPtr, err := writeArray(ctx, mem, index, subData, img.Data)
	if err != nil {
		return err
	}
	dirPtr, err := writeArray(ctx, mem, index, subDirection, iface.Float64Bytes(img.Direction))
	if err != nil {
		return err
	}
	return putJSON(ctx, mem, index, imageJSON{
		ImageType: img.ImageType,
		Name:      img.Name,
		Origin:    img.Origin,
		Spacing:   img.Spacing,
		Direction: EncodeAddress(dirPtr),
		Size:      img.Size,
		Metadata:  img.Metadata,
		Data:      EncodeAddress(dataPtr),
	})
}

func writeMesh(ctx context.Context, mem ABI, index int, m *iface.Mesh) error {
	var ptrs [4]uint32
	for sub, buf := range [][]byte{
		subMeshPoints:    m.Points,
		subMeshCells:     m.Cells,
		subMeshPointData: m.PointData,
		subMeshCellData:  m.CellData,
	} {
		ptr, err := writeArray(ctx, mem, index, sub, buf)
		if err != nil {
			return err
		}
		ptrs[sub] = ptr
	}
	return putJSON(ctx, mem, index, meshJSON{
		MeshType:            m.MeshType,
		Name:                m.Name,
		NumberOfPoints:      m.NumberOfPoints,
		Points:              EncodeAddress(ptrs[subMeshPoints]),
		NumberOfPointPixels: m.NumberOfPointPixels,
		PointData:           EncodeAddress(ptrs[subMeshPointData]),
		NumberOfCells:       m.NumberOfCells,
		Cells:               EncodeAddress(ptrs[subMeshCells]),
		CellBufferSize:      m.CellBufferSize,
		NumberOfCellPixels:  m.NumberOfCellPixels,
		CellData:            EncodeAddress(ptrs[subMeshCellData]),
	})
}

func writePolyData(ctx context.Context, mem ABI, index int, p *iface.PolyData) error {
	var ptrs [7]uint32
	for sub, buf := range [][]byte{
		subPolyPoints:         p.Points,
		subPolyVertices:       p.Vertices,
		subPolyLines:          p.Lines,
		subPolyPolygons:       p.Polygons,
		subPolyTriangleStrips: p.TriangleStrips,
		subPolyPointData:      p.PointData,
		subPolyCellData:       p.CellData,
	} {
		ptr, err := writeArray(ctx, mem, index, sub, buf)
		if err != nil {
			return err
		}
		ptrs[sub] = ptr
	}
	return putJSON(ctx, mem, index, polyDataJSON{
		PolyDataType:             p.PolyDataType,
		Name:                     p.Name,
		NumberOfPoints:           p.NumberOfPoints,
		Points:                   EncodeAddress(ptrs[subPolyPoints]),
		VerticesBufferSize:       p.VerticesBufferSize,
		Vertices:                 EncodeAddress(ptrs[subPolyVertices]),
		LinesBufferSize:          p.LinesBufferSize,
		Lines:                    EncodeAddress(ptrs[subPolyLines]),
		PolygonsBufferSize:       p.PolygonsBufferSize,
		Polygons:                 EncodeAddress(ptrs[subPolyPolygons]),
		TriangleStripsBufferSize: p.TriangleStripsBufferSize,
		TriangleStrips:           EncodeAddress(ptrs[subPolyTriangleStrips]),
		NumberOfPointPixels:      p.NumberOfPointPixels,
		PointData:                EncodeAddress(ptrs[subPolyPointData]),
		NumberOfCellPixels:       p.NumberOfCellPixels,
		CellData:                 EncodeAddress(ptrs[subPolyCellData]),
	})
}

func putJSON(ctx context.Context, mem ABI, index int, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("input %d: encode descriptor: %w", index, err)
	}
	return writeJSON(ctx, mem, index, doc)
}
