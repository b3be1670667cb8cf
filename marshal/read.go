package marshal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/iface"
)

// ReadOutput collects output index after a successful run. File outputs are
// read from fsys at path; every other type is copied out of module memory
// exactly once, so the returned buffers stay valid after the instance closes.
func ReadOutput(ctx context.Context, mem ABI, index int, declared iface.InterfaceType, path string, fsys Sandbox) (iface.Value, error) {
	switch declared {
	case iface.TypeBinaryFile, iface.TypeTextFile:
		if path == "" {
			return nil, errors.InvalidArgument("read output", "output %d: file output needs a path", index)
		}
		if fsys == nil {
			return nil, errors.InvalidArgument("read output", "output %d: file %s needs a sandbox", index, path)
		}
		data, err := fsys.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("output %d: read %s: %w", index, path, err)
		}
		if declared == iface.TypeTextFile {
			return &iface.TextFile{Path: path, Data: string(data), HasData: true}, nil
		}
		return &iface.BinaryFile{Path: path, Data: data}, nil

	case iface.TypeBinaryStream:
		data, err := readArray(ctx, mem, index, subData)
		if err != nil {
			return nil, err
		}
		return &iface.BinaryStream{Data: data}, nil

	case iface.TypeTextStream:
		data, err := readArray(ctx, mem, index, subData)
		if err != nil {
			return nil, err
		}
		return &iface.TextStream{Data: string(data)}, nil

	case iface.TypeJSONCompatible:
		data, err := readArray(ctx, mem, index, subData)
		if err != nil {
			return nil, err
		}
		if !json.Valid(data) {
			return nil, errors.TypeMismatch(indexPath("outputs", index), "module produced invalid JSON")
		}
		return &iface.JSONCompatible{Data: data}, nil

	case iface.TypeImage:
		return readImage(ctx, mem, index)
	case iface.TypeMesh:
		return readMesh(ctx, mem, index)
	case iface.TypePolyData:
		return readPolyData(ctx, mem, index)
	}
	return nil, errors.TypeMismatch(indexPath("outputs", index), "unknown interface type %q", declared)
}

func getJSON(ctx context.Context, mem ABI, index int, v any) error {
	doc, err := readJSON(ctx, mem, index)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return errors.TypeMismatch(indexPath("outputs", index), "decode descriptor: %v", err)
	}
	return nil
}

func readImage(ctx context.Context, mem ABI, index int) (*iface.Image, error) {
	var desc imageJSON
	if err := getJSON(ctx, mem, index, &desc); err != nil {
		return nil, err
	}
	data, err := readArray(ctx, mem, index, subData)
	if err != nil {
		return nil, err
	}
	dir, err := readArray(ctx, mem, index, subDirection)
	if err != nil {
		return nil, err
	}
	img := &iface.Image{
		ImageType: desc.ImageType,
		Name:      desc.Name,
		Origin:    desc.Origin,
		Spacing:   desc.Spacing,
		Direction: iface.Float64s(dir),
		Size:      desc.Size,
		Metadata:  desc.Metadata,
		Data:      data,
	}
	if err := validateImage(img, true); err != nil {
		return nil, prefixed(err, "outputs", index)
	}
	return img, nil
}

func readMesh(ctx context.Context, mem ABI, index int) (*iface.Mesh, error) {
	var desc meshJSON
	if err := getJSON(ctx, mem, index, &desc); err != nil {
		return nil, err
	}
	m := &iface.Mesh{
		MeshType:            desc.MeshType,
		Name:                desc.Name,
		NumberOfPoints:      desc.NumberOfPoints,
		NumberOfPointPixels: desc.NumberOfPointPixels,
		NumberOfCells:       desc.NumberOfCells,
		CellBufferSize:      desc.CellBufferSize,
		NumberOfCellPixels:  desc.NumberOfCellPixels,
	}
	for _, f := range []struct {
		sub  int
		n    int
		dest *[]byte
	}{
		{subMeshPoints, desc.NumberOfPoints, &m.Points},
		{subMeshCells, desc.CellBufferSize, &m.Cells},
		{subMeshPointData, desc.NumberOfPointPixels, &m.PointData},
		{subMeshCellData, desc.NumberOfCellPixels, &m.CellData},
	} {
		if f.n == 0 {
			continue
		}
		buf, err := readArray(ctx, mem, index, f.sub)
		if err != nil {
			return nil, err
		}
		*f.dest = buf
	}
	if err := Validate(m, iface.TypeMesh); err != nil {
		return nil, prefixed(err, "outputs", index)
	}
	return m, nil
}

func readPolyData(ctx context.Context, mem ABI, index int) (*iface.PolyData, error) {
	var desc polyDataJSON
	if err := getJSON(ctx, mem, index, &desc); err != nil {
		return nil, err
	}
	p := &iface.PolyData{
		PolyDataType:             desc.PolyDataType,
		Name:                     desc.Name,
		NumberOfPoints:           desc.NumberOfPoints,
		VerticesBufferSize:       desc.VerticesBufferSize,
		LinesBufferSize:          desc.LinesBufferSize,
		PolygonsBufferSize:       desc.PolygonsBufferSize,
		TriangleStripsBufferSize: desc.TriangleStripsBufferSize,
		NumberOfPointPixels:      desc.NumberOfPointPixels,
		NumberOfCellPixels:       desc.NumberOfCellPixels,
	}
	for _, f := range []struct {
		sub  int
		n    int
		dest *[]byte
	}{
		{subPolyPoints, desc.NumberOfPoints, &p.Points},
		{subPolyVertices, desc.VerticesBufferSize, &p.Vertices},
		{subPolyLines, desc.LinesBufferSize, &p.Lines},
		{subPolyPolygons, desc.PolygonsBufferSize, &p.Polygons},
		{subPolyTriangleStrips, desc.TriangleStripsBufferSize, &p.TriangleStrips},
		{subPolyPointData, desc.NumberOfPointPixels, &p.PointData},
		{subPolyCellData, desc.NumberOfCellPixels, &p.CellData},
	} {
		if f.n == 0 {
			continue
		}
		buf, err := readArray(ctx, mem, index, f.sub)
		if err != nil {
			return nil, err
		}
		*f.dest = buf
	}
	if err := Validate(p, iface.TypePolyData); err != nil {
		return nil, prefixed(err, "outputs", index)
	}
	return p, nil
}
