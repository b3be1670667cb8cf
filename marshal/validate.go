package marshal

import (
	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/iface"
)

// Validate checks that v carries the declared type tag and that its buffers
// agree with its shape metadata. Nothing is coerced: any disagreement is a
// MarshalTypeMismatch naming the offending field.
func Validate(v iface.Value, declared iface.InterfaceType) error {
	if !declared.Valid() {
		return errors.TypeMismatch(nil, "unknown interface type %q", declared)
	}
	if v == nil {
		return errors.TypeMismatch(nil, "declared %s but value is nil", declared)
	}
	if v.Type() != declared {
		return errors.TypeMismatch(nil, "declared %s but value is %s", declared, v.Type())
	}

	switch v := v.(type) {
	case *iface.BinaryFile:
		if v.Path == "" {
			return errors.TypeMismatch([]string{"path"}, "file has no virtual path")
		}
	case *iface.TextFile:
		if v.Path == "" {
			return errors.TypeMismatch([]string{"path"}, "file has no virtual path")
		}
	case *iface.Image:
		return validateImage(v, false)
	case *iface.Mesh:
		return validateMesh(v)
	case *iface.PolyData:
		return validatePolyData(v)
	}
	return nil
}

// validateImage checks img. With metadataOnly an empty pixel buffer is
// accepted, as returned by modules run with --information-only.
func validateImage(img *iface.Image, metadataOnly bool) error {
	t := img.ImageType
	if t.ComponentType.Size() == 0 {
		return errors.TypeMismatch([]string{"imageType", "componentType"}, "unknown component type %q", t.ComponentType)
	}
	if t.Dimension < 1 {
		return errors.TypeMismatch([]string{"imageType", "dimension"}, "dimension %d", t.Dimension)
	}
	if t.Components < 1 {
		return errors.TypeMismatch([]string{"imageType", "components"}, "components %d", t.Components)
	}
	dim := t.Dimension
	for _, f := range []struct {
		name string
		got  int
		want int
	}{
		{"size", len(img.Size), dim},
		{"origin", len(img.Origin), dim},
		{"spacing", len(img.Spacing), dim},
		{"direction", len(img.Direction), dim * dim},
	} {
		if f.got != f.want {
			return errors.TypeMismatch([]string{f.name}, "length %d, dimension %d requires %d", f.got, dim, f.want)
		}
	}
	for i, s := range img.Size {
		if s < 0 {
			return errors.TypeMismatch([]string{"size"}, "negative extent %d on axis %d", s, i)
		}
	}
	if metadataOnly && len(img.Data) == 0 {
		return nil
	}
	if want := img.DataLength(); len(img.Data) != want {
		return errors.TypeMismatch([]string{"data"}, "buffer is %d bytes, size and type require %d", len(img.Data), want)
	}
	return nil
}

// bufferCheck compares one buffer against count*components*component size.
type bufferCheck struct {
	name       string
	buf        []byte
	count      int
	components int
	ct         iface.ComponentType
}

func (c bufferCheck) validate() error {
	if c.count < 0 {
		return errors.TypeMismatch([]string{c.name}, "negative count %d", c.count)
	}
	if c.count == 0 {
		if len(c.buf) != 0 {
			return errors.TypeMismatch([]string{c.name}, "buffer is %d bytes but count is 0", len(c.buf))
		}
		return nil
	}
	size := c.ct.Size()
	if size == 0 {
		return errors.TypeMismatch([]string{c.name}, "unknown component type %q", c.ct)
	}
	if want := c.count * c.components * size; len(c.buf) != want {
		return errors.TypeMismatch([]string{c.name}, "buffer is %d bytes, count requires %d", len(c.buf), want)
	}
	return nil
}

func validateMesh(m *iface.Mesh) error {
	t := m.MeshType
	if t.Dimension < 1 {
		return errors.TypeMismatch([]string{"meshType", "dimension"}, "dimension %d", t.Dimension)
	}
	if m.NumberOfCells < 0 {
		return errors.TypeMismatch([]string{"numberOfCells"}, "negative count %d", m.NumberOfCells)
	}
	for _, c := range []bufferCheck{
		{"points", m.Points, m.NumberOfPoints, t.Dimension, t.PointComponentType},
		{"cells", m.Cells, m.CellBufferSize, 1, t.CellComponentType},
		{"pointData", m.PointData, m.NumberOfPointPixels, t.PointPixelComponents, t.PointPixelComponentType},
		{"cellData", m.CellData, m.NumberOfCellPixels, t.CellPixelComponents, t.CellPixelComponentType},
	} {
		if err := c.validate(); err != nil {
			return err
		}
	}
	return nil
}

func validatePolyData(p *iface.PolyData) error {
	t := p.PolyDataType
	for _, c := range []bufferCheck{
		{"points", p.Points, p.NumberOfPoints, 3, iface.Float32},
		{"vertices", p.Vertices, p.VerticesBufferSize, 1, iface.UInt32},
		{"lines", p.Lines, p.LinesBufferSize, 1, iface.UInt32},
		{"polygons", p.Polygons, p.PolygonsBufferSize, 1, iface.UInt32},
		{"triangleStrips", p.TriangleStrips, p.TriangleStripsBufferSize, 1, iface.UInt32},
		{"pointData", p.PointData, p.NumberOfPointPixels, t.PointPixelComponents, t.PointPixelComponentType},
		{"cellData", p.CellData, p.NumberOfCellPixels, t.CellPixelComponents, t.CellPixelComponentType},
	} {
		if err := c.validate(); err != nil {
			return err
		}
	}
	return nil
}
