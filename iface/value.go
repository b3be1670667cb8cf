package iface

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Value is the data exchanged between the host and a pipeline module.
//
// The set of implementations is closed: *BinaryStream, *TextStream,
// *BinaryFile, *TextFile, *Image, *Mesh, *PolyData and *JSONCompatible.
type Value interface {
	// Type returns the interface type tag of the value.
	Type() InterfaceType

	// Clone returns a deep copy that shares no buffers with the receiver.
	Clone() Value

	sealed()
}

// BinaryStream is raw bytes exchanged through module memory.
type BinaryStream struct {
	Data []byte
}

func (*BinaryStream) Type() InterfaceType { return TypeBinaryStream }
func (*BinaryStream) sealed()             {}

func (s *BinaryStream) Clone() Value {
	return &BinaryStream{Data: bytes.Clone(s.Data)}
}

// TextStream is UTF-8 text exchanged through module memory.
type TextStream struct {
	Data string
}

func (*TextStream) Type() InterfaceType { return TypeTextStream }
func (*TextStream) sealed()             {}

func (s *TextStream) Clone() Value {
	return &TextStream{Data: s.Data}
}

// BinaryFile is a file addressed by its virtual path inside the sandbox.
// A nil Data on input means the file already exists on a mounted directory.
type BinaryFile struct {
	Path string
	Data []byte
}

func (*BinaryFile) Type() InterfaceType { return TypeBinaryFile }
func (*BinaryFile) sealed()             {}

func (f *BinaryFile) Clone() Value {
	return &BinaryFile{Path: f.Path, Data: bytes.Clone(f.Data)}
}

// TextFile is the text counterpart of [BinaryFile]. HasData distinguishes an
// empty file to be written from a file already present on a mount.
type TextFile struct {
	Path    string
	Data    string
	HasData bool
}

func (*TextFile) Type() InterfaceType { return TypeTextFile }
func (*TextFile) sealed()             {}

func (f *TextFile) Clone() Value {
	c := *f
	return &c
}

// JSONCompatible carries an arbitrary JSON document.
type JSONCompatible struct {
	Data json.RawMessage
}

// NewJSON encodes v as a JSONCompatible value.
func NewJSON(v any) (*JSONCompatible, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &JSONCompatible{Data: data}, nil
}

func (*JSONCompatible) Type() InterfaceType { return TypeJSONCompatible }
func (*JSONCompatible) sealed()             {}

func (j *JSONCompatible) Clone() Value {
	return &JSONCompatible{Data: bytes.Clone(j.Data)}
}

// Decode unmarshals the document into v.
func (j *JSONCompatible) Decode(v any) error {
	return json.Unmarshal(j.Data, v)
}

// Image is an N-dimensional image with physical-space metadata.
//
// Direction is stored row-major with Dimension*Dimension entries. Data holds
// little-endian components of ImageType.ComponentType, fastest-varying index
// first, with ImageType.Components values per pixel.
type Image struct {
	ImageType ImageType
	Name      string
	Origin    []float64
	Spacing   []float64
	Direction []float64
	Size      []int
	Metadata  Metadata
	Data      []byte
}

// NewImage returns an image with unit spacing, zero origin and identity
// direction for the given type.
func NewImage(t ImageType) *Image {
	dim := t.Dimension
	img := &Image{
		ImageType: t,
		Name:      "Image",
		Origin:    make([]float64, dim),
		Spacing:   make([]float64, dim),
		Direction: make([]float64, dim*dim),
		Size:      make([]int, dim),
	}
	for i := range dim {
		img.Spacing[i] = 1
		img.Direction[i*dim+i] = 1
	}
	return img
}

func (*Image) Type() InterfaceType { return TypeImage }
func (*Image) sealed()             {}

func (img *Image) Clone() Value {
	return &Image{
		ImageType: img.ImageType,
		Name:      img.Name,
		Origin:    slices.Clone(img.Origin),
		Spacing:   slices.Clone(img.Spacing),
		Direction: slices.Clone(img.Direction),
		Size:      slices.Clone(img.Size),
		Metadata:  img.Metadata.Clone(),
		Data:      bytes.Clone(img.Data),
	}
}

// PixelCount returns the number of pixels described by Size.
func (img *Image) PixelCount() int {
	if len(img.Size) == 0 {
		return 0
	}
	n := 1
	for _, s := range img.Size {
		n *= s
	}
	return n
}

// DataLength returns the byte length Data must have for the image's size
// and type.
func (img *Image) DataLength() int {
	return img.PixelCount() * img.ImageType.Components * img.ImageType.ComponentType.Size()
}

// Mesh is an unstructured mesh of points and cells with optional pixel data.
type Mesh struct {
	MeshType            MeshType
	Name                string
	NumberOfPoints      int
	Points              []byte
	NumberOfPointPixels int
	PointData           []byte
	NumberOfCells       int
	Cells               []byte
	CellBufferSize      int
	NumberOfCellPixels  int
	CellData            []byte
}

// NewMesh returns an empty mesh of the given type.
func NewMesh(t MeshType) *Mesh {
	return &Mesh{MeshType: t, Name: "Mesh"}
}

func (*Mesh) Type() InterfaceType { return TypeMesh }
func (*Mesh) sealed()             {}

func (m *Mesh) Clone() Value {
	c := *m
	c.Points = bytes.Clone(m.Points)
	c.PointData = bytes.Clone(m.PointData)
	c.Cells = bytes.Clone(m.Cells)
	c.CellData = bytes.Clone(m.CellData)
	return &c
}

// PolyData is a VTK-style polygonal dataset. Points are float32 triplets;
// cell arrays are uint32 connectivity lists.
type PolyData struct {
	PolyDataType             PolyDataType
	Name                     string
	NumberOfPoints           int
	Points                   []byte
	VerticesBufferSize       int
	Vertices                 []byte
	LinesBufferSize          int
	Lines                    []byte
	PolygonsBufferSize       int
	Polygons                 []byte
	TriangleStripsBufferSize int
	TriangleStrips           []byte
	NumberOfPointPixels      int
	PointData                []byte
	NumberOfCellPixels       int
	CellData                 []byte
}

// NewPolyData returns an empty polydata of the given type.
func NewPolyData(t PolyDataType) *PolyData {
	return &PolyData{PolyDataType: t, Name: "PolyData"}
}

func (*PolyData) Type() InterfaceType { return TypePolyData }
func (*PolyData) sealed()             {}

func (p *PolyData) Clone() Value {
	c := *p
	c.Points = bytes.Clone(p.Points)
	c.Vertices = bytes.Clone(p.Vertices)
	c.Lines = bytes.Clone(p.Lines)
	c.Polygons = bytes.Clone(p.Polygons)
	c.TriangleStrips = bytes.Clone(p.TriangleStrips)
	c.PointData = bytes.Clone(p.PointData)
	c.CellData = bytes.Clone(p.CellData)
	return &c
}
