package iface

// InterfaceType tags the variant of a [Value].
type InterfaceType string

const (
	TypeTextFile       InterfaceType = "InterfaceTextFile"
	TypeBinaryFile     InterfaceType = "InterfaceBinaryFile"
	TypeTextStream     InterfaceType = "InterfaceTextStream"
	TypeBinaryStream   InterfaceType = "InterfaceBinaryStream"
	TypeImage          InterfaceType = "InterfaceImage"
	TypeMesh           InterfaceType = "InterfaceMesh"
	TypePolyData       InterfaceType = "InterfacePolyData"
	TypeJSONCompatible InterfaceType = "InterfaceJsonCompatible"
)

// Valid reports whether t is one of the known interface types.
func (t InterfaceType) Valid() bool {
	switch t {
	case TypeTextFile, TypeBinaryFile, TypeTextStream, TypeBinaryStream,
		TypeImage, TypeMesh, TypePolyData, TypeJSONCompatible:
		return true
	}
	return false
}

// IsFile reports whether values of this type live in the sandbox filesystem
// rather than in module memory.
func (t InterfaceType) IsFile() bool {
	return t == TypeTextFile || t == TypeBinaryFile
}

// ComponentType is the numeric type of a single pixel or point component.
type ComponentType string

const (
	Int8    ComponentType = "int8"
	UInt8   ComponentType = "uint8"
	Int16   ComponentType = "int16"
	UInt16  ComponentType = "uint16"
	Int32   ComponentType = "int32"
	UInt32  ComponentType = "uint32"
	Int64   ComponentType = "int64"
	UInt64  ComponentType = "uint64"
	Float32 ComponentType = "float32"
	Float64 ComponentType = "float64"
)

// Size returns the byte width of one component, or 0 for an unknown type.
func (c ComponentType) Size() int {
	switch c {
	case Int8, UInt8:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Int64, UInt64, Float64:
		return 8
	}
	return 0
}

// PixelType describes how components group into a pixel.
type PixelType string

const (
	PixelUnknown                   PixelType = "Unknown"
	PixelScalar                    PixelType = "Scalar"
	PixelRGB                       PixelType = "RGB"
	PixelRGBA                      PixelType = "RGBA"
	PixelOffset                    PixelType = "Offset"
	PixelVector                    PixelType = "Vector"
	PixelPoint                     PixelType = "Point"
	PixelCovariantVector           PixelType = "CovariantVector"
	PixelSymmetricSecondRankTensor PixelType = "SymmetricSecondRankTensor"
	PixelDiffusionTensor3D         PixelType = "DiffusionTensor3D"
	PixelComplex                   PixelType = "Complex"
	PixelFixedArray                PixelType = "FixedArray"
	PixelArray                     PixelType = "Array"
	PixelMatrix                    PixelType = "Matrix"
	PixelVariableLengthVector      PixelType = "VariableLengthVector"
	PixelVariableSizeMatrix        PixelType = "VariableSizeMatrix"
)

// ImageType is the shape descriptor of an [Image].
type ImageType struct {
	Dimension     int           `json:"dimension"`
	ComponentType ComponentType `json:"componentType"`
	PixelType     PixelType     `json:"pixelType"`
	Components    int           `json:"components"`
}

// DefaultImageType is a 2D scalar uint8 image.
func DefaultImageType() ImageType {
	return ImageType{
		Dimension:     2,
		ComponentType: UInt8,
		PixelType:     PixelScalar,
		Components:    1,
	}
}

// MeshType is the shape descriptor of a [Mesh].
type MeshType struct {
	Dimension               int           `json:"dimension"`
	PointComponentType      ComponentType `json:"pointComponentType"`
	PointPixelComponentType ComponentType `json:"pointPixelComponentType"`
	PointPixelType          PixelType     `json:"pointPixelType"`
	PointPixelComponents    int           `json:"pointPixelComponents"`
	CellComponentType       ComponentType `json:"cellComponentType"`
	CellPixelComponentType  ComponentType `json:"cellPixelComponentType"`
	CellPixelType           PixelType     `json:"cellPixelType"`
	CellPixelComponents     int           `json:"cellPixelComponents"`
}

// DefaultMeshType is a 3D float32 mesh with uint32 cells and scalar pixels.
func DefaultMeshType() MeshType {
	return MeshType{
		Dimension:               3,
		PointComponentType:      Float32,
		PointPixelComponentType: Float32,
		PointPixelType:          PixelScalar,
		PointPixelComponents:    1,
		CellComponentType:       UInt32,
		CellPixelComponentType:  Float32,
		CellPixelType:           PixelScalar,
		CellPixelComponents:     1,
	}
}

// PolyDataType is the shape descriptor of a [PolyData].
type PolyDataType struct {
	PointPixelComponentType ComponentType `json:"pointPixelComponentType"`
	PointPixelType          PixelType     `json:"pointPixelType"`
	PointPixelComponents    int           `json:"pointPixelComponents"`
	CellPixelComponentType  ComponentType `json:"cellPixelComponentType"`
	CellPixelType           PixelType     `json:"cellPixelType"`
	CellPixelComponents     int           `json:"cellPixelComponents"`
}

// DefaultPolyDataType uses float32 scalar point and cell pixels.
func DefaultPolyDataType() PolyDataType {
	return PolyDataType{
		PointPixelComponentType: Float32,
		PointPixelType:          PixelScalar,
		PointPixelComponents:    1,
		CellPixelComponentType:  Float32,
		CellPixelType:           PixelScalar,
		CellPixelComponents:     1,
	}
}
