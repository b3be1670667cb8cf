package marshal

import "github.com/caffeineduck/itkpipe/iface"

// JSON descriptors exchanged through the module's JSON slots. Buffer fields
// hold addresses produced by EncodeAddress.

type streamJSON struct {
	Size int    `json:"size"`
	Data string `json:"data"`
}

type imageJSON struct {
	ImageType iface.ImageType `json:"imageType"`
	Name      string          `json:"name"`
	Origin    []float64       `json:"origin"`
	Spacing   []float64       `json:"spacing"`
	Direction string          `json:"direction"`
	Size      []int           `json:"size"`
	Metadata  iface.Metadata  `json:"metadata"`
	Data      string          `json:"data"`
}

type meshJSON struct {
	MeshType            iface.MeshType `json:"meshType"`
	Name                string         `json:"name"`
	NumberOfPoints      int            `json:"numberOfPoints"`
	Points              string         `json:"points"`
	NumberOfPointPixels int            `json:"numberOfPointPixels"`
	PointData           string         `json:"pointData"`
	NumberOfCells       int            `json:"numberOfCells"`
	Cells               string         `json:"cells"`
	CellBufferSize      int            `json:"cellBufferSize"`
	NumberOfCellPixels  int            `json:"numberOfCellPixels"`
	CellData            string         `json:"cellData"`
}

type polyDataJSON struct {
	PolyDataType             iface.PolyDataType `json:"polyDataType"`
	Name                     string             `json:"name"`
	NumberOfPoints           int                `json:"numberOfPoints"`
	Points                   string             `json:"points"`
	VerticesBufferSize       int                `json:"verticesBufferSize"`
	Vertices                 string             `json:"vertices"`
	LinesBufferSize          int                `json:"linesBufferSize"`
	Lines                    string             `json:"lines"`
	PolygonsBufferSize       int                `json:"polygonsBufferSize"`
	Polygons                 string             `json:"polygons"`
	TriangleStripsBufferSize int                `json:"triangleStripsBufferSize"`
	TriangleStrips           string             `json:"triangleStrips"`
	NumberOfPointPixels      int                `json:"numberOfPointPixels"`
	PointData                string             `json:"pointData"`
	NumberOfCellPixels       int                `json:"numberOfCellPixels"`
	CellData                 string             `json:"cellData"`
}

// Sub-array indices per interface type.
const (
	subData      = 0
	subDirection = 1

	subMeshPoints    = 0
	subMeshCells     = 1
	subMeshPointData = 2
	subMeshCellData  = 3

	subPolyPoints         = 0
	subPolyVertices       = 1
	subPolyLines          = 2
	subPolyPolygons       = 3
	subPolyTriangleStrips = 4
	subPolyPointData      = 5
	subPolyCellData       = 6
)
