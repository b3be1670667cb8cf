package marshal_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/iface"
	"github.com/caffeineduck/itkpipe/marshal"
	"github.com/caffeineduck/itkpipe/mount"
	"github.com/caffeineduck/itkpipe/pipeline/pipelinetest"
)

func sandbox(t *testing.T) *mount.Set {
	t.Helper()
	s, err := mount.NewSet(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func image2D() *iface.Image {
	img := iface.NewImage(iface.ImageType{
		Dimension:     2,
		ComponentType: iface.UInt16,
		PixelType:     iface.PixelScalar,
		Components:    1,
	})
	img.Size = []int{3, 2}
	img.Origin = []float64{1.5, -2}
	img.Spacing = []float64{0.7, 0.7}
	img.Direction = []float64{0, 1, 1, 0}
	img.Data = []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0}
	img.Metadata = iface.Metadata{{Key: "modality", Value: "MR"}}
	return img
}

func TestWriteImageLayout(t *testing.T) {
	ctx := context.Background()
	m := pipelinetest.NewModule(pipelinetest.Echo, sandbox(t))
	img := image2D()

	if err := marshal.WriteInput(ctx, m, 0, iface.TypeImage, img, nil); err != nil {
		t.Fatal(err)
	}

	data, ok := m.InputArray(0, 0)
	if !ok {
		t.Fatal("data array not allocated at sub-index 0")
	}
	if diff := cmp.Diff(img.Data, data); diff != "" {
		t.Errorf("data (-want +got):\n%s", diff)
	}
	dir, ok := m.InputArray(0, 1)
	if !ok {
		t.Fatal("direction array not allocated at sub-index 1")
	}
	if diff := cmp.Diff(img.Direction, iface.Float64s(dir)); diff != "" {
		t.Errorf("direction (-want +got):\n%s", diff)
	}

	var desc map[string]any
	if err := m.DecodeInput(0, &desc); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"imageType": map[string]any{
			"dimension":     2.0,
			"componentType": "uint16",
			"pixelType":     "Scalar",
			"components":    1.0,
		},
		"name":     "Image",
		"origin":   []any{1.5, -2.0},
		"spacing":  []any{0.7, 0.7},
		"size":     []any{3.0, 2.0},
		"metadata": []any{[]any{"modality", "MR"}},
	}
	for k, v := range want {
		if diff := cmp.Diff(v, desc[k]); diff != "" {
			t.Errorf("descriptor field %s (-want +got):\n%s", k, diff)
		}
	}
	for _, k := range []string{"data", "direction"} {
		s, _ := desc[k].(string)
		if _, err := marshal.DecodeAddress(s); err != nil {
			t.Errorf("descriptor field %s: %v", k, err)
		}
	}
}

func TestImageRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := pipelinetest.NewModule(pipelinetest.Echo, sandbox(t))
	img := image2D()

	if err := marshal.WriteInput(ctx, m, 0, iface.TypeImage, img, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.CopyInput(0, 0); err != nil {
		t.Fatal(err)
	}
	v, err := marshal.ReadOutput(ctx, m, 0, iface.TypeImage, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(iface.Value(img), v); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestReadOutputCopies(t *testing.T) {
	ctx := context.Background()
	m := pipelinetest.NewModule(pipelinetest.Echo, sandbox(t))
	m.SetOutputText(0, []byte("abc"))

	v, err := marshal.ReadOutput(ctx, m, 0, iface.TypeBinaryStream, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	ptr, _ := m.Call(ctx, marshal.FuncOutputArrayAddress, 0, 0, 0)
	m.Write(uint32(ptr[0]), []byte("xyz"))

	if got := string(v.(*iface.BinaryStream).Data); got != "abc" {
		t.Errorf("output aliases module memory: %q", got)
	}
}

func TestStreamDescriptor(t *testing.T) {
	ctx := context.Background()
	m := pipelinetest.NewModule(pipelinetest.Echo, sandbox(t))

	if err := marshal.WriteInput(ctx, m, 2, iface.TypeTextStream, &iface.TextStream{Data: "héllo"}, nil); err != nil {
		t.Fatal(err)
	}
	var desc struct {
		Size int    `json:"size"`
		Data string `json:"data"`
	}
	if err := m.DecodeInput(2, &desc); err != nil {
		t.Fatal(err)
	}
	if desc.Size != len("héllo") {
		t.Errorf("size %d", desc.Size)
	}
	raw, _ := m.InputArray(2, 0)
	if string(raw) != "héllo" {
		t.Errorf("array %q", raw)
	}
}

func TestFileInputsUseSandbox(t *testing.T) {
	ctx := context.Background()
	fsys := sandbox(t)
	m := pipelinetest.NewModule(pipelinetest.Echo, fsys)

	in := &iface.BinaryFile{Path: "/work/file0", Data: []byte{9, 8, 7}}
	if err := marshal.WriteInput(ctx, m, 0, iface.TypeBinaryFile, in, fsys); err != nil {
		t.Fatal(err)
	}
	if m.Inputs() != 0 {
		t.Error("file input went through module memory")
	}

	v, err := marshal.ReadOutput(ctx, m, 0, iface.TypeBinaryFile, "/work/file0", fsys)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(iface.Value(in), v); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	missing := &iface.TextFile{Path: "/work/absent.txt"}
	err = marshal.WriteInput(ctx, m, 1, iface.TypeTextFile, missing, fsys)
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for invisible file, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		value    iface.Value
		declared iface.InterfaceType
		field    string
	}{
		{"nil value", nil, iface.TypeImage, ""},
		{"tag mismatch", &iface.TextStream{}, iface.TypeBinaryStream, ""},
		{"unknown declared type", &iface.TextStream{}, iface.InterfaceType("InterfaceVolume"), ""},
		{"short image buffer", func() iface.Value { i := image2D(); i.Data = i.Data[:4]; return i }(), iface.TypeImage, "data"},
		{"direction length", func() iface.Value { i := image2D(); i.Direction = []float64{1}; return i }(), iface.TypeImage, "direction"},
		{"origin length", func() iface.Value { i := image2D(); i.Origin = nil; return i }(), iface.TypeImage, "origin"},
		{"unknown component", func() iface.Value { i := image2D(); i.ImageType.ComponentType = "float16"; return i }(), iface.TypeImage, "componentType"},
		{"mesh points", &iface.Mesh{MeshType: iface.DefaultMeshType(), NumberOfPoints: 2, Points: make([]byte, 12)}, iface.TypeMesh, "points"},
		{"polydata lines", &iface.PolyData{PolyDataType: iface.DefaultPolyDataType(), LinesBufferSize: 3, Lines: make([]byte, 4)}, iface.TypePolyData, "lines"},
		{"file without path", &iface.BinaryFile{}, iface.TypeBinaryFile, "path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := marshal.Validate(tt.value, tt.declared)
			if !errors.Is(err, errors.ErrMarshalTypeMismatch) {
				t.Fatalf("expected ErrMarshalTypeMismatch, got %v", err)
			}
			var e *errors.Error
			errors.As(err, &e)
			if tt.field != "" && (len(e.Path) == 0 || e.Path[len(e.Path)-1] != tt.field) {
				t.Errorf("path %v does not end in %q", e.Path, tt.field)
			}
		})
	}

	if err := marshal.Validate(image2D(), iface.TypeImage); err != nil {
		t.Errorf("valid image rejected: %v", err)
	}
}

func TestWriteInputMismatchPath(t *testing.T) {
	m := pipelinetest.NewModule(pipelinetest.Echo, sandbox(t))
	img := image2D()
	img.Spacing = []float64{1}

	err := marshal.WriteInput(context.Background(), m, 3, iface.TypeImage, img, nil)
	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *errors.Error, got %v", err)
	}
	if diff := cmp.Diff([]string{"inputs", "3", "spacing"}, e.Path); diff != "" {
		t.Errorf("path (-want +got):\n%s", diff)
	}
	if m.Inputs() != 0 {
		t.Error("nothing may be written on mismatch")
	}
}

func TestTransferables(t *testing.T) {
	img := image2D()
	got := marshal.Transferables(img)
	want := []marshal.Transferable{{Field: "data", Size: 12}, {Field: "direction", Size: 32}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("image (-want +got):\n%s", diff)
	}

	if got := marshal.Transferables(&iface.TextStream{Data: "long text"}); len(got) != 0 {
		t.Errorf("text stream reported transferables %v", got)
	}
	doc, _ := iface.NewJSON([]int{1})
	if got := marshal.Transferables(doc); len(got) != 0 {
		t.Errorf("json reported transferables %v", got)
	}

	poly := &iface.PolyData{Points: make([]byte, 24), Polygons: make([]byte, 16)}
	if marshal.TransferSize(poly) != 40 {
		t.Errorf("polydata transfer size %d", marshal.TransferSize(poly))
	}
}

func TestAddressEncoding(t *testing.T) {
	s := marshal.EncodeAddress(1048576)
	if s != "data:application/vnd.itk.address,0:1048576" {
		t.Errorf("encoded %q", s)
	}
	p, err := marshal.DecodeAddress(s)
	if err != nil || p != 1048576 {
		t.Errorf("decoded %d, %v", p, err)
	}
	if _, err := marshal.DecodeAddress("data:text/plain,12"); err == nil {
		t.Error("expected error for foreign data URL")
	}
}

func TestInvalidJSONOutput(t *testing.T) {
	m := pipelinetest.NewModule(pipelinetest.Echo, sandbox(t))
	m.SetOutputArray(0, 0, []byte("{not json"))

	_, err := marshal.ReadOutput(context.Background(), m, 0, iface.TypeJSONCompatible, "", nil)
	if !errors.Is(err, errors.ErrMarshalTypeMismatch) {
		t.Errorf("expected ErrMarshalTypeMismatch, got %v", err)
	}

	var raw json.RawMessage
	m.SetOutputArray(1, 0, []byte(`{"ok":true}`))
	v, err := marshal.ReadOutput(context.Background(), m, 1, iface.TypeJSONCompatible, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.(*iface.JSONCompatible).Decode(&raw); err != nil || string(raw) != `{"ok":true}` {
		t.Errorf("decoded %s, %v", raw, err)
	}
}
