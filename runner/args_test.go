package runner

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/iface"
	"github.com/caffeineduck/itkpipe/pipeline"
)

func TestArgsOrder(t *testing.T) {
	got, err := NewArgs().
		Input("file0").
		Output("0").Output("1").
		MemoryIO().
		Flag("--pstate-file", "file1").
		Int("--frame", 2).
		Bool("--pgm", false).
		Bool("--bitmap-output", true).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"file0", "0", "1", "--memory-io", "--pstate-file", "file1", "--frame", "2", "--bitmap-output"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("args (-want +got):\n%s", diff)
	}
}

func TestArgsRejectsMisplacedIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		build func(*Args) *Args
	}{
		{"input after flag", func(a *Args) *Args { return a.MemoryIO().Input("file0") }},
		{"output after flag", func(a *Args) *Args { return a.Input("file0").Flag("--dicom").Output("0") }},
		{"input after output", func(a *Args) *Args { return a.Output("0").Input("file0") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build(NewArgs()).Build()
			if !errors.Is(err, errors.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestCopyInputs(t *testing.T) {
	img := iface.NewImage(iface.DefaultImageType())
	img.Size = []int{2, 1}
	img.Data = []byte{1, 2}
	in := []pipeline.Input{
		{Type: iface.TypeImage, Value: img},
		{Type: iface.TypeBinaryStream, Value: &iface.BinaryStream{Data: []byte("raw")}},
	}

	out := copyInputs(in)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("copy differs (-want +got):\n%s", diff)
	}
	img.Data[0] = 99
	in[1].Value.(*iface.BinaryStream).Data[0] = 'X'
	if out[0].Value.(*iface.Image).Data[0] != 1 {
		t.Error("image buffer shared with the caller")
	}
	if string(out[1].Value.(*iface.BinaryStream).Data) != "raw" {
		t.Error("stream buffer shared with the caller")
	}

	if copyInputs(nil) != nil {
		t.Error("nil inputs should stay nil")
	}
}
