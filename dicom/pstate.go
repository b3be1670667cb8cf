package dicom

import (
	"context"
	"fmt"

	"github.com/caffeineduck/itkpipe/iface"
	"github.com/caffeineduck/itkpipe/pipeline"
	"github.com/caffeineduck/itkpipe/runner"
	"github.com/caffeineduck/itkpipe/worker"
)

// PipelineApplyPresentationState is the module location of the
// presentation state pipeline.
const PipelineApplyPresentationState = "apply-pstate-to-image"

// ApplyPresentationStateOptions are the optional parameters of
// ApplyPresentationState.
type ApplyPresentationStateOptions struct {
	// Worker to run on; nil uses the pool default.
	Worker *worker.Worker

	// PresentationStateFile is the content of the presentation state to
	// apply.
	PresentationStateFile []byte

	// ConfigFile is a virtual path to a configuration file, typically on a
	// mounted directory.
	ConfigFile string

	// Frame selects the image frame; 0 leaves the module default of 1.
	Frame int

	PresentationStateOutput bool // text rendering of the applied state
	BitmapOutput            bool // the rendered bitmap
	PGM                     bool
	DICOM                   bool

	RunOptions []runner.Option
}

// ApplyPresentationStateResult holds the outputs of ApplyPresentationState.
type ApplyPresentationStateResult struct {
	Worker            *worker.Worker
	PresentationState string
	Bitmap            []byte
}

// ApplyPresentationState renders image with a presentation state applied.
// The error of a failed run is the module's error stream; the result still
// carries the worker for reuse.
func ApplyPresentationState(ctx context.Context, image []byte, opts ApplyPresentationStateOptions) (*ApplyPresentationStateResult, error) {
	inputs := []pipeline.Input{
		{Type: iface.TypeBinaryFile, Value: &iface.BinaryFile{Path: "file0", Data: image}},
	}
	outputs := []pipeline.Output{
		{Type: iface.TypeTextStream},
		{Type: iface.TypeBinaryStream},
	}

	args := runner.NewArgs().Input("file0").Output("0").Output("1").MemoryIO()
	if opts.PresentationStateFile != nil {
		name := fmt.Sprintf("file%d", len(inputs))
		inputs = append(inputs, pipeline.Input{
			Type:  iface.TypeBinaryFile,
			Value: &iface.BinaryFile{Path: name, Data: opts.PresentationStateFile},
		})
		args.Flag("--pstate-file", name)
	}
	if opts.ConfigFile != "" {
		args.Flag("--config-file", opts.ConfigFile)
	}
	if opts.Frame != 0 {
		args.Int("--frame", opts.Frame)
	}
	args.Bool("--pstate-output", opts.PresentationStateOutput).
		Bool("--bitmap-output", opts.BitmapOutput).
		Bool("--pgm", opts.PGM).
		Bool("--dicom", opts.DICOM)

	argv, err := args.Build()
	if err != nil {
		return nil, err
	}

	res, err := runner.Run(ctx, opts.Worker, PipelineApplyPresentationState, argv, outputs, inputs, opts.RunOptions...)
	if err != nil {
		if res != nil {
			return &ApplyPresentationStateResult{Worker: res.Worker}, err
		}
		return nil, err
	}

	out := &ApplyPresentationStateResult{Worker: res.Worker}
	if s, ok := res.Outputs[0].Value.(*iface.TextStream); ok {
		out.PresentationState = s.Data
	}
	if b, ok := res.Outputs[1].Value.(*iface.BinaryStream); ok {
		out.Bitmap = b.Data
	}
	return out, nil
}
