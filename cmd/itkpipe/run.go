package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/caffeineduck/itkpipe/iface"
	"github.com/caffeineduck/itkpipe/pipeline"
	"github.com/caffeineduck/itkpipe/runner"
)

var runCmd = &cobra.Command{
	Use:   "run <module> [flags] [-- module-args...]",
	Short: "Run a pipeline module once",
	Long: `Run a pipeline module in process and collect its outputs.

Module arguments follow "--" and are passed verbatim, inputs first, then
outputs, then flags:

  itkpipe run median --base-url ./pipelines \
    --input binary-stream:in.iwi.cbor --output binary-stream:out.iwi.cbor \
    -- 0 0 --memory-io --radius 2

Inputs are type:path. Stream and json inputs are read from path ("-"
reads stdin); file inputs are mounted and passed by their host path.

Outputs are type[:name]. Stream and json outputs without a name go to
stdout; with a name they are written under --out-dir. File outputs name the
virtual path the module writes; the file is copied to --out-dir.

Types: text-stream, binary-stream, text-file, binary-file, json.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringArrayP("input", "i", nil, "Input type:path (repeatable, in argument order)")
	runCmd.Flags().StringArrayP("output", "o", nil, "Output type[:name] (repeatable, in argument order)")
	runCmd.Flags().StringSlice("mount", nil, "Host directory made visible to the module (repeatable)")
	runCmd.Flags().String("out-dir", ".", "Directory named outputs are written to")
	rootCmd.AddCommand(runCmd)
}

type runJob struct {
	module  string
	args    []string
	inputs  []string
	outputs []string
	mounts  []string
	outDir  string
}

func runRun(cmd *cobra.Command, args []string) error {
	job := runJob{module: args[0], args: args[1:], mounts: cfg.Mounts}
	job.inputs, _ = cmd.Flags().GetStringArray("input")
	job.outputs, _ = cmd.Flags().GetStringArray("output")
	job.outDir, _ = cmd.Flags().GetString("out-dir")
	if m, _ := cmd.Flags().GetStringSlice("mount"); len(m) > 0 {
		job.mounts = append(job.mounts, m...)
	}

	cache, err := pipeline.NewCache(cfg.cacheOptions()...)
	if err != nil {
		return err
	}
	defer cache.Close(context.Background())

	res, err := execute(cmd.Context(), cache, job, os.Stdin, cmd.OutOrStdout())
	if res != nil {
		fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
		if res.ReturnValue != 0 {
			return &exitError{code: res.ReturnValue}
		}
	}
	return err
}

// execute runs job against cache. The module's stdout and any unnamed
// outputs are written to stdout.
func execute(ctx context.Context, cache *pipeline.Cache, job runJob, stdin io.Reader, stdout io.Writer) (*runner.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	inputs, mounts, err := buildInputs(job.inputs, stdin)
	if err != nil {
		return nil, err
	}
	outputs, err := buildOutputs(job.outputs)
	if err != nil {
		return nil, err
	}

	logger.Debug("running module",
		zap.String("module", job.module),
		zap.Strings("args", job.args),
		zap.Int("inputs", len(inputs)),
		zap.Int("outputs", len(outputs)))

	res, err := runner.Run(ctx, nil, job.module, job.args, outputs, inputs,
		runner.WithInProcess(),
		runner.WithCache(cache),
		runner.WithNoCopy(),
		runner.WithPipelineBaseURL(cfg.BaseURL),
		runner.WithMountDirs(append(mounts, job.mounts...)...),
	)
	if res == nil {
		return nil, err
	}
	fmt.Fprint(stdout, res.Stdout)
	if err != nil {
		return res, err
	}

	for i, out := range res.Outputs {
		if err := writeOutput(job.outputs[i], out, job.outDir, stdout); err != nil {
			return res, err
		}
	}
	return res, nil
}

func buildInputs(args []string, stdin io.Reader) ([]pipeline.Input, []string, error) {
	var (
		inputs []pipeline.Input
		mounts []string
	)
	for _, s := range args {
		t, p, err := splitTyped(s)
		if err != nil {
			return nil, nil, err
		}
		if p == "" {
			return nil, nil, fmt.Errorf("input %q needs a path", s)
		}

		if t.IsFile() {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, nil, err
			}
			mounts = append(mounts, abs)
			vp := filepath.ToSlash(abs)
			var v iface.Value = &iface.BinaryFile{Path: vp}
			if t == iface.TypeTextFile {
				v = &iface.TextFile{Path: vp}
			}
			inputs = append(inputs, pipeline.Input{Type: t, Value: v})
			continue
		}

		data, err := readInput(p, stdin)
		if err != nil {
			return nil, nil, err
		}
		var v iface.Value
		switch t {
		case iface.TypeTextStream:
			v = &iface.TextStream{Data: string(data)}
		case iface.TypeBinaryStream:
			v = &iface.BinaryStream{Data: data}
		case iface.TypeJSONCompatible:
			if !json.Valid(data) {
				return nil, nil, fmt.Errorf("input %s is not valid JSON", p)
			}
			v = &iface.JSONCompatible{Data: data}
		default:
			return nil, nil, fmt.Errorf("%s inputs are not supported on the command line", t)
		}
		inputs = append(inputs, pipeline.Input{Type: t, Value: v})
	}
	return inputs, mounts, nil
}

func readInput(p string, stdin io.Reader) ([]byte, error) {
	if p != "-" {
		return os.ReadFile(p)
	}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return nil, fmt.Errorf("stdin is a terminal; pipe the input or give a path")
	}
	return io.ReadAll(stdin)
}

func buildOutputs(args []string) ([]pipeline.Output, error) {
	outputs := make([]pipeline.Output, 0, len(args))
	for _, s := range args {
		t, p, err := splitTyped(s)
		if err != nil {
			return nil, err
		}
		out := pipeline.Output{Type: t}
		switch t {
		case iface.TypeBinaryFile:
			if p == "" {
				return nil, fmt.Errorf("output %q needs a virtual path", s)
			}
			out.Value = &iface.BinaryFile{Path: p}
		case iface.TypeTextFile:
			if p == "" {
				return nil, fmt.Errorf("output %q needs a virtual path", s)
			}
			out.Value = &iface.TextFile{Path: p}
		case iface.TypeTextStream, iface.TypeBinaryStream, iface.TypeJSONCompatible:
		default:
			return nil, fmt.Errorf("%s outputs are not supported on the command line", t)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func writeOutput(arg string, out pipeline.Output, outDir string, stdout io.Writer) error {
	_, name, _ := splitTyped(arg)

	var data []byte
	switch v := out.Value.(type) {
	case *iface.TextStream:
		data = []byte(v.Data)
	case *iface.BinaryStream:
		data = v.Data
	case *iface.JSONCompatible:
		data = v.Data
	case *iface.TextFile:
		data = []byte(v.Data)
		name = path.Base(v.Path)
	case *iface.BinaryFile:
		data = v.Data
		name = path.Base(v.Path)
	}

	if name == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, filepath.FromSlash(name)), data, 0o644)
}
