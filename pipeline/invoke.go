package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/marshal"
	"github.com/caffeineduck/itkpipe/mount"
)

// TrapReturnValue is reported when a module aborts with a trap instead of
// returning or exiting.
const TrapReturnValue = -1

// Invoke runs m once with the request's arguments, inputs and outputs.
//
// Inputs are written in declaration order before the entry point runs;
// outputs are read in declaration order only when the return code is 0.
// A non-zero return code yields both a Result, carrying the captured
// streams, and an InvocationFailure error. Cancelling ctx aborts the
// running instance.
//
// The host filesystem is reachable only through req.Mounts; everything else
// the module writes lands in a scratch directory removed on return.
func Invoke(ctx context.Context, m *Module, req Request) (*Result, error) {
	if m == nil {
		return nil, errors.InvalidArgument("invoke", "nil module")
	}
	log := Logger().With(zap.String("module", m.key))
	start := time.Now()

	if !m.memoryIO {
		for i, in := range req.Inputs {
			if !in.Type.IsFile() {
				return nil, errors.InvalidArgument("invoke", "input %d is %s but %s has no memory-io ABI", i, in.Type, m.name)
			}
		}
		for i, out := range req.Outputs {
			if !out.Type.IsFile() {
				return nil, errors.InvalidArgument("invoke", "output %d is %s but %s has no memory-io ABI", i, out.Type, m.name)
			}
		}
	}

	scratch, err := os.MkdirTemp("", "itkpipe-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	mounts, err := mount.NewSet(scratch)
	if err != nil {
		return nil, err
	}
	for _, dir := range req.Mounts {
		if err := mounts.Add(dir, mount.ReadWrite); err != nil {
			return nil, errors.InvalidArgument("invoke", "%v", err)
		}
	}

	var stdout, stderr bytes.Buffer
	inst, err := m.program.Instantiate(ctx, InstanceConfig{
		Name:   m.name,
		Args:   req.Args,
		Stdout: &stdout,
		Stderr: &stderr,
		Mounts: mounts,
	})
	if err != nil {
		return nil, errors.ModuleLoad(m.key, "instantiate", err)
	}
	defer inst.Close(context.Background())

	if inst.HasExport(FuncInitialize) {
		if _, err := inst.Call(ctx, FuncInitialize); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("invoke %s: %w", m.name, ctx.Err())
			}
			return nil, errors.ModuleLoad(m.key, "initialize", err)
		}
	}

	for i, in := range req.Inputs {
		if err := marshal.WriteInput(ctx, inst, i, in.Type, in.Value, mounts); err != nil {
			return nil, err
		}
	}

	rc, exited, runErr := run(ctx, inst, m.memoryIO)
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("invoke %s: %w", m.name, ctx.Err())
		}
		log.Debug("module trapped", zap.Error(runErr))
		rc = TrapReturnValue
		exited = true
		if stderr.Len() == 0 {
			stderr.WriteString(runErr.Error())
		}
	}

	result := &Result{ReturnValue: rc}

	if rc == 0 {
		outputs := make([]Output, len(req.Outputs))
		for i, out := range req.Outputs {
			v, err := marshal.ReadOutput(ctx, inst, i, out.Type, out.Path(), mounts)
			if err != nil {
				result.Stdout = stdout.String()
				result.Stderr = stderr.String()
				return result, err
			}
			outputs[i] = Output{Type: out.Type, Value: v}
		}
		result.Outputs = outputs
	}

	if m.memoryIO && !exited {
		if _, err := inst.Call(ctx, FuncDelayedExit, uint64(uint32(int32(rc)))); err != nil {
			if code, ok := exitCode(err); !ok || code != rc {
				log.Debug("delayed exit", zap.Error(err))
			}
		}
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	log.Debug("invocation finished",
		zap.Int("return_value", rc),
		zap.Int("outputs", len(result.Outputs)),
		zap.Duration("elapsed", time.Since(start)))

	if rc != 0 {
		return result, errors.InvocationFailure(m.key, rc, result.Stderr)
	}
	return result, nil
}

// run calls the entry point. exited reports that the module already left
// through proc_exit and must not be called again.
func run(ctx context.Context, inst Instance, memoryIO bool) (rc int, exited bool, err error) {
	entry := FuncStart
	if memoryIO {
		entry = FuncDelayedStart
	}

	res, err := inst.Call(ctx, entry)
	if err != nil {
		// A cancelled context also surfaces as an exit error.
		if ctx.Err() != nil {
			return 0, false, err
		}
		if code, ok := exitCode(err); ok {
			return code, true, nil
		}
		return 0, false, err
	}
	if memoryIO && len(res) > 0 {
		return int(int32(uint32(res[0]))), false, nil
	}
	return 0, !memoryIO, nil
}

func exitCode(err error) (int, bool) {
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		return int(int32(exit.ExitCode())), true
	}
	return 0, false
}
