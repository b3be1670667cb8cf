package runner

import (
	"strconv"

	"github.com/caffeineduck/itkpipe/errors"
)

// FlagMemoryIO tells a module to exchange non-file values through memory.
const FlagMemoryIO = "--memory-io"

type phase int

const (
	phaseInputs phase = iota
	phaseOutputs
	phaseFlags
)

// Args builds a module argument list in the order modules parse it: input
// identifiers, then output identifiers, then flags. Adding an identifier
// out of that order is recorded and reported by Build.
//
//	args, err := runner.NewArgs().
//		Input("file0").Output("0").Output("1").
//		MemoryIO().
//		Flag("--pstate-file", "file1").
//		Build()
type Args struct {
	args  []string
	phase phase
	err   error
}

// NewArgs returns an empty builder.
func NewArgs() *Args {
	return &Args{}
}

func (a *Args) enter(p phase, what string) bool {
	if a.err != nil {
		return false
	}
	if p < a.phase {
		a.err = errors.InvalidArgument("build args", "%s after %q", what, a.args[len(a.args)-1])
		return false
	}
	a.phase = p
	return true
}

// Input appends an input identifier.
func (a *Args) Input(id string) *Args {
	if a.enter(phaseInputs, "input "+strconv.Quote(id)) {
		a.args = append(a.args, id)
	}
	return a
}

// Output appends an output identifier.
func (a *Args) Output(id string) *Args {
	if a.enter(phaseOutputs, "output "+strconv.Quote(id)) {
		a.args = append(a.args, id)
	}
	return a
}

// Flag appends a flag with its values.
func (a *Args) Flag(name string, values ...string) *Args {
	if a.enter(phaseFlags, "flag") {
		a.args = append(a.args, name)
		a.args = append(a.args, values...)
	}
	return a
}

// Bool appends name only when on is set.
func (a *Args) Bool(name string, on bool) *Args {
	if on {
		return a.Flag(name)
	}
	return a
}

// Int appends name and v.
func (a *Args) Int(name string, v int) *Args {
	return a.Flag(name, strconv.Itoa(v))
}

// MemoryIO appends --memory-io.
func (a *Args) MemoryIO() *Args {
	return a.Flag(FlagMemoryIO)
}

// Build returns the argument list, or the first ordering error.
func (a *Args) Build() ([]string, error) {
	if a.err != nil {
		return nil, a.err
	}
	return append([]string(nil), a.args...), nil
}
