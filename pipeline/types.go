package pipeline

import (
	"sync"

	"github.com/caffeineduck/itkpipe/errors"
	"github.com/caffeineduck/itkpipe/iface"
	"github.com/caffeineduck/itkpipe/marshal"
)

// Input is one declared input: a type tag and the value carrying it.
type Input struct {
	Type  iface.InterfaceType
	Value iface.Value
}

// Output is one declared output. Before invocation Value is nil, or a
// *iface.BinaryFile / *iface.TextFile naming the path to collect; after a
// successful invocation it holds the produced value.
type Output struct {
	Type  iface.InterfaceType
	Value iface.Value
}

// Path returns the virtual path a file output is collected from.
func (o Output) Path() string {
	switch v := o.Value.(type) {
	case *iface.BinaryFile:
		return v.Path
	case *iface.TextFile:
		return v.Path
	}
	return ""
}

// Request is one invocation. Callers build a fresh Request per call; it is
// never modified after submission.
type Request struct {
	Location string
	BaseURL  string
	Args     []string
	Outputs  []Output
	Inputs   []Input
	Mounts   []string // host directories made visible at their own path
}

// Result is the outcome of an invocation. Outputs is populated only when
// ReturnValue is 0.
type Result struct {
	ReturnValue int
	Stdout      string
	Stderr      string
	Outputs     []Output
}

// Envelope carries a Result across a goroutine boundary with move
// semantics: Handoff transfers ownership and leaves the sender empty.
type Envelope struct {
	mu     sync.Mutex
	result *Result
	moved  bool
}

// NewEnvelope wraps r.
func NewEnvelope(r *Result) *Envelope {
	return &Envelope{result: r}
}

// Handoff moves the result into a new envelope. Reading the old one after
// Handoff fails with ErrBufferTransferred.
func (e *Envelope) Handoff() (*Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.moved {
		return nil, errors.Wrap(errors.KindBufferTransferred, "handoff", errors.New("envelope already handed off"))
	}
	r := e.result
	e.result = nil
	e.moved = true
	return &Envelope{result: r}, nil
}

// Result returns the carried result.
func (e *Envelope) Result() (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.moved {
		return nil, errors.Wrap(errors.KindBufferTransferred, "read", errors.New("envelope was handed off"))
	}
	return e.result, nil
}

// TransferSize is the number of output bytes the envelope moves.
func (e *Envelope) TransferSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return 0
	}
	n := 0
	for _, o := range e.result.Outputs {
		if o.Value != nil {
			n += marshal.TransferSize(o.Value)
		}
	}
	return n
}
