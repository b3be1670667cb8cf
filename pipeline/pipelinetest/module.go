package pipelinetest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero/sys"

	"github.com/caffeineduck/itkpipe/marshal"
	"github.com/caffeineduck/itkpipe/mount"
	"github.com/caffeineduck/itkpipe/pipeline"
)

type span struct {
	ptr, size uint32
}

type slot struct {
	json   span
	arrays map[int]span
}

func newSlot() *slot { return &slot{arrays: make(map[int]span)} }

// Module is one fake instance. Pipeline Funcs use it as the native side of
// the memory-io ABI.
type Module struct {
	Name   string
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
	FS     *mount.Set

	program *program

	mu       sync.Mutex
	mem      []byte
	inputs   map[int]*slot
	outputs  map[int]*slot
	exitCall bool
	closed   bool
}

var _ pipeline.Instance = (*Module)(nil)

func (m *Module) HasExport(name string) bool { return m.program.HasExport(name) }

func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Module) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("module %s closed", m.Name)
	}
	m.mu.Unlock()

	if !m.HasExport(name) {
		return nil, fmt.Errorf("export %s not found", name)
	}

	arg := func(i int) int {
		if i < len(params) {
			return int(uint32(params[i]))
		}
		return 0
	}

	switch name {
	case pipeline.FuncInitialize:
		return nil, nil

	case pipeline.FuncDelayedStart, pipeline.FuncStart:
		rc := m.program.def.fn(ctx, m)
		if ctx.Err() != nil {
			m.shut()
			return nil, sys.NewExitError(sys.ExitCodeContextCanceled)
		}
		m.mu.Lock()
		exited := m.exitCall
		m.mu.Unlock()
		if exited || (name == pipeline.FuncStart && rc != 0) {
			m.shut()
			return nil, sys.NewExitError(uint32(rc))
		}
		if name == pipeline.FuncStart {
			return nil, nil
		}
		return []uint64{uint64(uint32(int32(rc)))}, nil

	case pipeline.FuncDelayedExit:
		m.shut()
		return nil, sys.NewExitError(uint32(arg(0)))

	case marshal.FuncInputArrayAlloc:
		ptr := m.alloc(uint32(arg(3)))
		m.slotFor(m.inputs, arg(1)).arrays[arg(2)] = span{ptr, uint32(arg(3))}
		return []uint64{uint64(ptr)}, nil

	case marshal.FuncInputJSONAlloc:
		ptr := m.alloc(uint32(arg(2)))
		m.slotFor(m.inputs, arg(1)).json = span{ptr, uint32(arg(2))}
		return []uint64{uint64(ptr)}, nil

	case marshal.FuncOutputJSONAddress:
		return []uint64{uint64(m.outputSpan(arg(1), -1).ptr)}, nil
	case marshal.FuncOutputJSONSize:
		return []uint64{uint64(m.outputSpan(arg(1), -1).size)}, nil
	case marshal.FuncOutputArrayAddress:
		return []uint64{uint64(m.outputSpan(arg(1), arg(2)).ptr)}, nil
	case marshal.FuncOutputArraySize:
		return []uint64{uint64(m.outputSpan(arg(1), arg(2)).size)}, nil
	}
	return nil, fmt.Errorf("export %s not implemented", name)
}

func (m *Module) shut() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Read returns a view of fake linear memory.
func (m *Module) Read(offset, size uint32) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := uint64(offset) + uint64(size)
	if end > uint64(len(m.mem)) {
		return nil, false
	}
	return m.mem[offset:end], true
}

func (m *Module) Write(offset uint32, data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(m.mem)) {
		return false
	}
	copy(m.mem[offset:], data)
	return true
}

// alloc bump-allocates size bytes aligned to 8. Address 0 is never handed out.
func (m *Module) alloc(size uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ptr := (uint32(len(m.mem)) + 7) &^ 7
	grown := make([]byte, int(ptr)+int(size))
	copy(grown, m.mem)
	m.mem = grown
	return ptr
}

func (m *Module) slotFor(table map[int]*slot, index int) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := table[index]
	if !ok {
		s = newSlot()
		table[index] = s
	}
	return s
}

func (m *Module) outputSpan(index, sub int) span {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.outputs[index]
	if !ok {
		return span{}
	}
	if sub < 0 {
		return s.json
	}
	return s.arrays[sub]
}

func (m *Module) bytes(sp span) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, sp.size)
	copy(out, m.mem[sp.ptr:sp.ptr+sp.size])
	return out
}

// Exit makes the running entry point leave through proc_exit with code, the
// way a module that calls exit() does. It returns code for convenience.
func (m *Module) Exit(code int) int {
	m.mu.Lock()
	m.exitCall = true
	m.mu.Unlock()
	return code
}

// Errorf writes to the module's error stream.
func (m *Module) Errorf(format string, args ...any) {
	fmt.Fprintf(m.Stderr, format, args...)
}

// Printf writes to the module's output stream.
func (m *Module) Printf(format string, args ...any) {
	fmt.Fprintf(m.Stdout, format, args...)
}

// Inputs reports how many inputs were written through the ABI.
func (m *Module) Inputs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// InputJSON returns the descriptor of input index without its NUL.
func (m *Module) InputJSON(index int) ([]byte, bool) {
	m.mu.Lock()
	s, ok := m.inputs[index]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	doc := m.bytes(s.json)
	return []byte(strings.TrimRight(string(doc), "\x00")), true
}

// DecodeInput unmarshals the descriptor of input index into v.
func (m *Module) DecodeInput(index int, v any) error {
	doc, ok := m.InputJSON(index)
	if !ok {
		return fmt.Errorf("input %d not provided", index)
	}
	return json.Unmarshal(doc, v)
}

// InputArray returns a copy of sub-array sub of input index.
func (m *Module) InputArray(index, sub int) ([]byte, bool) {
	m.mu.Lock()
	s, ok := m.inputs[index]
	var sp span
	if ok {
		sp, ok = s.arrays[sub]
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return m.bytes(sp), true
}

// SetOutputArray stores data as sub-array sub of output index.
func (m *Module) SetOutputArray(index, sub int, data []byte) {
	ptr := m.alloc(uint32(len(data)))
	m.Write(ptr, data)
	m.slotFor(m.outputs, index).arrays[sub] = span{ptr, uint32(len(data))}
}

// SetOutputJSON stores the NUL-terminated encoding of v as the descriptor of
// output index.
func (m *Module) SetOutputJSON(index int, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	doc = append(doc, 0)
	ptr := m.alloc(uint32(len(doc)))
	m.Write(ptr, doc)
	m.slotFor(m.outputs, index).json = span{ptr, uint32(len(doc))}
	return nil
}

// SetOutputText stores a text or binary stream output.
func (m *Module) SetOutputText(index int, data []byte) error {
	m.SetOutputArray(index, 0, data)
	return m.SetOutputJSON(index, map[string]any{"size": len(data)})
}

// CopyInput republishes every array and the descriptor of input in as
// output out.
func (m *Module) CopyInput(in, out int) error {
	m.mu.Lock()
	s, ok := m.inputs[in]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("input %d not provided", in)
	}
	for sub, sp := range s.arrays {
		m.SetOutputArray(out, sub, m.bytes(sp))
	}
	doc, _ := m.InputJSON(in)
	doc = append(doc, 0)
	ptr := m.alloc(uint32(len(doc)))
	m.Write(ptr, doc)
	m.slotFor(m.outputs, out).json = span{ptr, uint32(len(doc))}
	return nil
}

// Positional splits Args into the leading identifiers and the flags that
// follow the first argument starting with "--".
func (m *Module) Positional() (ids, flags []string) {
	for i, a := range m.Args {
		if strings.HasPrefix(a, "--") {
			return m.Args[:i], m.Args[i:]
		}
	}
	return m.Args, nil
}
