package marshal

import (
	"context"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/caffeineduck/itkpipe/errors"
)

// Export names of the memory-io ABI implemented by pipeline modules.
const (
	FuncInputArrayAlloc    = "itk_wasm_input_array_alloc"
	FuncInputJSONAlloc     = "itk_wasm_input_json_alloc"
	FuncOutputJSONAddress  = "itk_wasm_output_json_address"
	FuncOutputJSONSize     = "itk_wasm_output_json_size"
	FuncOutputArrayAddress = "itk_wasm_output_array_address"
	FuncOutputArraySize    = "itk_wasm_output_array_size"
)

// addressPrefix marks a JSON string field that holds a pointer into module
// memory rather than inline data.
const addressPrefix = "data:application/vnd.itk.address,0:"

// memoryIndex is the only linear memory modules export.
const memoryIndex = 0

// ABI is the module side of one instantiated pipeline.
//
// Read returns a view of module memory that is only valid until the next
// call into the module; callers copy what they keep.
type ABI interface {
	Call(ctx context.Context, name string, params ...uint64) ([]uint64, error)
	Read(offset, size uint32) ([]byte, bool)
	Write(offset uint32, data []byte) bool
}

// Sandbox is the filesystem a module sees, addressed by virtual path.
type Sandbox interface {
	WriteFile(virtualPath string, data []byte) error
	ReadFile(virtualPath string) ([]byte, error)
	Stat(virtualPath string) (fs.FileInfo, error)
}

// EncodeAddress formats ptr as an in-JSON memory reference.
func EncodeAddress(ptr uint32) string {
	return addressPrefix + strconv.FormatUint(uint64(ptr), 10)
}

// DecodeAddress parses a reference written by [EncodeAddress].
func DecodeAddress(s string) (uint32, error) {
	rest, ok := strings.CutPrefix(s, addressPrefix)
	if !ok {
		return 0, fmt.Errorf("not a memory address: %q", s)
	}
	v, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("memory address %q: %w", s, err)
	}
	return uint32(v), nil
}

func call32(ctx context.Context, mem ABI, name string, params ...uint64) (uint32, error) {
	res, err := mem.Call(ctx, name, params...)
	if err != nil {
		return 0, fmt.Errorf("call %s: %w", name, err)
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("call %s: no result", name)
	}
	return uint32(res[0]), nil
}

// writeArray allocates an input array and copies data into it.
func writeArray(ctx context.Context, mem ABI, index, sub int, data []byte) (uint32, error) {
	ptr, err := call32(ctx, mem, FuncInputArrayAlloc,
		memoryIndex, uint64(index), uint64(sub), uint64(len(data)))
	if err != nil {
		return 0, err
	}
	if len(data) > 0 && !mem.Write(ptr, data) {
		return 0, fmt.Errorf("input %d array %d: write %d bytes at %d out of range", index, sub, len(data), ptr)
	}
	return ptr, nil
}

// writeJSON allocates the input's JSON slot and copies the NUL-terminated
// document into it.
func writeJSON(ctx context.Context, mem ABI, index int, doc []byte) error {
	buf := make([]byte, len(doc)+1)
	copy(buf, doc)
	ptr, err := call32(ctx, mem, FuncInputJSONAlloc, memoryIndex, uint64(index), uint64(len(buf)))
	if err != nil {
		return err
	}
	if !mem.Write(ptr, buf) {
		return fmt.Errorf("input %d json: write %d bytes at %d out of range", index, len(buf), ptr)
	}
	return nil
}

// readArray copies output sub-array sub of index out of module memory.
func readArray(ctx context.Context, mem ABI, index, sub int) ([]byte, error) {
	ptr, err := call32(ctx, mem, FuncOutputArrayAddress, memoryIndex, uint64(index), uint64(sub))
	if err != nil {
		return nil, err
	}
	size, err := call32(ctx, mem, FuncOutputArraySize, memoryIndex, uint64(index), uint64(sub))
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	view, ok := mem.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("output %d array %d: read %d bytes at %d out of range", index, sub, size, ptr)
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// readJSON copies the JSON document of output index, dropping a trailing NUL.
func readJSON(ctx context.Context, mem ABI, index int) ([]byte, error) {
	ptr, err := call32(ctx, mem, FuncOutputJSONAddress, memoryIndex, uint64(index))
	if err != nil {
		return nil, err
	}
	size, err := call32(ctx, mem, FuncOutputJSONSize, memoryIndex, uint64(index))
	if err != nil {
		return nil, err
	}
	view, ok := mem.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("output %d json: read %d bytes at %d out of range", index, size, ptr)
	}
	if n := len(view); n > 0 && view[n-1] == 0 {
		view = view[:n-1]
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

func indexPath(dir string, index int, rest ...string) []string {
	return append([]string{dir, strconv.Itoa(index)}, rest...)
}

func prefixed(err error, dir string, index int) error {
	var e *errors.Error
	if errors.As(err, &e) && e.Kind == errors.KindMarshalTypeMismatch {
		e.Path = indexPath(dir, index, e.Path...)
		return e
	}
	return err
}
