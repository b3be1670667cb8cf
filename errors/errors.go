package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind categorizes the error
type Kind string

const (
	KindModuleLoad          Kind = "module_load"           // fetch, compile or init failed
	KindMarshalTypeMismatch Kind = "marshal_type_mismatch" // declared type tag vs payload
	KindInvocationFailure   Kind = "invocation_failure"    // non-zero return code
	KindWorkerUnavailable   Kind = "worker_unavailable"    // dispatch to a dead or busy worker
	KindWorkerTerminated    Kind = "worker_terminated"     // terminated mid-flight
	KindInvalidArgument     Kind = "invalid_argument"      // malformed request
	KindBufferTransferred   Kind = "buffer_transferred"    // read after hand-off
)

// Sentinels for errors.Is matching by kind.
var (
	ErrModuleLoad          = &Error{Kind: KindModuleLoad}
	ErrMarshalTypeMismatch = &Error{Kind: KindMarshalTypeMismatch}
	ErrInvocationFailure   = &Error{Kind: KindInvocationFailure}
	ErrWorkerUnavailable   = &Error{Kind: KindWorkerUnavailable}
	ErrWorkerTerminated    = &Error{Kind: KindWorkerTerminated}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrBufferTransferred   = &Error{Kind: KindBufferTransferred}
)

// Error is the structured error type returned by every itkpipe package.
type Error struct {
	Cause       error
	Kind        Kind
	Op          string
	Location    string
	Detail      string
	Path        []string
	ReturnValue int
}

// Error implements the error interface.
//
// An invocation failure renders as the captured error stream so callers can
// surface it verbatim; when the stream is empty a generic message is used.
func (e *Error) Error() string {
	if e.Kind == KindInvocationFailure {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Location != "" {
			return fmt.Sprintf("pipeline %s returned %d", e.Location, e.ReturnValue)
		}
		return fmt.Sprintf("pipeline returned %d", e.ReturnValue)
	}

	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Kind))
	b.WriteByte(']')

	if e.Op != "" {
		b.WriteByte(' ')
		b.WriteString(e.Op)
	}

	if e.Location != "" {
		b.WriteByte(' ')
		b.WriteString(e.Location)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target has the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Is and As forward to the standard library so callers need a single import.
func Is(err, target error) bool { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }

// New returns a plain error, like the standard library's errors.New.
func New(text string) error { return stderrors.New(text) }

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ModuleLoad creates a module load error
func ModuleLoad(location, op string, cause error) *Error {
	return &Error{
		Kind:     KindModuleLoad,
		Op:       op,
		Location: location,
		Cause:    cause,
	}
}

// TypeMismatch creates a marshaling type mismatch error
func TypeMismatch(path []string, format string, args ...any) *Error {
	return &Error{
		Kind:   KindMarshalTypeMismatch,
		Path:   path,
		Detail: fmt.Sprintf(format, args...),
	}
}

// InvocationFailure creates the error for a non-zero return code.
func InvocationFailure(location string, returnValue int, stderr string) *Error {
	return &Error{
		Kind:        KindInvocationFailure,
		Location:    location,
		ReturnValue: returnValue,
		Detail:      stderr,
	}
}

// WorkerUnavailable creates an error for dispatch to a worker that cannot take it.
func WorkerUnavailable(workerID, detail string) *Error {
	return &Error{
		Kind:     KindWorkerUnavailable,
		Op:       "dispatch",
		Location: workerID,
		Detail:   detail,
	}
}

// WorkerTerminated creates an error for an invocation aborted by termination.
func WorkerTerminated(workerID string) *Error {
	return &Error{
		Kind:     KindWorkerTerminated,
		Op:       "invoke",
		Location: workerID,
		Detail:   "worker terminated while invocation was in flight",
	}
}

// InvalidArgument creates an invalid argument error
func InvalidArgument(op, format string, args ...any) *Error {
	return &Error{
		Kind:   KindInvalidArgument,
		Op:     op,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{
		Kind:  kind,
		Op:    op,
		Cause: cause,
	}
}
