// Package errors defines the structured error type shared by every itkpipe
// package.
//
// Each error carries a [Kind] that maps to one failure class of the
// pipeline runtime:
//
//   - [KindModuleLoad]: the module could not be fetched, compiled, or
//     initialized. Not retried.
//   - [KindMarshalTypeMismatch]: a value's payload does not match its
//     declared interface type. Never coerced.
//   - [KindInvocationFailure]: the module returned a non-zero code. The
//     message is the captured error stream, which may be empty.
//   - [KindWorkerUnavailable] and [KindWorkerTerminated]: dispatch to a dead
//     or busy worker, or termination while a call was in flight.
//
// Match kinds with the standard errors.Is and the exported sentinels:
//
//	if errors.Is(err, errors.ErrWorkerTerminated) {
//	    // resubmit on a fresh worker
//	}
package errors
