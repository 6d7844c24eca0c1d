// errors.go - typed error kinds for the frame generation pipeline.
//
// Mirrors the shape of video_interface.go's VideoError: a small struct
// carrying which operation failed, human-readable detail, and the
// wrapped cause, but adds a Kind so callers can decide whether to
// surface, retry, or absorb without string-matching on Error().

package main

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a pipeline error by the response it calls for.
type ErrorKind int

const (
	// KindInitialization covers device/pipeline bring-up failures. Always fatal.
	KindInitialization ErrorKind = iota
	// KindCaptureTransient covers a dropped or stalled capture frame that
	// the frame queue can absorb without surfacing to the caller.
	KindCaptureTransient
	// KindCaptureFatal covers the capture backend going away entirely
	// (window closed, desktop duplication lost) and must be surfaced.
	KindCaptureFatal
	// KindResourceAllocation covers a GPU resource that failed to
	// allocate on resize; callers may skip the frame or escalate.
	KindResourceAllocation
	// KindShaderExecution covers a compute dispatch failure. Always fatal.
	KindShaderExecution
)

func (k ErrorKind) String() string {
	switch k {
	case KindInitialization:
		return "initialization"
	case KindCaptureTransient:
		return "capture_transient"
	case KindCaptureFatal:
		return "capture_fatal"
	case KindResourceAllocation:
		return "resource_allocation"
	case KindShaderExecution:
		return "shader_execution"
	default:
		return "unknown"
	}
}

// EngineError is the concrete error type returned across package
// boundaries. Operation names the component (e.g. "gpu_device.Init",
// "capture.acquire_latest"); Err is the wrapped cause, nil for
// synthetic errors raised directly by this package.
type EngineError struct {
	Kind      ErrorKind
	Operation string
	Details   string
	Err       error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Operation, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Operation, e.Details)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func newEngineError(kind ErrorKind, operation, details string, cause error) *EngineError {
	return &EngineError{
		Kind:      kind,
		Operation: operation,
		Details:   details,
		Err:       cause,
	}
}

// wrapf wraps cause with pkg/errors context and tags it with kind so
// upstream handlers can dispatch on IsFatal without inspecting strings.
func wrapf(kind ErrorKind, operation string, cause error, format string, args ...interface{}) *EngineError {
	details := fmt.Sprintf(format, args...)
	if cause != nil {
		cause = errors.Wrap(cause, details)
	}
	return newEngineError(kind, operation, details, cause)
}

// IsFatal reports whether err should terminate the engine rather than
// be absorbed by the caller. Initialization and shader-execution
// failures are always fatal; capture failures are fatal only when
// tagged KindCaptureFatal.
func IsFatal(err error) bool {
	var ee *EngineError
	if !errors.As(err, &ee) {
		return false
	}
	switch ee.Kind {
	case KindInitialization, KindShaderExecution, KindCaptureFatal:
		return true
	default:
		return false
	}
}
