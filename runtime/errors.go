package runtime

import (
	"errors"

	"github.com/isaigordeev/saxsrs/kernel"
	"github.com/isaigordeev/saxsrs/runtime/internal"
	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

// Sentinel errors a Runtime's lifecycle methods may return. They are
// distinct values from the runtime/internal sentinels; mapErr translates
// an internal sentinel into the matching one here, so callers compare
// against these with errors.Is and never need runtime/internal.
var (
	ErrAlreadyRunning = errors.New("runtime: already running")
	ErrNotRunning     = errors.New("runtime: not running")
	ErrCancelled      = errors.New("runtime: cancelled")
)

// mapErr translates an internal sentinel error into its public
// counterpart, leaving anything else (including nil) untouched.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, internal.ErrAlreadyRunning):
		return ErrAlreadyRunning
	case errors.Is(err, internal.ErrNotRunning):
		return ErrNotRunning
	case errors.Is(err, internal.ErrCancelled):
		return ErrCancelled
	default:
		return err
	}
}

// Status is the small status-code enumeration the FFI boundary
// (package ffi) maps Go errors onto, per spec §6 — Go callers should
// use errors.Is against the sentinels above instead.
type Status int

const (
	StatusOk Status = iota
	StatusNullPointer
	StatusInvalidArgument
	StatusLengthMismatch
	StatusInvalidUTF8
	StatusRuntimeError
	StatusCancelled
	StatusNotFound
)

// String returns the status's lowercase name.
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusNullPointer:
		return "null_pointer"
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusLengthMismatch:
		return "length_mismatch"
	case StatusInvalidUTF8:
		return "invalid_utf8"
	case StatusRuntimeError:
		return "runtime_error"
	case StatusCancelled:
		return "cancelled"
	case StatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// StatusOf classifies err into the FFI status enumeration, recognizing
// this package's sentinels plus the sentinels exported by sample,
// stage, and kernel; anything else maps to StatusRuntimeError.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOk
	case errors.Is(err, ErrCancelled):
		return StatusCancelled
	case errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrNotRunning):
		return StatusInvalidArgument
	case errors.Is(err, sample.ErrLengthMismatch), errors.Is(err, kernel.ErrLengthMismatch):
		return StatusLengthMismatch
	case errors.Is(err, sample.ErrInvalidUTF8):
		return StatusInvalidUTF8
	case errors.Is(err, sample.ErrInvalidArgument), errors.Is(err, kernel.ErrInvalidArgument), errors.Is(err, stage.ErrUnknownStage):
		return StatusInvalidArgument
	case errors.Is(err, stage.ErrNotFound):
		return StatusNotFound
	default:
		return StatusRuntimeError
	}
}
