package ffi

import "github.com/isaigordeev/saxsrs/runtime"

// Status and its constructor are re-exported from runtime so that a
// caller of this package never needs a second import for status codes.
type Status = runtime.Status

const (
	StatusOk              = runtime.StatusOk
	StatusNullPointer     = runtime.StatusNullPointer
	StatusInvalidArgument = runtime.StatusInvalidArgument
	StatusLengthMismatch  = runtime.StatusLengthMismatch
	StatusInvalidUTF8     = runtime.StatusInvalidUTF8
	StatusRuntimeError    = runtime.StatusRuntimeError
	StatusCancelled       = runtime.StatusCancelled
	StatusNotFound        = runtime.StatusNotFound
)

// StatusOf classifies err into the status enumeration above.
var StatusOf = runtime.StatusOf
