// Package ffi is the C-ABI-shaped boundary described in spec §6: opaque
// handles, explicit status codes instead of panics or Go errors,
// output-buffer-length contracts for array-returning calls, and
// callback signatures carrying a user_data pointer.
//
// There is no actual cgo here — the package is pure Go, shaped the way
// a cgo wrapper around it would be shaped, so that a future cgo_export
// layer has nothing left to design. Handle values are minted with
// github.com/mattn/go-pointer's Save/Restore/Unref, the same pinning
// trick a cgo boundary uses to pass a Go value through a C void*
// without exposing a real pointer.
package ffi
