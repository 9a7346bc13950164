package ffi

import (
	"sync"
	"unsafe"

	pointer "github.com/mattn/go-pointer"
)

// Handle is an opaque reference to a Go value pinned on the other side
// of the boundary — spec.md §6's void* handle, represented here as a
// uintptr since that is what actually crosses a C ABI.
type Handle uintptr

// registry keeps every minted go-pointer alive for the lifetime of its
// Handle. go-pointer's own internal map already does this, but storing
// the unsafe.Pointer here too lets release look it up without needing
// the caller to remember it.
var registry sync.Map // Handle -> unsafe.Pointer

// newHandle pins v and returns a Handle for it. The caller must release
// the handle exactly once, via release, when done.
func newHandle(v interface{}) Handle {
	p := pointer.Save(v)
	h := Handle(uintptr(p))
	registry.Store(h, p)
	return h
}

// lookup resolves h back to the value it was minted from. It returns
// false for a zero, unknown, or already-released handle.
func lookup(h Handle) (interface{}, bool) {
	if h == 0 {
		return nil, false
	}
	p, ok := registry.Load(h)
	if !ok {
		return nil, false
	}
	return pointer.Restore(p.(unsafe.Pointer)), true
}

// release unpins h's value. It is safe to call on an already-released
// or unknown handle.
func release(h Handle) {
	p, ok := registry.LoadAndDelete(h)
	if !ok {
		return
	}
	pointer.Unref(p.(unsafe.Pointer))
}
