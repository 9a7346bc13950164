package ffi

import (
	"github.com/isaigordeev/saxsrs/kernel"
)

// Peak is the FFI-flattened view of a sample.Peak.
type Peak struct {
	Index      int32
	Value      float64
	Prominence float64
}

// FindPeaks wraps kernel.FindPeaks with status-code error reporting
// instead of a Go error return.
func FindPeaks(data []float64, minHeight, minProminence float64) ([]Peak, Status) {
	peaks, err := kernel.FindPeaks(data, minHeight, minProminence)
	if err != nil {
		return nil, StatusOf(err)
	}
	out := make([]Peak, len(peaks))
	for i, p := range peaks {
		out[i] = Peak{Index: int32(p.Index), Value: p.Value, Prominence: p.Prominence}
	}
	return out, StatusOk
}

// FindMax wraps kernel.FindMax.
func FindMax(data []float64) (value float64, index int32, status Status) {
	v, idx, err := kernel.FindMax(data)
	if err != nil {
		return 0, 0, StatusOf(err)
	}
	return v, int32(idx), StatusOk
}

// DiffInto writes the first differences of data into out, per spec §6's
// explicit output-buffer-length contract: the caller must size out to
// len(data)-1 and DiffInto reports StatusLengthMismatch rather than
// writing past what out can hold.
func DiffInto(data []float64, out []float64) Status {
	if len(data) == 0 {
		return StatusInvalidArgument
	}
	if len(out) != len(data)-1 {
		return StatusLengthMismatch
	}
	diffs, err := kernel.Diff(data)
	if err != nil {
		return StatusOf(err)
	}
	copy(out, diffs)
	return StatusOk
}
