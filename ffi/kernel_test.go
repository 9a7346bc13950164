package ffi_test

import (
	"testing"

	"github.com/isaigordeev/saxsrs/ffi"
)

func TestFindPeaksWrapsStatus(t *testing.T) {
	peaks, status := ffi.FindPeaks([]float64{0, 1, 0, 5, 0}, 0, 0)
	if status != ffi.StatusOk {
		t.Fatalf("FindPeaks() status = %v", status)
	}
	if len(peaks) != 2 {
		t.Fatalf("FindPeaks() = %+v, want 2 peaks", peaks)
	}

	if _, status := ffi.FindPeaks([]float64{1, 2}, 0, 0); status != ffi.StatusInvalidArgument {
		t.Errorf("FindPeaks() on short input = %v, want StatusInvalidArgument", status)
	}
}

func TestFindMax(t *testing.T) {
	value, index, status := ffi.FindMax([]float64{1, 5, 3})
	if status != ffi.StatusOk || value != 5 || index != 1 {
		t.Fatalf("FindMax() = (%v, %v, %v), want (5, 1, StatusOk)", value, index, status)
	}

	if _, _, status := ffi.FindMax(nil); status != ffi.StatusInvalidArgument {
		t.Errorf("FindMax(nil) status = %v, want StatusInvalidArgument", status)
	}
}

func TestDiffIntoLengthContract(t *testing.T) {
	data := []float64{1, 3, 6}
	out := make([]float64, 2)
	if status := ffi.DiffInto(data, out); status != ffi.StatusOk {
		t.Fatalf("DiffInto() status = %v", status)
	}
	if out[0] != 2 || out[1] != 3 {
		t.Fatalf("DiffInto() = %v, want [2 3]", out)
	}

	if status := ffi.DiffInto(data, make([]float64, 1)); status != ffi.StatusLengthMismatch {
		t.Errorf("DiffInto() with undersized out = %v, want StatusLengthMismatch", status)
	}
}
