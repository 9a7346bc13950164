package kernel

import (
	"errors"
	"fmt"

	"github.com/isaigordeev/saxsrs/sample"
)

// Sentinel errors for the numeric kernels.
var (
	ErrInvalidArgument = errors.New("kernel: invalid argument")
	ErrLengthMismatch  = errors.New("kernel: length mismatch")
)

// FindPeaks returns every local maximum in data whose height is at
// least minHeight and whose prominence is at least minProminence, in
// increasing index order.
//
// A local maximum is an index 1 <= i <= len(data)-2 such that
// data[i] > data[i-1] and data[i] > data[i+1]. Prominence is the peak's
// value minus the higher of the two neighboring valleys, where a valley
// is found by walking outward from the peak — tracking the minimum
// value seen — until a value >= data[i] is reached or the array
// boundary is hit.
//
// FindPeaks fails with ErrInvalidArgument if len(data) < 3.
func FindPeaks(data []float64, minHeight, minProminence float64) ([]sample.Peak, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 points, got %d", ErrInvalidArgument, len(data))
	}

	var peaks []sample.Peak
	for i := 1; i < len(data)-1; i++ {
		v := data[i]
		if v > data[i-1] && v > data[i+1] && v >= minHeight {
			p := prominence(data, i)
			if p >= minProminence {
				peaks = append(peaks, sample.Peak{Index: i, Value: v, Prominence: p})
			}
		}
	}
	return peaks, nil
}

// prominence computes peak i's height above the higher of its two
// bounding valleys, walking outward in each direction until a value at
// least as large as data[i] is found or the slice boundary is reached.
func prominence(data []float64, i int) float64 {
	v := data[i]

	leftMin := data[i-1]
	for j := i - 1; j >= 0; j-- {
		if data[j] < leftMin {
			leftMin = data[j]
		}
		if data[j] >= v {
			break
		}
	}

	rightMin := data[i+1]
	for j := i + 1; j < len(data); j++ {
		if data[j] < rightMin {
			rightMin = data[j]
		}
		if data[j] >= v {
			break
		}
	}

	higher := leftMin
	if rightMin > higher {
		higher = rightMin
	}
	return v - higher
}

// FindMax returns the maximum value in data and the smallest index at
// which it occurs. It fails with ErrInvalidArgument on empty input.
func FindMax(data []float64) (value float64, index int, err error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: empty input", ErrInvalidArgument)
	}
	value, index = data[0], 0
	for i := 1; i < len(data); i++ {
		if data[i] > value {
			value, index = data[i], i
		}
	}
	return value, index, nil
}

// Diff returns the first differences of data: out[i] = data[i+1] -
// data[i], length len(data)-1. It fails with ErrInvalidArgument on
// empty input.
func Diff(data []float64) ([]float64, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidArgument)
	}
	out := make([]float64, len(data)-1)
	for i := 0; i < len(out); i++ {
		out[i] = data[i+1] - data[i]
	}
	return out, nil
}
