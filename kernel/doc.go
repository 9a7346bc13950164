// Package kernel implements the pure numeric helpers the SAXS pipeline's
// stages build on: peak detection, maximum-value search, and first
// differences. All three are pure functions over caller-owned
// []float64 slices — none retain a reference past return, and none
// allocate more than the slice they hand back.
//
// These are intentionally minimal: spec.md scopes the numeric kernels by
// their input/output contract only, and no third-party numeric library
// in the example corpus is a better fit than a dozen lines of stdlib
// math for the straight-line scans below (see DESIGN.md).
package kernel
