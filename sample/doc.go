// Package sample defines the SAXS sample and flow-metadata data carriers
// that move through the batch runtime's pipeline.
//
// A Sample owns three equal-length float64 arrays (q, intensity,
// intensity error) plus a monotonically advancing stage number. A
// FlowMetadata travels alongside a Sample through the scheduler and
// tracks peak bookkeeping (which peaks have been processed, which are
// still pending, and which one is currently being worked on).
//
// Both types are value types. The runtime treats them as single-owner:
// a WorkItem carries one Sample/FlowMetadata pair, and only the worker
// goroutine currently holding that WorkItem ever touches it. Stage
// transforms receive ownership and return (possibly new) ownership —
// they never retain a reference past their call.
package sample
