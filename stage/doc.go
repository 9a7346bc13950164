// Package stage defines the closed set of pipeline stage identifiers,
// the pure-transform contract every stage implements, and the registry
// that maps an identifier to its transform.
//
// A stage transform is a pure function: given a sample.Sample and a
// sample.FlowMetadata, it returns a Result carrying the updated sample,
// updated metadata, and an ordered list of follow-up Requests. Stages
// never call back into the scheduler — the requests list is the only
// channel through which a stage drives further work, which is what lets
// the scheduler remain the single source of truth for ordering (see
// runtime/internal's queue and pool).
package stage
