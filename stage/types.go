package stage

import "github.com/isaigordeev/saxsrs/sample"

// ID identifies one of the pipeline's stages. The set is closed — see
// AllIDs and Registry.Register.
type ID int

const (
	Background ID = iota
	Cut
	Filter
	FindPeak
	ProcessPeak
	Phase
)

// AllIDs lists every valid stage identifier, in the order they were
// declared above.
func AllIDs() []ID {
	return []ID{Background, Cut, Filter, FindPeak, ProcessPeak, Phase}
}

// String returns the stage's lowercase name, used in logging.
func (id ID) String() string {
	switch id {
	case Background:
		return "background"
	case Cut:
		return "cut"
	case Filter:
		return "filter"
	case FindPeak:
		return "find_peak"
	case ProcessPeak:
		return "process_peak"
	case Phase:
		return "phase"
	default:
		return "unknown"
	}
}

// Valid reports whether id is one of the six declared stage identifiers.
func (id ID) Valid() bool {
	return id >= Background && id <= Phase
}

// DefaultPipeline is the canonical forward order built-in stages chain
// through via their Requests, with the FindPeak/ProcessPeak loop listed
// as FindPeak alone: ProcessPeak is not in the list and runs only when
// FindPeak requests it. It is also the order the checkpoint
// default-progression rule falls back to when a checkpoint-held sample
// carried no pending request (see SPEC_FULL.md §2).
func DefaultPipeline() []ID {
	return []ID{Background, Cut, Filter, FindPeak, Phase}
}

// Request asks the scheduler to run stageID next, carrying the metadata
// the requesting stage computed for that invocation.
type Request struct {
	StageID  ID
	Metadata sample.FlowMetadata
}

// Result is what a stage transform returns: the processed sample, its
// updated metadata, and zero or more follow-up requests. An empty
// Requests list means this path is terminal for now — the scheduler
// deposits the sample into the regroup pool.
type Result struct {
	Sample   sample.Sample
	Metadata sample.FlowMetadata
	Requests []Request
}

// Terminal builds a Result with no follow-up requests.
func Terminal(s sample.Sample, m sample.FlowMetadata) Result {
	return Result{Sample: s, Metadata: m}
}

// WithRequests builds a Result carrying follow-up requests, in the
// order they should be enqueued.
func WithRequests(s sample.Sample, m sample.FlowMetadata, requests ...Request) Result {
	return Result{Sample: s, Metadata: m, Requests: requests}
}

// Transform is the pure-function contract every stage implements:
// (sample, metadata) -> (result, error). An error return is fatal for
// the sample — the caller (runtime/internal's worker fleet) routes it to
// the failed bucket rather than propagating it.
type Transform func(sample.Sample, sample.FlowMetadata) (Result, error)
