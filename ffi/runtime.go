package ffi

import (
	"context"

	"github.com/isaigordeev/saxsrs/runtime"
	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

// Create allocates a Runtime bound to the built-in six-stage pipeline
// and returns a Handle for it. workerCount <= 0 means host parallelism;
// maxStages == 0 means unlimited.
func Create(workerCount int32, maxStages uint32, checkpoints []uint32) (Handle, Status) {
	rt := runtime.New(stage.NewDefaultRegistry(), runtime.Config{
		WorkerCount: int(workerCount),
		MaxStages:   maxStages,
		Checkpoints: checkpoints,
	})
	return newHandle(rt), StatusOk
}

// Destroy releases h. It is safe to call on an already-released handle.
func Destroy(h Handle) {
	release(h)
}

func resolve(h Handle) (runtime.Runtime, Status) {
	if h == 0 {
		return nil, StatusNullPointer
	}
	v, ok := lookup(h)
	if !ok {
		return nil, StatusNotFound
	}
	rt, ok := v.(runtime.Runtime)
	if !ok {
		return nil, StatusInvalidArgument
	}
	return rt, StatusOk
}

// AddSample admits a sample built from id/q/intensity/intensityErr.
// q, intensity and intensityErr must have equal, non-zero length — spec
// §6's explicit-length array contract; a mismatch is reported as
// StatusLengthMismatch rather than panicking.
func AddSample(h Handle, id string, q, intensity, intensityErr []float64) Status {
	rt, status := resolve(h)
	if status != StatusOk {
		return status
	}
	s, err := sample.New(id, q, intensity, intensityErr)
	if err != nil {
		return StatusOf(err)
	}
	return StatusOf(rt.AddSample(s))
}

// RunSync runs the batch to quiescence, blocking the caller.
func RunSync(h Handle) Status {
	rt, status := resolve(h)
	if status != StatusOk {
		return status
	}
	return StatusOf(rt.RunSync(context.Background()))
}

// ProgressCallback mirrors spec §6's on_progress: stage identifier plus
// cumulative/total counts, with a UserData context the caller supplied
// to RunAsync rather than a bare C void* — Go closures already capture
// what they need, but UserData is kept so the signature matches the
// boundary's documented shape.
type ProgressCallback func(userData interface{}, stageID stage.ID, completed, total uint64)

// SampleCallback mirrors spec §6's on_sample: fired once per sample
// reaching a terminal state.
type SampleCallback func(userData interface{}, sampleID string, status Status)

// CompleteCallback mirrors spec §6's on_complete: fired exactly once,
// at quiescence or cancellation.
type CompleteCallback func(userData interface{}, status Status)

// RunAsync starts the run on a background goroutine. Any of the three
// callbacks may be nil.
func RunAsync(h Handle, userData interface{}, onProgress ProgressCallback, onSample SampleCallback, onComplete CompleteCallback) Status {
	rt, status := resolve(h)
	if status != StatusOk {
		return status
	}

	err := rt.RunAsync(context.Background(), runtime.Hooks{
		OnProgress: func(stageID stage.ID, completed, total uint64) {
			if onProgress != nil {
				onProgress(userData, stageID, completed, total)
			}
		},
		OnSample: func(s sample.Sample, m sample.FlowMetadata, err error) {
			if onSample != nil {
				onSample(userData, s.ID(), StatusOf(err))
			}
		},
		OnComplete: func(status error) {
			if onComplete != nil {
				onComplete(userData, StatusOf(status))
			}
		},
	})
	return StatusOf(err)
}

// Cancel requests the active run (if any) stop at the next boundary.
func Cancel(h Handle) Status {
	rt, status := resolve(h)
	if status != StatusOk {
		return status
	}
	rt.Cancel()
	return StatusOk
}

// Reset clears the queue, pool, and counters.
func Reset(h Handle) Status {
	rt, status := resolve(h)
	if status != StatusOk {
		return status
	}
	return StatusOf(rt.Reset())
}

// CompletedCount returns the cumulative number of samples that have
// reached a terminal state since the last Reset.
func CompletedCount(h Handle) (uint64, Status) {
	rt, status := resolve(h)
	if status != StatusOk {
		return 0, status
	}
	return rt.CompletedCount(), StatusOk
}

// PendingCount returns the number of samples still actively moving
// through the pipeline.
func PendingCount(h Handle) (uint64, Status) {
	rt, status := resolve(h)
	if status != StatusOk {
		return 0, status
	}
	return rt.PendingCount(), StatusOk
}

// RegroupedSample is the FFI-flattened view of a resting sample: plain
// arrays instead of a sample.Sample, so a binding never needs to know
// about the Go type.
type RegroupedSample struct {
	SampleID     string
	StageNum     uint32
	Q            []float64
	Intensity    []float64
	IntensityErr []float64
}

// Regroup removes and returns up to max samples resting at stage number
// minStage or higher, per spec §6's explicit buffer-length contract:
// writes up to max entries, outCount reports how many were actually
// written, and the call reports StatusLengthMismatch whenever more
// entries were available than max allowed — mirroring DiffInto's
// length-contract style, except partial transfer is allowed here rather
// than rejected outright: any excess is left resting in the pool rather
// than discarded, so a subsequent call with a larger (or repeated) max
// still collects it.
func Regroup(h Handle, minStage uint32, max int) (entries []RegroupedSample, outCount int, status Status) {
	rt, status := resolve(h)
	if status != StatusOk {
		return nil, 0, status
	}
	result, total, err := rt.RegroupUpTo(minStage, max)
	if err != nil {
		return nil, 0, StatusOf(err)
	}

	out := make([]RegroupedSample, len(result))
	for i, e := range result {
		out[i] = RegroupedSample{
			SampleID:     e.Sample.ID(),
			StageNum:     e.Sample.StageNum(),
			Q:            e.Sample.Q(),
			Intensity:    e.Sample.Intensity(),
			IntensityErr: e.Sample.IntensityErr(),
		}
	}

	if total > max {
		return out, len(out), StatusLengthMismatch
	}
	return out, len(out), StatusOk
}

// FailedSample is the FFI-flattened view of a sample routed to the
// failed bucket.
type FailedSample struct {
	SampleID string
	StageID  stage.ID
	Status   Status
}

// FailedSamples returns a snapshot of the failed bucket.
func FailedSamples(h Handle) ([]FailedSample, Status) {
	rt, status := resolve(h)
	if status != StatusOk {
		return nil, status
	}
	entries := rt.FailedSamples()
	out := make([]FailedSample, len(entries))
	for i, e := range entries {
		out[i] = FailedSample{SampleID: e.Sample.ID(), StageID: e.StageID, Status: StatusOf(e.Err)}
	}
	return out, StatusOk
}
