package runtime

import (
	"context"
	"log/slog"

	"github.com/isaigordeev/saxsrs/runtime/internal"
	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

// Config configures a Runtime. A zero Config is valid: WorkerCount
// falls back to host parallelism, Pipeline to stage.DefaultPipeline(),
// and Logger to slog.Default().
type Config struct {
	// WorkerCount is the number of goroutines draining the work queue
	// concurrently. Zero means runtime.GOMAXPROCS(0).
	WorkerCount int
	// MaxStages caps how many stages any one sample may traverse before
	// it is forced to rest, regardless of outstanding requests or
	// checkpoints. Zero means unlimited.
	MaxStages uint32
	// Pipeline is the canonical stage order used to resolve a
	// checkpoint-released sample with no pending request. Nil means
	// stage.DefaultPipeline().
	Pipeline []stage.ID
	// Checkpoints are the stage numbers at which every sample in the
	// batch must arrive before any of them is released onward.
	Checkpoints []uint32
	// InsertionPolicy gates dynamically requested follow-up stages before
	// they're enqueued — AlwaysInsertPolicy, NeverInsertPolicy,
	// SaturationPolicy, PerSampleLimitPolicy, AllPolicy, and AnyPolicy are
	// in the stage package. Nil means stage.AlwaysInsertPolicy.
	InsertionPolicy stage.InsertionPolicy
	Logger          *slog.Logger
}

// RegroupedSample is a sample pulled out of the regroup pool by Regroup
// — either genuinely terminal or still carrying the requests it was
// checkpoint-held with.
type RegroupedSample struct {
	Sample   sample.Sample
	Metadata sample.FlowMetadata
	Requests []stage.Request
}

// FailedSample records a sample whose stage transform returned an error.
type FailedSample struct {
	Sample  sample.Sample
	StageID stage.ID
	Err     error
}

// Hooks are the optional callbacks RunAsync invokes as the batch
// progresses. All fields are nil-safe.
type Hooks struct {
	// OnProgress fires after every stage invocation, successful or not.
	OnProgress func(stageID stage.ID, completed, total uint64)
	// OnSample fires exactly once per sample that reaches a terminal
	// state — resting in the pool, or routed to the failed bucket.
	OnSample func(s sample.Sample, m sample.FlowMetadata, err error)
	// OnComplete fires exactly once, when the run ends: status is nil on
	// ordinary quiescence, ErrCancelled if Cancel or ctx cut it short.
	OnComplete func(status error)
}

// Runtime is the batch scheduler's public surface: admit samples,
// configure checkpoints, run to quiescence (or cancellation), and
// collect finished samples. A Runtime is not reusable across
// concurrent runs — AddSample/SetCheckpoints/Regroup all reject calls
// made while a run is in progress — but it is reusable sequentially via
// Reset.
//
// Mirroring framesupplier.Supplier, Runtime is an interface over an
// unexported implementation; the only way to obtain one is New.
type Runtime interface {
	// AddSample admits s into the batch at the first pipeline stage. It
	// fails with ErrAlreadyRunning if called during a run.
	AddSample(s sample.Sample) error

	// SetCheckpoints replaces the checkpoint set. It fails with
	// ErrAlreadyRunning if called during a run.
	SetCheckpoints(stages []uint32) error

	// SetInsertionPolicy replaces the policy gating dynamically requested
	// follow-up stages. It fails with ErrAlreadyRunning if called during
	// a run.
	SetInsertionPolicy(policy stage.InsertionPolicy) error

	// RunSync runs the admitted batch to quiescence, blocking until
	// every sample is resting or failed, or until ctx is done or Cancel
	// is called — in which case it returns ErrCancelled.
	RunSync(ctx context.Context) error

	// RunAsync starts the run on a background goroutine and returns
	// immediately; hooks.OnComplete reports the eventual outcome.
	RunAsync(ctx context.Context, hooks Hooks) error

	// Cancel requests that the active run (if any) stop at the next
	// stage boundary. It is a no-op if no run is in progress.
	Cancel()

	// CompletedCount returns the cumulative number of samples that have
	// reached a terminal state since the last Reset.
	CompletedCount() uint64

	// PendingCount returns the number of samples still actively moving
	// through the pipeline (queued or in flight).
	PendingCount() uint64

	// Regroup removes and returns every sample resting at stage number
	// minStage or higher, ascending by stage and FIFO within each
	// stage. It fails with ErrAlreadyRunning if called during a run.
	Regroup(minStage uint32) ([]RegroupedSample, error)

	// RegroupUpTo behaves like Regroup but returns at most max entries,
	// leaving any excess resting for a later call. total reports how
	// many entries were available before truncation — len(entries) <
	// total means excess remains. It fails with ErrAlreadyRunning if
	// called during a run.
	RegroupUpTo(minStage uint32, max int) (entries []RegroupedSample, total int, err error)

	// FailedSamples returns a snapshot of samples routed to the failed
	// bucket since the last Reset.
	FailedSamples() []FailedSample

	// Reset clears the queue, pool, and counters, keeping the registry,
	// pipeline, and checkpoint set. It fails with ErrAlreadyRunning if
	// called during a run.
	Reset() error

	// Events returns the runtime's progress/sample event bus. Subscribe
	// to it for a channel-based alternative to RunAsync's hooks.
	Events() *EventBus
}

// New builds a Runtime around registry using cfg.
func New(registry *stage.Registry, cfg Config) Runtime {
	engine := internal.NewEngine(registry, internal.Config{
		WorkerCount:     cfg.WorkerCount,
		MaxStages:       cfg.MaxStages,
		Pipeline:        cfg.Pipeline,
		InsertionPolicy: cfg.InsertionPolicy,
		Logger:          cfg.Logger,
	})
	if len(cfg.Checkpoints) > 0 {
		engine.SetCheckpoints(cfg.Checkpoints)
	}
	return &runtimeImpl{engine: engine, events: NewEventBus()}
}

type runtimeImpl struct {
	engine *internal.Engine
	events *EventBus
}

func (r *runtimeImpl) AddSample(s sample.Sample) error { return mapErr(r.engine.AddSample(s)) }

func (r *runtimeImpl) SetCheckpoints(stages []uint32) error {
	return mapErr(r.engine.SetCheckpoints(stages))
}

func (r *runtimeImpl) SetInsertionPolicy(policy stage.InsertionPolicy) error {
	return mapErr(r.engine.SetInsertionPolicy(policy))
}

func (r *runtimeImpl) RunSync(ctx context.Context) error {
	return mapErr(r.engine.RunSync(ctx))
}

func (r *runtimeImpl) RunAsync(ctx context.Context, hooks Hooks) error {
	err := r.engine.RunAsync(ctx, internal.RunAsyncHooks{
		OnComplete: func(status error) {
			r.publishComplete(status)
			if hooks.OnComplete != nil {
				hooks.OnComplete(mapErr(status))
			}
		},
		OnProgress: func(stageID stage.ID, completed, total uint64) {
			r.events.publish(Event{Kind: EventProgress, StageID: stageID, Completed: completed, Total: total})
			if hooks.OnProgress != nil {
				hooks.OnProgress(stageID, completed, total)
			}
		},
		OnSample: func(s sample.Sample, m sample.FlowMetadata, err error) {
			sCopy := s
			r.events.publish(Event{Kind: EventSample, Sample: &sCopy, Metadata: m, Err: err})
			if hooks.OnSample != nil {
				hooks.OnSample(s, m, err)
			}
		},
	})
	return mapErr(err)
}

func (r *runtimeImpl) publishComplete(status error) {
	r.events.publish(Event{Kind: EventComplete, Err: status})
}

func (r *runtimeImpl) Cancel() { r.engine.Cancel() }

func (r *runtimeImpl) CompletedCount() uint64 { return r.engine.CompletedCount() }

func (r *runtimeImpl) PendingCount() uint64 { return r.engine.PendingCount() }

func (r *runtimeImpl) Regroup(minStage uint32) ([]RegroupedSample, error) {
	entries, err := r.engine.Regroup(minStage)
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]RegroupedSample, len(entries))
	for i, e := range entries {
		out[i] = RegroupedSample{Sample: e.Sample, Metadata: e.Metadata, Requests: e.Requests}
	}
	return out, nil
}

func (r *runtimeImpl) RegroupUpTo(minStage uint32, max int) ([]RegroupedSample, int, error) {
	entries, total, err := r.engine.RegroupUpTo(minStage, max)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	out := make([]RegroupedSample, len(entries))
	for i, e := range entries {
		out[i] = RegroupedSample{Sample: e.Sample, Metadata: e.Metadata, Requests: e.Requests}
	}
	return out, total, nil
}

func (r *runtimeImpl) FailedSamples() []FailedSample {
	entries := r.engine.FailedSamples()
	out := make([]FailedSample, len(entries))
	for i, e := range entries {
		out[i] = FailedSample{Sample: e.Sample, StageID: e.StageID, Err: e.Err}
	}
	return out
}

func (r *runtimeImpl) Reset() error { return mapErr(r.engine.Reset()) }

func (r *runtimeImpl) Events() *EventBus { return r.events }
