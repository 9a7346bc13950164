package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

// Sentinel errors surfaced by the runtime façade's lifecycle operations.
var (
	ErrAlreadyRunning = errors.New("runtime: already running")
	ErrNotRunning     = errors.New("runtime: not running")
	ErrCancelled      = errors.New("runtime: cancelled")
)

// Config configures an Engine. It has no flag/env parsing of its own —
// only cmd/saxsbatch touches the flag package, matching the teacher's
// RTSPConfig / Config struct-literal style.
type Config struct {
	WorkerCount int
	MaxStages   uint32
	Pipeline    []stage.ID
	// InsertionPolicy gates dynamically requested follow-up stages (spec
	// §4.E/§4.F's admission control); nil means stage.AlwaysInsertPolicy.
	InsertionPolicy stage.InsertionPolicy
	Logger          *slog.Logger
}

// Engine is the concrete implementation behind the public runtime.Runtime
// interface — spec §4.G's lifecycle (create/add/set_checkpoints/run/
// cancel/reset/regroup) plus the completed/pending counters.
//
// Grounded on framesupplier/internal/supplier.go's started/startedMu
// idempotency guard and ctx/cancel lifecycle, generalized from a single
// distribution goroutine's start/stop to a fleet run/cancel/reset cycle.
type Engine struct {
	mu sync.Mutex

	queue    *Queue
	pool     *Pool
	registry *stage.Registry
	fleet    *Fleet
	pipeline []stage.ID

	workerCount int
	logger      *slog.Logger

	running         bool
	cancelFn        context.CancelFunc
	cancelRequested bool
	admittedCount   int
}

// NewEngine builds an Engine around registry using cfg. A nil
// cfg.Pipeline falls back to stage.DefaultPipeline(); a zero
// cfg.WorkerCount falls back to runtime.GOMAXPROCS(0) (host parallelism).
func NewEngine(registry *stage.Registry, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pipeline := cfg.Pipeline
	if pipeline == nil {
		pipeline = stage.DefaultPipeline()
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = goruntime.GOMAXPROCS(0)
	}

	queue := NewQueue()
	pool := NewPool()
	fleet := NewFleet(queue, pool, registry, pipeline, cfg.MaxStages, logger)
	if cfg.InsertionPolicy != nil {
		fleet.SetInsertionPolicy(cfg.InsertionPolicy)
	}

	return &Engine{
		queue:       queue,
		pool:        pool,
		registry:    registry,
		fleet:       fleet,
		pipeline:    pipeline,
		workerCount: workerCount,
		logger:      logger,
	}
}

// AddSample admits s to the batch, pushing it onto the queue at the
// first stage of the configured pipeline, sample stage number 0. It
// fails with ErrAlreadyRunning if called during a run.
func (e *Engine) AddSample(s sample.Sample) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot add_sample during a run", ErrAlreadyRunning)
	}
	e.admittedCount++
	e.mu.Unlock()

	seq := e.queue.NextSeq()
	e.queue.Push(WorkItem{Sample: s, Metadata: s.Metadata, StageID: e.pipeline[0], ArrivalSeq: seq})
	return nil
}

// SetCheckpoints replaces the checkpoint set. Allowed only when idle.
func (e *Engine) SetCheckpoints(stages []uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("%w: cannot set_checkpoints during a run", ErrAlreadyRunning)
	}
	e.pool.SetCheckpoints(stages)
	return nil
}

// SetInsertionPolicy replaces the policy gating dynamically requested
// follow-up stages. Allowed only when idle, matching SetCheckpoints.
func (e *Engine) SetInsertionPolicy(policy stage.InsertionPolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("%w: cannot set_insertion_policy during a run", ErrAlreadyRunning)
	}
	e.fleet.SetInsertionPolicy(policy)
	return nil
}

// beginRun transitions the engine into the running state and returns a
// cancellable context plus the run's correlation ID. It fails with
// ErrAlreadyRunning if a run is already in progress.
func (e *Engine) beginRun(parent context.Context) (context.Context, uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil, uuid.UUID{}, fmt.Errorf("%w", ErrAlreadyRunning)
	}

	runID := uuid.New()
	ctx, cancel := context.WithCancel(parent)
	e.running = true
	e.cancelFn = cancel
	e.pool.SetExpected(e.admittedCount)
	return ctx, runID, nil
}

func (e *Engine) endRun() {
	e.mu.Lock()
	e.running = false
	e.cancelFn = nil
	e.mu.Unlock()
}

// isQuiescent reports whether the queue is empty, no item is in flight,
// and no checkpoint bucket is short of its expected count — spec
// §4.G's run_sync termination condition (short of cancellation).
func (e *Engine) isQuiescent() bool {
	return e.queue.Len() == 0 && e.fleet.InFlight() == 0 && !e.pool.HasUnreleasedCheckpoint()
}

// RunSync blocks until the batch reaches quiescence or ctx / Cancel
// cuts the run short, matching spec §4.G's run_sync contract.
func (e *Engine) RunSync(ctx context.Context) error {
	runCtx, runID, err := e.beginRun(ctx)
	if err != nil {
		return err
	}
	defer e.endRun()

	e.logger.Info("run_sync starting", "run_id", runID, "admitted", e.admittedCount, "workers", e.workerCount)

	if e.isQuiescent() {
		e.logger.Info("run_sync quiescent immediately", "run_id", runID)
		return nil
	}

	idleCheck := func() {
		if e.isQuiescent() {
			e.cancelQuietly()
		}
	}
	e.fleet.Run(runCtx, e.workerCount, uint64(e.admittedCount), nil, idleCheck)

	if e.wasCancelled(ctx) {
		e.logger.Warn("run_sync cancelled", "run_id", runID)
		return ErrCancelled
	}
	e.logger.Info("run_sync complete", "run_id", runID, "completed", e.fleet.CompletedCount())
	return nil
}

// wasCancelled reports whether the run ended because of an explicit
// Cancel() call or the caller's own parent context being done, as
// opposed to ordinary quiescence (which also cancels the run's internal
// context, via cancelQuietly, but is not a cancellation from the
// caller's point of view).
func (e *Engine) wasCancelled(parent context.Context) bool {
	if parent.Err() != nil {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelRequested
}

// cancelQuietly cancels the active run's context without flipping any
// caller-visible "cancelled" status — used internally to stop the fleet
// once quiescence is detected, which is a normal completion, not a
// cancellation.
func (e *Engine) cancelQuietly() {
	e.mu.Lock()
	cancel := e.cancelFn
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		e.queue.Broadcast()
	}
}

// RunAsyncHooks mirrors spec §4.G's run_async callback set, adapted to
// Go function values instead of C function pointers plus a user_data
// pointer — Hooks.OnProgress / Hooks.OnSample already carry everything
// a Go closure needs, so no separate user_data parameter is threaded
// through (the caller's closure captures whatever it needs).
type RunAsyncHooks struct {
	OnComplete func(status error)
	OnProgress func(stageID stage.ID, completed, total uint64)
	OnSample   func(s sample.Sample, m sample.FlowMetadata, err error)
}

// RunAsync starts the run on a background goroutine and returns
// immediately. hooks.OnComplete fires exactly once, at quiescence or
// cancellation.
func (e *Engine) RunAsync(ctx context.Context, hooks RunAsyncHooks) error {
	runCtx, runID, err := e.beginRun(ctx)
	if err != nil {
		return err
	}

	e.logger.Info("run_async starting", "run_id", runID, "admitted", e.admittedCount, "workers", e.workerCount)

	go func() {
		defer e.endRun()

		if e.isQuiescent() {
			if hooks.OnComplete != nil {
				hooks.OnComplete(nil)
			}
			return
		}

		idleCheck := func() {
			if e.isQuiescent() {
				e.cancelQuietly()
			}
		}
		fleetHooks := &Hooks{OnProgress: hooks.OnProgress, OnSample: hooks.OnSample}
		e.fleet.Run(runCtx, e.workerCount, uint64(e.admittedCount), fleetHooks, idleCheck)

		var status error
		if e.wasCancelled(ctx) {
			status = ErrCancelled
			e.logger.Warn("run_async cancelled", "run_id", runID)
		} else {
			e.logger.Info("run_async complete", "run_id", runID, "completed", e.fleet.CompletedCount())
		}
		if hooks.OnComplete != nil {
			hooks.OnComplete(status)
		}
	}()

	return nil
}

// Cancel sets the shutdown flag. A run in progress observes it at the
// next stage boundary; run_sync/run_async then report ErrCancelled.
// Cancel on an idle engine is a no-op.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel := e.cancelFn
	if cancel != nil {
		e.cancelRequested = true
	}
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		e.queue.Broadcast()
	}
}

// IsRunning reports whether a run is currently in progress.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// CompletedCount returns the cumulative number of samples that have
// reached a terminal state (pool rest or failed) since the last Reset.
func (e *Engine) CompletedCount() uint64 { return e.fleet.CompletedCount() }

// PendingCount returns queue length plus in-flight count — samples
// still actively moving through the pipeline.
func (e *Engine) PendingCount() uint64 {
	return uint64(e.queue.Len()) + uint64(e.fleet.InFlight())
}

// Regroup atomically removes and returns every sample resting at stage
// number minStage or higher, ascending by stage, FIFO within each
// stage. It fails with ErrAlreadyRunning if called during a run — the
// spec's pool invariants assume no concurrent drain mutation mid-batch.
func (e *Engine) Regroup(minStage uint32) ([]PoolEntry, error) {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if running {
		return nil, fmt.Errorf("%w: cannot regroup during a run", ErrAlreadyRunning)
	}
	return e.pool.Regroup(minStage), nil
}

// RegroupUpTo behaves like Regroup but caps the number of entries
// returned at max, leaving any excess resting in the pool (in its
// original per-stage order) for a later call — spec.md §4.G's
// regroup(min_stage, out, max, &out_count) explicit buffer-length
// contract, ported from original_source's executor.rs::regroup, which
// puts the excess back rather than discarding it. total reports how
// many entries were available before truncation.
func (e *Engine) RegroupUpTo(minStage uint32, max int) (entries []PoolEntry, total int, err error) {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if running {
		return nil, 0, fmt.Errorf("%w: cannot regroup during a run", ErrAlreadyRunning)
	}
	if max < 0 {
		max = 0
	}

	all := e.pool.Regroup(minStage)
	total = len(all)
	if total <= max {
		return all, total, nil
	}
	for _, excess := range all[max:] {
		e.pool.Rest(excess)
	}
	return all[:max], total, nil
}

// FailedSamples returns a snapshot of the failed bucket.
func (e *Engine) FailedSamples() []FailedEntry {
	return e.pool.FailedSamples()
}

// Reset clears the queue, pool, counters and failed bucket. It requires
// the engine to be idle; it keeps the registry, pipeline and checkpoint
// set.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("%w: cannot reset during a run", ErrAlreadyRunning)
	}
	e.queue.Clear()
	e.pool.Reset()
	e.fleet.ResetCounters()
	e.fleet.ResetInsertionPolicy()
	e.admittedCount = 0
	e.cancelRequested = false
	return nil
}
