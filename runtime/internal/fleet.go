package internal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

// Hooks are the optional per-run callbacks a worker invokes as samples
// move through the fleet. Both fields are nil-safe: RunSync passes nil,
// RunAsync wires them from the caller's on_progress/on_sample callbacks.
type Hooks struct {
	// OnProgress fires after every stage invocation, successful or not.
	OnProgress func(stageID stage.ID, completed, total uint64)
	// OnSample fires exactly once per sample that reaches a terminal
	// state: resting in the pool or routed to the failed bucket.
	OnSample func(s sample.Sample, m sample.FlowMetadata, err error)
}

// Fleet is the worker scheduler (spec §4.F): N workers draining the
// shared queue, invoking the stage registry, and routing results back
// to the queue or the regroup pool.
//
// Grounded on framesupplier/internal/supplier.go's distributionLoop: a
// sync.Cond wait-for-work loop, context.Context lifecycle, and a
// sync.WaitGroup tracking the worker goroutines — generalized from one
// distribution goroutine to N concurrent workers pulling from a shared
// heap instead of one each receiving a broadcast frame.
type Fleet struct {
	queue     *Queue
	pool      *Pool
	registry  *stage.Registry
	pipeline  []stage.ID
	maxStages uint32
	policy    stage.InsertionPolicy
	logger    *slog.Logger

	inFlight  atomic.Int64
	completed atomic.Uint64
	total     atomic.Uint64

	hooksMu sync.RWMutex
	hooks   *Hooks

	idleCheck func()

	wg sync.WaitGroup
}

// NewFleet builds a fleet wired to queue, pool and registry. pipeline is
// the canonical stage order used by the default-progression rule;
// maxStages is the spec's worker_count-independent stage cap (0 ⇒
// unlimited). A nil policy defaults to stage.AlwaysInsertPolicy, the
// original runtime's own default — every dynamically requested stage is
// admitted unless the caller installs something stricter via
// SetInsertionPolicy.
func NewFleet(queue *Queue, pool *Pool, registry *stage.Registry, pipeline []stage.ID, maxStages uint32, logger *slog.Logger) *Fleet {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fleet{
		queue:     queue,
		pool:      pool,
		registry:  registry,
		pipeline:  pipeline,
		maxStages: maxStages,
		policy:    stage.AlwaysInsertPolicy{},
		logger:    logger,
	}
}

// SetInsertionPolicy replaces the fleet's admission-control policy for
// dynamically requested follow-up stages. A nil policy is treated as
// stage.AlwaysInsertPolicy. Callers must ensure the fleet is idle.
func (f *Fleet) SetInsertionPolicy(policy stage.InsertionPolicy) {
	if policy == nil {
		policy = stage.AlwaysInsertPolicy{}
	}
	f.policy = policy
}

// ResetInsertionPolicy clears any state the current policy has
// accumulated (e.g. SaturationPolicy's admitted count), for reuse across
// batches.
func (f *Fleet) ResetInsertionPolicy() {
	f.policy.Reset()
}

// InFlight returns the number of WorkItems currently being processed by
// a worker (dequeued but not yet routed onward).
func (f *Fleet) InFlight() int64 { return f.inFlight.Load() }

// CompletedCount returns the cumulative number of samples that have
// reached a terminal state (pool rest or failed) since the fleet's
// counters were last reset.
func (f *Fleet) CompletedCount() uint64 { return f.completed.Load() }

// ResetCounters zeroes the completed/total counters, used by Engine.Reset.
func (f *Fleet) ResetCounters() {
	f.completed.Store(0)
	f.total.Store(0)
}

// Run starts n worker goroutines against ctx and blocks until every one
// has returned — which happens only once ctx is cancelled and each
// worker's current item (if any) has finished. total is the batch size
// used in OnProgress callbacks; hooks may be nil. idleCheck, if set, is
// invoked after every completed item (once in-flight truly reflects the
// post-completion state) so the caller can detect quiescence and cancel
// ctx itself — the fleet never decides to stop on its own.
func (f *Fleet) Run(ctx context.Context, n int, total uint64, hooks *Hooks, idleCheck func()) {
	f.total.Store(total)
	f.hooksMu.Lock()
	f.hooks = hooks
	f.hooksMu.Unlock()
	f.idleCheck = idleCheck

	f.wg.Add(n)
	for i := 0; i < n; i++ {
		go f.workerLoop(ctx)
	}
	f.wg.Wait()
}

func (f *Fleet) workerLoop(ctx context.Context) {
	defer f.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		item, ok := f.queue.Pop(ctx)
		if !ok {
			return
		}
		f.inFlight.Add(1)
		f.process(item)
		f.inFlight.Add(-1)
		if f.idleCheck != nil {
			f.idleCheck()
		}
	}
}

func (f *Fleet) process(item WorkItem) {
	transform, err := f.registry.Get(item.StageID)
	if err != nil {
		f.fail(item.Sample, item.StageID, err)
		return
	}

	result, err := transform(item.Sample, item.Metadata)
	if err != nil {
		f.fail(item.Sample, item.StageID, err)
		return
	}

	f.notifyProgress(item.StageID)

	ns := result.Sample.StageNum()
	if f.maxStages > 0 && ns >= f.maxStages {
		f.rest(result.Sample, result.Metadata)
		return
	}

	if f.pool.IsCheckpoint(ns) {
		released, _ := f.pool.Deposit(PoolEntry{Sample: result.Sample, Metadata: result.Metadata, Requests: result.Requests})
		if released != nil {
			f.release(released)
		}
		return
	}

	if len(result.Requests) > 0 {
		f.enqueueRequests(result.Sample, result.Metadata, result.Requests)
		return
	}

	f.rest(result.Sample, result.Metadata)
}

// release resolves a just-satisfied checkpoint barrier's entries into
// their follow-up WorkItems (or final rest, if a held entry has nothing
// left to run). Per spec §5, released samples proceed "atomically — no
// interleaving with non-checkpoint arrivals at stage s during the
// release" — callers hold no lock here, but the entries themselves were
// already atomically removed from the bucket under Pool's lock, which is
// what the guarantee actually protects.
func (f *Fleet) release(entries []PoolEntry) {
	for _, e := range entries {
		f.resolveReleased(e)
	}
}

func (f *Fleet) resolveReleased(e PoolEntry) {
	if len(e.Requests) > 0 {
		f.enqueueRequests(e.Sample, e.Metadata, e.Requests)
		return
	}

	next, ok := f.defaultNext(e.Sample.StageNum())
	if !ok {
		f.rest(e.Sample, e.Metadata)
		return
	}

	seq := f.queue.NextSeq()
	f.queue.Push(WorkItem{Sample: e.Sample, Metadata: e.Metadata, StageID: next, ArrivalSeq: seq})
}

// defaultNext implements the default-progression rule (SPEC_FULL §2):
// the stage immediately following a sample's current stage number in
// the configured canonical pipeline order. It reports false once the
// sample's stage number has run past the end of that order.
func (f *Fleet) defaultNext(stageNum uint32) (stage.ID, bool) {
	if int(stageNum) >= len(f.pipeline) {
		return 0, false
	}
	return f.pipeline[stageNum], true
}

// enqueueRequests pushes one WorkItem per admitted request, preserving
// order. Each request is first run past the fleet's InsertionPolicy —
// grounded on original_source's executor, which gates every dynamic
// stage-request insertion through policy.should_insert(request) before
// ever calling scheduler.enqueue; a rejected request is simply dropped.
// The first admitted request carries the sample forward as-is; any
// additional admitted requests carry an independent clone — grounded on
// original_source's scheduler forking each extra request off a
// `result.sample.clone()` rather than splitting the one sample object
// across queue entries. If the policy admits none of the requests, the
// sample has nothing left to run and rests, same as if it had requested
// nothing at all — this keeps completed_count + pending_count == |B|
// exact even though original_source's equivalent path leaves such a
// sample in the regroup pool without marking it complete.
func (f *Fleet) enqueueRequests(s sample.Sample, m sample.FlowMetadata, requests []stage.Request) {
	admitted := make([]stage.Request, 0, len(requests))
	for _, req := range requests {
		if f.policy.ShouldInsert(req) {
			admitted = append(admitted, req)
		}
	}
	if len(admitted) == 0 {
		f.rest(s, m)
		return
	}

	for i, req := range admitted {
		carried, meta := s, req.Metadata
		if i > 0 {
			carried = s.Clone()
			meta = meta.Clone()
		}
		seq := f.queue.NextSeq()
		f.queue.Push(WorkItem{Sample: carried, Metadata: meta, StageID: req.StageID, ArrivalSeq: seq})
	}
}

func (f *Fleet) rest(s sample.Sample, m sample.FlowMetadata) {
	f.pool.Rest(PoolEntry{Sample: s, Metadata: m})
	f.completed.Add(1)
	f.notifySample(s, m, nil)
}

func (f *Fleet) fail(s sample.Sample, stageID stage.ID, err error) {
	released := f.pool.Fail(s, stageID, err)
	f.completed.Add(1)
	f.logger.Error("stage failed", "stage", stageID, "sample", s.ID(), "err", err)
	f.notifyProgress(stageID)
	f.notifySample(s, s.Metadata, err)
	if released != nil {
		f.release(released)
	}
}

func (f *Fleet) notifyProgress(stageID stage.ID) {
	f.hooksMu.RLock()
	h := f.hooks
	f.hooksMu.RUnlock()
	if h == nil || h.OnProgress == nil {
		return
	}
	h.OnProgress(stageID, f.completed.Load(), f.total.Load())
}

func (f *Fleet) notifySample(s sample.Sample, m sample.FlowMetadata, err error) {
	f.hooksMu.RLock()
	h := f.hooks
	f.hooksMu.RUnlock()
	if h == nil || h.OnSample == nil {
		return
	}
	h.OnSample(s, m, err)
}
