package internal

import (
	"sort"
	"sync"

	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

// PoolEntry is a sample at rest in the regroup pool: either genuinely
// terminal (Requests empty, not parked behind a checkpoint) or held at
// a checkpoint barrier with its pending requests preserved for release.
type PoolEntry struct {
	Sample   sample.Sample
	Metadata sample.FlowMetadata
	Requests []stage.Request
}

// FailedEntry records a sample whose stage transform returned an error.
type FailedEntry struct {
	Sample  sample.Sample
	StageID stage.ID
	Err     error
}

// Pool implements the regroup pool (spec §4.E): buckets of resting
// samples keyed by stage number, a checkpoint set, and the expected
// batch size used to decide when a checkpoint barrier is satisfied.
//
// Grounded on original_source's runtime/regroup.rs for the bucket /
// checkpoint / reached-count shape, re-expressed with a plain mutex
// instead of ownership-checked Rust structures; the failed-bucket
// accounting follows framebus's cumulative atomic-counter style.
//
// Lock order: callers that hold the queue lock must release it before
// calling into Pool (spec §5's queue-lock-then-pool-lock rule) — Pool
// never reaches back into Queue, so that invariant holds trivially here.
type Pool struct {
	mu          sync.Mutex
	buckets     map[uint32][]PoolEntry
	checkpoints map[uint32]bool
	reached     map[uint32]int
	expected    int
	failed      []FailedEntry
}

// NewPool returns an empty pool with no checkpoints configured.
func NewPool() *Pool {
	return &Pool{
		buckets:     make(map[uint32][]PoolEntry),
		checkpoints: make(map[uint32]bool),
		reached:     make(map[uint32]int),
	}
}

// SetCheckpoints replaces the checkpoint set. Callers must ensure the
// runtime is idle — Pool itself does not enforce that.
func (p *Pool) SetCheckpoints(stages []uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkpoints = make(map[uint32]bool, len(stages))
	for _, s := range stages {
		p.checkpoints[s] = true
	}
}

// SetExpected sets the number of samples the current batch expects at
// a checkpoint barrier — the batch size at the moment the run starts.
func (p *Pool) SetExpected(n int) {
	p.mu.Lock()
	p.expected = n
	p.mu.Unlock()
}

// IsCheckpoint reports whether stageNum is a configured checkpoint.
func (p *Pool) IsCheckpoint(stageNum uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkpoints[stageNum]
}

// Deposit files entry into the bucket for its sample's current stage
// number. If that stage number is a checkpoint, Deposit increments the
// per-checkpoint reached count and, once it equals the expected batch
// size, releases and clears the whole bucket — every sample that ever
// reaches this stage number passes through Deposit exactly once (the
// fleet intercepts checkpoints before the normal routing decision), so
// "reached the checkpoint" and "was deposited at it" coincide.
func (p *Pool) Deposit(entry PoolEntry) (released []PoolEntry, isCheckpoint bool) {
	stageNum := entry.Sample.StageNum()
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buckets[stageNum] = append(p.buckets[stageNum], entry)

	if !p.checkpoints[stageNum] {
		return nil, false
	}

	p.reached[stageNum]++
	if p.reached[stageNum] < p.expected {
		return nil, true
	}

	released = p.buckets[stageNum]
	delete(p.buckets, stageNum)
	return released, true
}

// Rest deposits a genuinely terminal entry — no pending request, and
// either not a checkpoint or already released past one — without any
// barrier bookkeeping.
func (p *Pool) Rest(entry PoolEntry) {
	p.mu.Lock()
	p.buckets[entry.Sample.StageNum()] = append(p.buckets[entry.Sample.StageNum()], entry)
	p.mu.Unlock()
}

// Fail records a sample whose stage transform returned an error and
// decrements the checkpoint expected-arrivals count — a failed sample
// will never reach any checkpoint ahead of it, so counting it toward
// "expected" would leave every checkpoint at or below it permanently
// short by one. If the decrement brings a checkpoint's already-reached
// count up to the new expected count, that bucket is released; Fail
// returns those entries for the caller to route onward, exactly as
// Deposit does.
func (p *Pool) Fail(s sample.Sample, stageID stage.ID, err error) []PoolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, FailedEntry{Sample: s, StageID: stageID, Err: err})
	if p.expected > 0 {
		p.expected--
	}
	return p.releaseSatisfiedLocked()
}

// releaseSatisfiedLocked returns and clears every checkpoint bucket
// whose reached count has caught up to the (possibly just-lowered)
// expected count. Callers must hold p.mu.
func (p *Pool) releaseSatisfiedLocked() []PoolEntry {
	var released []PoolEntry
	for stageNum := range p.checkpoints {
		if p.reached[stageNum] > 0 && p.reached[stageNum] >= p.expected && len(p.buckets[stageNum]) > 0 {
			released = append(released, p.buckets[stageNum]...)
			delete(p.buckets, stageNum)
		}
	}
	return released
}

// FailedCount returns the number of samples routed to the failed bucket
// since the last Reset.
func (p *Pool) FailedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.failed)
}

// FailedSamples returns a snapshot of the failed bucket.
func (p *Pool) FailedSamples() []FailedEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FailedEntry, len(p.failed))
	copy(out, p.failed)
	return out
}

// Size returns the total number of entries currently resting across all
// buckets, checkpoint-held or not.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.buckets {
		n += len(b)
	}
	return n
}

// HasUnreleasedCheckpoint reports whether any checkpoint bucket is still
// short of its expected count — run_sync's quiescence condition needs
// this in addition to queue-empty and in-flight-zero.
func (p *Pool) HasUnreleasedCheckpoint() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for stageNum := range p.checkpoints {
		if p.reached[stageNum] > 0 && p.reached[stageNum] < p.expected && len(p.buckets[stageNum]) > 0 {
			return true
		}
	}
	return false
}

// Regroup atomically removes and returns every entry currently resting
// in a bucket numbered minStage or higher, in ascending stage order,
// FIFO within each stage.
func (p *Pool) Regroup(minStage uint32) []PoolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stages []uint32
	for s := range p.buckets {
		if s >= minStage {
			stages = append(stages, s)
		}
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })

	var out []PoolEntry
	for _, s := range stages {
		out = append(out, p.buckets[s]...)
		delete(p.buckets, s)
	}
	return out
}

// Reset clears all pool state except the configured checkpoint set.
func (p *Pool) Reset() {
	p.mu.Lock()
	p.buckets = make(map[uint32][]PoolEntry)
	p.reached = make(map[uint32]int)
	p.expected = 0
	p.failed = nil
	p.mu.Unlock()
}
