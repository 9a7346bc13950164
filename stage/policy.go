package stage

import "sync"

// InsertionPolicy gates whether a dynamically requested follow-up stage
// is actually enqueued. Grounded on original_source's
// runtime::policy::InsertionPolicy trait — the scheduler there calls
// policy.should_insert(request) before enqueueing every Request a stage
// result carries; the Go fleet does the same in Fleet.enqueueRequests.
//
// A request the policy rejects is simply dropped: the sample carrying it
// still rests wherever the fleet would otherwise have left it (see
// Fleet.process), it just never gets the rejected follow-up run.
type InsertionPolicy interface {
	// ShouldInsert decides whether req should be enqueued.
	ShouldInsert(req Request) bool

	// Reset clears any accumulated state, for reuse across batches.
	Reset()
}

// AlwaysInsertPolicy inserts every request — the fleet's default.
type AlwaysInsertPolicy struct{}

// ShouldInsert always returns true.
func (AlwaysInsertPolicy) ShouldInsert(Request) bool { return true }

// Reset is a no-op.
func (AlwaysInsertPolicy) Reset() {}

// NeverInsertPolicy rejects every request.
type NeverInsertPolicy struct{}

// ShouldInsert always returns false.
func (NeverInsertPolicy) ShouldInsert(Request) bool { return false }

// Reset is a no-op.
func (NeverInsertPolicy) Reset() {}

// SaturationPolicy admits up to MaxInsertions requests total, across every
// sample, then rejects the rest until Reset.
type SaturationPolicy struct {
	MaxInsertions int

	mu      sync.Mutex
	current int
}

// NewSaturationPolicy returns a SaturationPolicy admitting up to max
// requests.
func NewSaturationPolicy(max int) *SaturationPolicy {
	return &SaturationPolicy{MaxInsertions: max}
}

// ShouldInsert admits req if fewer than MaxInsertions requests have been
// admitted since the last Reset.
func (p *SaturationPolicy) ShouldInsert(Request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current >= p.MaxInsertions {
		return false
	}
	p.current++
	return true
}

// Reset zeroes the admitted count.
func (p *SaturationPolicy) Reset() {
	p.mu.Lock()
	p.current = 0
	p.mu.Unlock()
}

// PerSampleLimitPolicy admits up to MaxPerSample requests for any one
// sample ID (Request.Metadata.SampleID), independent of every other
// sample.
type PerSampleLimitPolicy struct {
	MaxPerSample int

	mu     sync.Mutex
	counts map[string]int
}

// NewPerSampleLimitPolicy returns a PerSampleLimitPolicy admitting up to
// max requests per sample ID.
func NewPerSampleLimitPolicy(max int) *PerSampleLimitPolicy {
	return &PerSampleLimitPolicy{MaxPerSample: max, counts: make(map[string]int)}
}

// ShouldInsert admits req if its sample has not yet reached MaxPerSample
// admitted requests.
func (p *PerSampleLimitPolicy) ShouldInsert(req Request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := req.Metadata.SampleID
	if p.counts[id] >= p.MaxPerSample {
		return false
	}
	p.counts[id]++
	return true
}

// Reset clears every sample's count.
func (p *PerSampleLimitPolicy) Reset() {
	p.mu.Lock()
	p.counts = make(map[string]int)
	p.mu.Unlock()
}

// AllPolicy admits a request only if every one of its sub-policies
// admits it.
type AllPolicy struct {
	Policies []InsertionPolicy
}

// ShouldInsert returns true iff every sub-policy returns true.
func (p AllPolicy) ShouldInsert(req Request) bool {
	for _, sub := range p.Policies {
		if !sub.ShouldInsert(req) {
			return false
		}
	}
	return true
}

// Reset resets every sub-policy.
func (p AllPolicy) Reset() {
	for _, sub := range p.Policies {
		sub.Reset()
	}
}

// AnyPolicy admits a request if at least one of its sub-policies admits
// it.
type AnyPolicy struct {
	Policies []InsertionPolicy
}

// ShouldInsert returns true as soon as any sub-policy returns true,
// short-circuiting the remaining sub-policies — matching the original's
// iterator .any().
func (p AnyPolicy) ShouldInsert(req Request) bool {
	for _, sub := range p.Policies {
		if sub.ShouldInsert(req) {
			return true
		}
	}
	return false
}

// Reset resets every sub-policy.
func (p AnyPolicy) Reset() {
	for _, sub := range p.Policies {
		sub.Reset()
	}
}
