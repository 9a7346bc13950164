package internal

import (
	"container/heap"
	"context"
	"sync"

	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

// WorkItem is a unit of queued work: a sample ready to have StageID
// invoked on it next, tagged with the arrival sequence used for FIFO
// tie-break within a stage-number tier.
type WorkItem struct {
	Sample     sample.Sample
	Metadata   sample.FlowMetadata
	StageID    stage.ID
	ArrivalSeq uint64
}

type workItemHeap []WorkItem

func (h workItemHeap) Len() int { return len(h) }

func (h workItemHeap) Less(i, j int) bool {
	si, sj := h[i].Sample.StageNum(), h[j].Sample.StageNum()
	if si != sj {
		return si < sj
	}
	return h[i].ArrivalSeq < h[j].ArrivalSeq
}

func (h workItemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *workItemHeap) Push(x any) { *h = append(*h, x.(WorkItem)) }

func (h *workItemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is the priority work queue (spec §4.D): a binary min-heap on
// (sample stage number, arrival sequence), guarded by one mutex plus a
// condition variable idle workers block on.
//
// Grounded on framesupplier/internal/supplier.go's inboxCond wait/
// broadcast pattern, generalized from a single-slot mailbox to a
// multi-item heap, and on its distributionLoop's ctx.Err() recheck
// around Wait for cooperative shutdown.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items workItemHeap
	seq   uint64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// NextSeq reserves the next arrival sequence number. A caller enqueuing
// several WorkItems derived from one stage result calls this once per
// item, in the order the items should be considered to have arrived.
func (q *Queue) NextSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	return q.seq
}

// Push inserts item and wakes one blocked worker.
func (q *Queue) Push(item WorkItem) {
	q.mu.Lock()
	heap.Push(&q.items, item)
	q.cond.Signal()
	q.mu.Unlock()
}

// Pop blocks until an item is available or ctx is done. ok is false only
// when ctx is done and the queue was empty when Pop began waiting; an
// item pushed while Pop waited is then left in the queue.
func (q *Queue) Pop(ctx context.Context) (item WorkItem, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 {
		if ctx.Err() != nil {
			return WorkItem{}, false
		}
		q.cond.Wait()
		if ctx.Err() != nil {
			return WorkItem{}, false
		}
	}
	return heap.Pop(&q.items).(WorkItem), true
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear discards all queued items without running them, used by Reset.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// Broadcast wakes every worker blocked in Pop so they can re-check
// ctx.Err(). Used by the fleet when the runtime is cancelled.
func (q *Queue) Broadcast() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}
