package internal

import (
	"context"
	"testing"
	"time"

	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

func mustSample(t *testing.T, id string) sample.Sample {
	t.Helper()
	s, err := sample.New(id, []float64{1, 2}, []float64{3, 4}, []float64{0.1, 0.1})
	if err != nil {
		t.Fatalf("sample.New failed: %v", err)
	}
	return s
}

func TestQueueOrdersByStageNumThenArrival(t *testing.T) {
	q := NewQueue()
	low := mustSample(t, "low")
	high := mustSample(t, "high").AdvanceStage()

	q.Push(WorkItem{Sample: high, StageID: stage.Cut, ArrivalSeq: q.NextSeq()})
	q.Push(WorkItem{Sample: low, StageID: stage.Background, ArrivalSeq: q.NextSeq()})

	ctx := context.Background()
	first, ok := q.Pop(ctx)
	if !ok || first.Sample.ID() != "low" {
		t.Fatalf("first popped = %+v, want sample \"low\"", first)
	}
	second, ok := q.Pop(ctx)
	if !ok || second.Sample.ID() != "high" {
		t.Fatalf("second popped = %+v, want sample \"high\"", second)
	}
}

func TestQueueFIFOWithinStage(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"a", "b", "c"} {
		q.Push(WorkItem{Sample: mustSample(t, id), StageID: stage.Background, ArrivalSeq: q.NextSeq()})
	}
	ctx := context.Background()
	want := []string{"a", "b", "c"}
	for _, w := range want {
		item, ok := q.Pop(ctx)
		if !ok || item.Sample.ID() != w {
			t.Fatalf("got %+v, want %q", item, w)
		}
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()
	done := make(chan WorkItem, 1)
	go func() {
		item, ok := q.Pop(ctx)
		if ok {
			done <- item
		}
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(WorkItem{Sample: mustSample(t, "late"), StageID: stage.Background, ArrivalSeq: q.NextSeq()})

	select {
	case item := <-done:
		if item.Sample.ID() != "late" {
			t.Fatalf("got %q, want \"late\"", item.Sample.ID())
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Push")
	}
}

func TestQueuePopUnblocksOnCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(ctx)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	q.Broadcast()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("Pop returned ok=true after cancellation with no items")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never unblocked after cancel + Broadcast")
	}
}

func TestQueueClear(t *testing.T) {
	q := NewQueue()
	q.Push(WorkItem{Sample: mustSample(t, "x"), StageID: stage.Background, ArrivalSeq: q.NextSeq()})
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", q.Len())
	}
}
