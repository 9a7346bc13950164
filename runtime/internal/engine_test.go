package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(stage.NewDefaultRegistry(), Config{WorkerCount: 2})
}

func TestEngineRunSyncEmptyBatch(t *testing.T) {
	e := newEngine(t)
	if err := e.RunSync(context.Background()); err != nil {
		t.Fatalf("RunSync on empty batch failed: %v", err)
	}
	if e.CompletedCount() != 0 {
		t.Fatalf("CompletedCount() = %d, want 0", e.CompletedCount())
	}
}

func TestEngineRunSyncSingleSampleReachesPhase(t *testing.T) {
	e := newEngine(t)
	s := flatSample(t, "s1")
	if err := e.AddSample(s); err != nil {
		t.Fatalf("AddSample failed: %v", err)
	}

	if err := e.RunSync(context.Background()); err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}

	entries, err := e.Regroup(0)
	if err != nil {
		t.Fatalf("Regroup failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v, want exactly one sample", entries)
	}
	if entries[0].Sample.ID() != "s1" {
		t.Fatalf("Sample.ID() = %q, want \"s1\"", entries[0].Sample.ID())
	}
	if entries[0].Sample.StageNum() != uint32(len(stage.DefaultPipeline())) {
		t.Fatalf("StageNum() = %d, want %d (reached Phase)", entries[0].Sample.StageNum(), len(stage.DefaultPipeline()))
	}
}

func TestEngineAddSampleRejectedWhileRunning(t *testing.T) {
	r := stage.NewRegistry()
	r.Register(stage.Background, func(s sample.Sample, m sample.FlowMetadata) (stage.Result, error) {
		time.Sleep(50 * time.Millisecond)
		return stage.Terminal(s.AdvanceStage(), m), nil
	})
	e := NewEngine(r, Config{WorkerCount: 1})
	if err := e.AddSample(flatSample(t, "slow")); err != nil {
		t.Fatalf("AddSample failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		e.RunSync(context.Background())
		close(done)
	}()

	for !e.IsRunning() {
		time.Sleep(time.Millisecond)
	}
	if err := e.AddSample(flatSample(t, "late")); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("AddSample during run = %v, want ErrAlreadyRunning", err)
	}

	<-done
}

func TestEngineCancelStopsRunSync(t *testing.T) {
	r := stage.NewRegistry()
	r.Register(stage.Background, func(s sample.Sample, m sample.FlowMetadata) (stage.Result, error) {
		time.Sleep(150 * time.Millisecond)
		return stage.Terminal(s.AdvanceStage(), m), nil
	})
	e := NewEngine(r, Config{WorkerCount: 1})
	if err := e.AddSample(flatSample(t, "slow")); err != nil {
		t.Fatalf("AddSample failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.RunSync(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	e.Cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("RunSync() = %v, want ErrCancelled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunSync never returned after Cancel")
	}

	if err := e.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if e.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d after Reset, want 0", e.PendingCount())
	}
}

func TestEngineMaxStagesCapsSample(t *testing.T) {
	e := NewEngine(stage.NewDefaultRegistry(), Config{WorkerCount: 1, MaxStages: 2})
	if err := e.AddSample(peakySample(t, "capped")); err != nil {
		t.Fatalf("AddSample failed: %v", err)
	}
	if err := e.RunSync(context.Background()); err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	entries, _ := e.Regroup(0)
	if len(entries) != 1 || entries[0].Sample.StageNum() != 2 {
		t.Fatalf("entries = %+v, want one sample capped at stage 2", entries)
	}
}

func flatSample(t *testing.T, id string) sample.Sample {
	t.Helper()
	s, err := sample.New(id, []float64{0, 1, 2, 3, 4}, []float64{1, 1, 1, 1, 1}, []float64{0.1, 0.1, 0.1, 0.1, 0.1})
	if err != nil {
		t.Fatalf("sample.New failed: %v", err)
	}
	return s
}

func peakySample(t *testing.T, id string) sample.Sample {
	t.Helper()
	s, err := sample.New(id, []float64{0, 1, 2, 3, 4, 5, 6}, []float64{0, 1, 0, 5, 0, 1, 0}, []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1})
	if err != nil {
		t.Fatalf("sample.New failed: %v", err)
	}
	return s
}
