package internal

import (
	"testing"

	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

func stageSample(t *testing.T, id string, stageNum uint32) sample.Sample {
	t.Helper()
	s := mustSample(t, id)
	for i := uint32(0); i < stageNum; i++ {
		s = s.AdvanceStage()
	}
	return s
}

func TestPoolRestIsNotGatedByCheckpoint(t *testing.T) {
	p := NewPool()
	p.Rest(PoolEntry{Sample: stageSample(t, "s1", 1)})
	if p.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", p.Size())
	}
	entries := p.Regroup(0)
	if len(entries) != 1 || entries[0].Sample.ID() != "s1" {
		t.Fatalf("Regroup(0) = %+v", entries)
	}
	if p.Size() != 0 {
		t.Fatalf("Size() = %d after Regroup, want 0", p.Size())
	}
}

func TestPoolCheckpointReleasesAtExpectedCount(t *testing.T) {
	p := NewPool()
	p.SetCheckpoints([]uint32{2})
	p.SetExpected(2)

	released, isCheckpoint := p.Deposit(PoolEntry{Sample: stageSample(t, "a", 2)})
	if !isCheckpoint {
		t.Fatal("isCheckpoint = false, want true")
	}
	if released != nil {
		t.Fatalf("released = %+v, want nil before second arrival", released)
	}

	released, isCheckpoint = p.Deposit(PoolEntry{Sample: stageSample(t, "b", 2)})
	if !isCheckpoint {
		t.Fatal("isCheckpoint = false, want true")
	}
	if len(released) != 2 {
		t.Fatalf("released = %+v, want 2 entries", released)
	}
	if p.Size() != 0 {
		t.Fatalf("Size() = %d after release, want 0 (bucket cleared)", p.Size())
	}
}

func TestPoolDepositNonCheckpointDoesNotRelease(t *testing.T) {
	p := NewPool()
	p.SetExpected(5)
	released, isCheckpoint := p.Deposit(PoolEntry{Sample: stageSample(t, "a", 3)})
	if isCheckpoint {
		t.Fatal("isCheckpoint = true for an unconfigured stage number")
	}
	if released != nil {
		t.Fatalf("released = %+v, want nil", released)
	}
	if p.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", p.Size())
	}
}

func TestPoolRegroupOrdersAscendingByStage(t *testing.T) {
	p := NewPool()
	p.Rest(PoolEntry{Sample: stageSample(t, "hi", 5)})
	p.Rest(PoolEntry{Sample: stageSample(t, "lo", 1)})
	p.Rest(PoolEntry{Sample: stageSample(t, "mid", 3)})

	entries := p.Regroup(0)
	want := []string{"lo", "mid", "hi"}
	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Sample.ID() != w {
			t.Errorf("entries[%d].Sample.ID() = %q, want %q", i, entries[i].Sample.ID(), w)
		}
	}
}

func TestPoolRegroupRespectsMinStage(t *testing.T) {
	p := NewPool()
	p.Rest(PoolEntry{Sample: stageSample(t, "lo", 1)})
	p.Rest(PoolEntry{Sample: stageSample(t, "hi", 5)})

	entries := p.Regroup(3)
	if len(entries) != 1 || entries[0].Sample.ID() != "hi" {
		t.Fatalf("Regroup(3) = %+v, want only \"hi\"", entries)
	}
	remaining := p.Regroup(0)
	if len(remaining) != 1 || remaining[0].Sample.ID() != "lo" {
		t.Fatalf("Regroup(0) after = %+v, want only \"lo\"", remaining)
	}
}

func TestPoolFailAndFailedSamples(t *testing.T) {
	p := NewPool()
	p.Fail(stageSample(t, "bad", 2), stage.FindPeak, errNonNil())
	if p.FailedCount() != 1 {
		t.Fatalf("FailedCount() = %d, want 1", p.FailedCount())
	}
	failed := p.FailedSamples()
	if len(failed) != 1 || failed[0].Sample.ID() != "bad" || failed[0].StageID != stage.FindPeak {
		t.Fatalf("FailedSamples() = %+v", failed)
	}
}

func TestPoolResetClearsButKeepsCheckpoints(t *testing.T) {
	p := NewPool()
	p.SetCheckpoints([]uint32{2})
	p.SetExpected(1)
	p.Deposit(PoolEntry{Sample: stageSample(t, "a", 2)})
	p.Fail(stageSample(t, "b", 1), stage.Cut, errNonNil())

	p.Reset()
	if p.Size() != 0 {
		t.Fatalf("Size() = %d after Reset, want 0", p.Size())
	}
	if p.FailedCount() != 0 {
		t.Fatalf("FailedCount() = %d after Reset, want 0", p.FailedCount())
	}
	if !p.IsCheckpoint(2) {
		t.Fatal("checkpoint set should survive Reset")
	}
}

func TestPoolFailAtCheckpointDecrementsExpected(t *testing.T) {
	p := NewPool()
	p.SetCheckpoints([]uint32{2})
	p.SetExpected(2)

	released, isCheckpoint := p.Deposit(PoolEntry{Sample: stageSample(t, "a", 2)})
	if !isCheckpoint {
		t.Fatal("isCheckpoint = false, want true")
	}
	if released != nil {
		t.Fatalf("released = %+v, want nil before the second sample resolves", released)
	}

	// "b" never reaches the checkpoint — it fails upstream. Without
	// accounting for that, the checkpoint would wait forever for an
	// arrival that can never come.
	failReleased := p.Fail(stageSample(t, "b", 1), stage.Cut, errNonNil())
	if len(failReleased) != 1 || failReleased[0].Sample.ID() != "a" {
		t.Fatalf("Fail released = %+v, want the single held entry \"a\"", failReleased)
	}
	if p.HasUnreleasedCheckpoint() {
		t.Fatal("HasUnreleasedCheckpoint() = true after the failure satisfied the barrier")
	}
	if p.Size() != 0 {
		t.Fatalf("Size() = %d after release, want 0 (bucket cleared)", p.Size())
	}
}

func TestPoolFailBeforeCheckpointArrivalStillReleasesLater(t *testing.T) {
	p := NewPool()
	p.SetCheckpoints([]uint32{2})
	p.SetExpected(3)

	// "b" fails before anyone has reached the checkpoint at all.
	if released := p.Fail(stageSample(t, "b", 1), stage.Cut, errNonNil()); released != nil {
		t.Fatalf("Fail released = %+v, want nil (nothing waiting yet)", released)
	}

	released, _ := p.Deposit(PoolEntry{Sample: stageSample(t, "a", 2)})
	if released != nil {
		t.Fatalf("released = %+v, want nil after only one of two expected arrivals", released)
	}

	released, _ = p.Deposit(PoolEntry{Sample: stageSample(t, "c", 2)})
	if len(released) != 2 {
		t.Fatalf("released = %+v, want 2 entries once expected (3-1=2) is reached", released)
	}
}

func errNonNil() error {
	return errTest
}

var errTest = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
