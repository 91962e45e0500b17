package orchestrator

import (
	"testing"
	"time"
)

func TestBackoffFirstOccurrenceIs500ms(t *testing.T) {
	var b backoffLadder
	now := time.Unix(0, 0)
	extra, skip := b.Observe("RunFailed", now)
	if extra != 500*time.Millisecond {
		t.Fatalf("extra = %v, want 500ms", extra)
	}
	if skip {
		t.Fatal("first occurrence should not skip publishing")
	}
}

func TestBackoffSecondConsecutiveSameSignatureEscalates(t *testing.T) {
	var b backoffLadder
	now := time.Unix(0, 0)
	b.Observe("RunFailed", now)
	extra, skip := b.Observe("RunFailed", now.Add(time.Second))
	if extra != 2*time.Second {
		t.Fatalf("extra = %v, want 2s", extra)
	}
	if !skip {
		t.Fatal("second consecutive same-signature occurrence should skip publishing")
	}
}

func TestBackoffDifferentSignatureResetsConsecutiveCount(t *testing.T) {
	var b backoffLadder
	now := time.Unix(0, 0)
	b.Observe("RunFailed", now)
	extra, skip := b.Observe("PaddlePredictor", now.Add(time.Second))
	if extra != 500*time.Millisecond || skip {
		t.Fatalf("a different signature should reset escalation, got extra=%v skip=%v", extra, skip)
	}
}

func TestBackoffThirdWithin30sDropsIntervalFloor(t *testing.T) {
	var b backoffLadder
	start := time.Unix(0, 0)
	if got := b.IntervalFloor(start); got != 0 {
		t.Fatalf("floor before any occurrence = %v, want 0", got)
	}
	b.Observe("RunFailed", start)
	b.Observe("Transient", start.Add(5*time.Second))
	b.Observe("Timeout", start.Add(10*time.Second))

	floor := b.IntervalFloor(start.Add(11 * time.Second))
	if floor != time.Second {
		t.Fatalf("floor after third occurrence in 30s = %v, want 1s", floor)
	}
	if got := b.IntervalFloor(start.Add(11*time.Second + time.Minute + time.Second)); got != 0 {
		t.Fatalf("floor should expire after 1 minute, got %v", got)
	}
}

func TestBackoffThirdOccurrenceOutsideWindowDoesNotEscalate(t *testing.T) {
	var b backoffLadder
	start := time.Unix(0, 0)
	b.Observe("A", start)
	b.Observe("B", start.Add(35*time.Second))
	b.Observe("C", start.Add(70*time.Second))
	if floor := b.IntervalFloor(start.Add(70 * time.Second)); floor != 0 {
		t.Fatalf("occurrences more than 30s apart should not accumulate, floor = %v", floor)
	}
}

func TestBackoffReset(t *testing.T) {
	var b backoffLadder
	now := time.Unix(0, 0)
	b.Observe("RunFailed", now)
	b.Observe("RunFailed", now)
	b.Reset()
	extra, skip := b.Observe("RunFailed", now)
	if extra != 500*time.Millisecond || skip {
		t.Fatalf("after Reset, first occurrence should look fresh, got extra=%v skip=%v", extra, skip)
	}
}
