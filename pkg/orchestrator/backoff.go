package orchestrator

import (
	"sync"
	"time"
)

// backoffLadder implements the transient-error escalation ladder from
// spec.md §7: a first occurrence inserts a 500ms backoff; a second
// consecutive occurrence with the same error signature raises the
// cooldown to 2s and skips publishing; a third occurrence within 30s
// (regardless of signature) additionally drops the loop's interval floor
// to 1s for the following minute. No retry library in the teacher/pack
// offers this exact three-tier shape (DESIGN.md), so it is implemented
// directly as a small explicit state machine over stdlib time, tested with
// table cases.
type backoffLadder struct {
	mu sync.Mutex

	lastSignature    string
	consecutiveCount int

	recentOccurrences []time.Time
	floorUntil        time.Time
}

// Observe records one transient-error occurrence with the given signature
// at time now, returning the extra cooldown the orchestrator should add on
// top of its normal post-translation cooldown, and whether this round's
// result should be suppressed from publishing.
func (b *backoffLadder) Observe(signature string, now time.Time) (extraCooldown time.Duration, skipPublish bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if signature != "" && signature == b.lastSignature {
		b.consecutiveCount++
	} else {
		b.lastSignature = signature
		b.consecutiveCount = 1
	}

	cutoff := now.Add(-30 * time.Second)
	kept := b.recentOccurrences[:0]
	for _, t := range b.recentOccurrences {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.recentOccurrences = append(kept, now)

	extraCooldown = 500 * time.Millisecond
	if b.consecutiveCount >= 2 {
		extraCooldown = 2 * time.Second
		skipPublish = true
	}
	if len(b.recentOccurrences) >= 3 {
		b.floorUntil = now.Add(1 * time.Minute)
	}
	return extraCooldown, skipPublish
}

// IntervalFloor returns the minimum loop interval currently imposed by a
// third-occurrence escalation, or zero if none is in effect.
func (b *backoffLadder) IntervalFloor(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.floorUntil) {
		return time.Second
	}
	return 0
}

// Reset clears all escalation state, called on orchestrator reset_state().
func (b *backoffLadder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSignature = ""
	b.consecutiveCount = 0
	b.recentOccurrences = nil
	b.floorUntil = time.Time{}
}
