// Package textgate implements C4: the decision of whether newly OCR'd text
// differs enough from the previously accepted text to be worth a fresh
// translation round. It is a pure function over two strings plus the
// orchestrator's current mode — SingleShot always accepts, bypassing the
// gate entirely, per spec §4.3.
package textgate

import "strings"

// Threshold is the authoritative minimum fraction of changed tokens (by
// Jaccard distance) required for Accept to return true in Live mode. The
// pack's settings tree also carries a ServiceTextChangeThreshold field for
// observability, but per the resolved Open Question (DESIGN.md) it is never
// consulted here — this constant is the one the gate actually computes
// against.
const Threshold = 0.10

// Decision is the result of running the gate, carrying enough detail for
// diagnostics without the caller needing to recompute anything.
type Decision struct {
	Accepted      bool
	JaccardChange float64
}

// Accept reports whether newText differs enough from prevText to warrant a
// new translation round. bypass is true for single-shot mode, in which case
// the gate always accepts without computing a distance.
func Accept(prevText, newText string, bypass bool) Decision {
	if bypass {
		return Decision{Accepted: true}
	}
	if prevText == newText {
		return Decision{Accepted: false}
	}
	dist := jaccardDistance(tokenize(prevText), tokenize(newText))
	return Decision{
		Accepted:      dist >= Threshold,
		JaccardChange: dist,
	}
}

// tokenize lowercases and splits on whitespace. It deliberately does not
// strip punctuation: OCR noise on punctuation is itself a meaningful signal
// of on-screen change.
func tokenize(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccardDistance returns 1 - |intersection|/|union| over two token sets.
// Two empty sets are considered identical (distance 0).
func jaccardDistance(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return 1 - float64(intersection)/float64(union)
}
