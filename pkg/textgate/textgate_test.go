package textgate

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestAccept_SingleShotBypassesGate(t *testing.T) {
	d := Accept("hello world", "hello world", true)
	if !d.Accepted {
		t.Fatal("expected single-shot bypass to always accept")
	}
}

func TestAccept_IdenticalTextRejected(t *testing.T) {
	d := Accept("the quick brown fox", "the quick brown fox", false)
	if d.Accepted {
		t.Fatal("expected identical text to be rejected")
	}
}

func TestAccept_CompletelyDifferentTextAccepted(t *testing.T) {
	d := Accept("alpha beta gamma", "delta epsilon zeta", false)
	if !d.Accepted {
		t.Fatalf("expected fully disjoint text to be accepted, got distance %v", d.JaccardChange)
	}
}

func TestAccept_SmallChangeBelowThresholdRejected(t *testing.T) {
	// 19 shared tokens, 1 differing on each side: distance 2/21 ≈ 0.095,
	// just under the 10% threshold.
	prev := "t0 t1 t2 t3 t4 t5 t6 t7 t8 t9 t10 t11 t12 t13 t14 t15 t16 t17 t18 t19"
	next := "t0 t1 t2 t3 t4 t5 t6 t7 t8 t9 t10 t11 t12 t13 t14 t15 t16 t17 t18 x19"
	d := Accept(prev, next, false)
	if d.Accepted {
		t.Fatalf("expected small change to stay below threshold, got distance %v", d.JaccardChange)
	}
}

func TestAccept_BothEmptyRejected(t *testing.T) {
	d := Accept("", "", false)
	if d.Accepted {
		t.Fatal("expected two empty strings to be rejected (no change)")
	}
}

// TestAcceptDeterministic mirrors the changedetect determinism property:
// Accept is a pure function, so identical inputs must produce identical
// decisions.
func TestAcceptDeterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Accept is deterministic for identical string pairs", prop.ForAll(
		func(a, b string, bypass bool) bool {
			d1 := Accept(a, b, bypass)
			d2 := Accept(a, b, bypass)
			return d1 == d2
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.Property("threshold boundary is respected", prop.ForAll(
		func(a, b string) bool {
			d := Accept(a, b, false)
			if d.Accepted {
				return d.JaccardChange >= Threshold
			}
			return d.JaccardChange < Threshold
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
