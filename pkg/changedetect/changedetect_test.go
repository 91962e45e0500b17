package changedetect

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"scanlate/pkg/model"
)

func solidFrame(w, h int, r, g, b byte) *model.Frame {
	pixels := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		pixels[i*4] = r
		pixels[i*4+1] = g
		pixels[i*4+2] = b
		pixels[i*4+3] = 255
	}
	return model.NewFrame(pixels, w, h, w, h, 1, time.Now())
}

func TestDetect_FirstFrameReturnsFullChange(t *testing.T) {
	cur := solidFrame(32, 32, 10, 10, 10)
	result := Detect(cur, nil, DefaultConfig())
	if result.ChangePercentage != 1.0 {
		t.Fatalf("expected ChangePercentage=1.0 on first frame, got %v", result.ChangePercentage)
	}
	if len(result.ChangedRegions) != 0 {
		t.Fatalf("expected no regions on first frame, got %d", len(result.ChangedRegions))
	}
}

func TestDetect_IdenticalFramesZeroChange(t *testing.T) {
	a := solidFrame(32, 32, 50, 60, 70)
	b := solidFrame(32, 32, 50, 60, 70)
	result := Detect(a, b, DefaultConfig())
	if result.ChangePercentage != 0 {
		t.Fatalf("expected 0 change for identical frames, got %v", result.ChangePercentage)
	}
	if len(result.ChangedRegions) != 0 {
		t.Fatalf("expected no regions for identical frames, got %d", len(result.ChangedRegions))
	}
}

func TestDetect_FullyDifferentFrameFullChange(t *testing.T) {
	a := solidFrame(32, 32, 0, 0, 0)
	b := solidFrame(32, 32, 255, 255, 255)
	result := Detect(a, b, DefaultConfig())
	if result.ChangePercentage < 0.99 {
		t.Fatalf("expected near-total change, got %v", result.ChangePercentage)
	}
	if len(result.ChangedRegions) == 0 {
		t.Fatal("expected changed regions to be reported")
	}
}

func TestDetect_DimensionMismatchIsFullChange(t *testing.T) {
	a := solidFrame(16, 16, 10, 10, 10)
	b := solidFrame(32, 32, 10, 10, 10)
	result := Detect(a, b, DefaultConfig())
	if result.ChangePercentage != 1.0 {
		t.Fatalf("expected dimension mismatch to report full change, got %v", result.ChangePercentage)
	}
}

// TestDetectDeterministic is the "identical inputs, identical outputs"
// property the spec requires (§4.1: "deterministic for identical inputs").
func TestDetectDeterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Detect is deterministic for identical frame pairs", prop.ForAll(
		func(seed uint8) bool {
			a := noisyFrame(24, 24, seed)
			b := noisyFrame(24, 24, seed+1)
			r1 := Detect(a, b, DefaultConfig())
			r2 := Detect(a, b, DefaultConfig())
			return r1.ChangePercentage == r2.ChangePercentage && len(r1.ChangedRegions) == len(r2.ChangedRegions)
		},
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

func noisyFrame(w, h int, seed uint8) *model.Frame {
	pixels := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		v := byte((int(seed) + i*7) % 256)
		pixels[i*4] = v
		pixels[i*4+1] = v
		pixels[i*4+2] = v
		pixels[i*4+3] = 255
	}
	return model.NewFrame(pixels, w, h, w, h, 1, time.Now())
}
