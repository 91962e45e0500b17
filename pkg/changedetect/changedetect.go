// Package changedetect implements C2: a deterministic, side-effect-free
// comparison between the current and previous captured frames of the same
// window, reporting a change percentage and the coarse regions that
// changed. It owns no state of its own — the caller supplies the previous
// frame — so it can be tested as a pure function.
package changedetect

import (
	"scanlate/pkg/model"
)

// BlockSize is the coarse grid cell size (in pixels of the capture
// resolution) used both for the noise-floor comparison and for building
// ChangedRegions. It is a fixed package constant; only the noise floor is
// configurable, through Config.
const BlockSize = 16

// Config parameterizes Detect.
type Config struct {
	// NoiseFloor is the minimum luma delta (0-255 scale) for a pixel to
	// count as "changed".
	NoiseFloor float64
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{NoiseFloor: 12}
}

// Detect compares current against prev (the previous accepted frame for
// the same window, or nil on the first frame) and returns the fraction of
// pixels whose luma delta exceeds cfg.NoiseFloor, plus the axis-aligned
// bounding rects of BlockSize x BlockSize grid cells containing any such
// pixel. On the first frame (prev == nil) it returns ChangePercentage=1.0
// with no regions, per spec.
func Detect(current, prev *model.Frame, cfg Config) model.ChangeResult {
	if prev == nil || current == nil {
		return model.ChangeResult{ChangePercentage: 1.0}
	}
	if current.Width != prev.Width || current.Height != prev.Height || len(current.Pixels) == 0 || len(prev.Pixels) == 0 {
		return model.ChangeResult{ChangePercentage: 1.0}
	}

	w, h := current.Width, current.Height
	cols := (w + BlockSize - 1) / BlockSize
	rows := (h + BlockSize - 1) / BlockSize
	blockChanged := make([]bool, cols*rows)

	var changedPixels, totalPixels int64

	for y := 0; y < h; y++ {
		rowOff := y * current.Width * 4
		for x := 0; x < w; x++ {
			i := rowOff + x*4
			if i+2 >= len(current.Pixels) || i+2 >= len(prev.Pixels) {
				continue
			}
			totalPixels++
			delta := lumaDelta(current.Pixels[i:i+3], prev.Pixels[i:i+3])
			if delta > cfg.NoiseFloor {
				changedPixels++
				bx, by := x/BlockSize, y/BlockSize
				blockChanged[by*cols+bx] = true
			}
		}
	}

	var pct float32
	if totalPixels > 0 {
		pct = float32(float64(changedPixels) / float64(totalPixels))
	}

	regions := make([]model.Rect, 0)
	for by := 0; by < rows; by++ {
		for bx := 0; bx < cols; bx++ {
			if !blockChanged[by*cols+bx] {
				continue
			}
			x0 := bx * BlockSize
			y0 := by * BlockSize
			x1 := min(x0+BlockSize, w)
			y1 := min(y0+BlockSize, h)
			regions = append(regions, model.Rect{
				X0: float64(x0), Y0: float64(y0), X1: float64(x1), Y1: float64(y1),
			})
		}
	}

	return model.ChangeResult{ChangePercentage: pct, ChangedRegions: regions}
}

func lumaDelta(a, b []byte) float64 {
	la := 0.299*float64(a[0]) + 0.587*float64(a[1]) + 0.114*float64(a[2])
	lb := 0.299*float64(b[0]) + 0.587*float64(b[1]) + 0.114*float64(b[2])
	d := la - lb
	if d < 0 {
		return -d
	}
	return d
}
