package capture

import (
	"context"
	"time"

	"scanlate/pkg/model"
)

// FakeDriver serves a scripted sequence of frames, used by pipeline and
// orchestrator tests that must run deterministically without real capture
// hardware (teacher equivalent: pkg/capture/uia/property_test.go's
// in-process fakes standing in for COM calls).
type FakeDriver struct {
	Frames []FakeFrame
	calls  int
}

// FakeFrame describes one scripted Capture response.
type FakeFrame struct {
	Pixels                        []byte
	Width, Height                 int
	OriginalWidth, OriginalHeight int
	Err                           error
}

// Capture returns the next scripted frame, repeating the last entry once
// the script is exhausted.
func (f *FakeDriver) Capture(ctx context.Context, target Target) (*model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.Frames) == 0 {
		return nil, model.New(model.ErrBadInput, "capture", "fake driver has no scripted frames", nil)
	}
	idx := f.calls
	if idx >= len(f.Frames) {
		idx = len(f.Frames) - 1
	}
	f.calls++

	ff := f.Frames[idx]
	if ff.Err != nil {
		return nil, ff.Err
	}
	return model.NewFrame(ff.Pixels, ff.Width, ff.Height, ff.OriginalWidth, ff.OriginalHeight, target.WindowHandle, time.Now()), nil
}

// Calls reports how many times Capture has been invoked.
func (f *FakeDriver) Calls() int { return f.calls }
