// Package capture is the narrow client to C1, the external capture driver.
// The driver itself (screen/window pixel acquisition) is out of scope for
// the orchestration core; this package only defines the interface the rest
// of the pipeline consumes and a concrete Windows implementation of it.
package capture

import (
	"context"

	"scanlate/pkg/model"
)

// Target identifies what to capture: a specific window, or the primary
// screen when WindowHandle is zero.
type Target struct {
	WindowHandle uintptr
	// ROI restricts capture to a sub-rect of the window/screen, in that
	// target's own pixel space. Nil captures the full target.
	ROI *model.Rect
}

// Driver produces a timestamped Frame from a Target. Implementations must be
// safe to call repeatedly at sub-second cadence and must respect ctx
// cancellation for any blocking acquisition step.
type Driver interface {
	Capture(ctx context.Context, target Target) (*model.Frame, error)
}
