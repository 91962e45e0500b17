package capture

import (
	"context"
	"fmt"
	"image"
	"syscall"
	"time"
	"unsafe"

	"github.com/kbinani/screenshot"

	"scanlate/pkg/model"
)

var (
	user32            = syscall.NewLazyDLL("user32.dll")
	procGetWindowRect = user32.NewProc("GetWindowRect")
)

type winRect struct {
	Left, Top, Right, Bottom int32
}

// WindowsDriver captures window or screen pixels via the Win32 API and
// kbinani/screenshot, generalized from the teacher's
// pkg/capture/screenshot.go (SaveActiveWindow) into the Driver interface:
// instead of encoding to a PNG file, it hands back an in-memory RGBA Frame
// for the pipeline to consume directly.
type WindowsDriver struct{}

// NewWindowsDriver constructs the default capture driver.
func NewWindowsDriver() *WindowsDriver {
	return &WindowsDriver{}
}

// Capture acquires a Frame for target. ctx is checked before the (fast,
// synchronous) Win32 call runs; screenshot acquisition itself has no
// cancellable suspension point on Windows, so ctx is not threaded further.
func (d *WindowsDriver) Capture(ctx context.Context, target Target) (*model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var bounds image.Rectangle
	if target.WindowHandle != 0 {
		r, err := getWindowRect(target.WindowHandle)
		if err != nil {
			return nil, model.New(model.ErrExternalUnavailable, "capture", "failed to get window rect", err)
		}
		bounds = r
	} else {
		bounds = screenshot.GetDisplayBounds(0)
	}

	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, model.New(model.ErrBadInput, "capture", fmt.Sprintf("invalid capture bounds %dx%d", bounds.Dx(), bounds.Dy()), nil)
	}

	captureBounds := bounds
	var roi *model.Rect
	if target.ROI != nil && !target.ROI.Empty() {
		roi = target.ROI
		captureBounds = image.Rect(
			bounds.Min.X+int(roi.X0),
			bounds.Min.Y+int(roi.Y0),
			bounds.Min.X+int(roi.X1),
			bounds.Min.Y+int(roi.Y1),
		).Intersect(bounds)
	}

	img, err := screenshot.CaptureRect(captureBounds)
	if err != nil {
		return nil, model.New(model.ErrExternalUnavailable, "capture", "screen capture failed", err)
	}

	frame := model.NewFrame(
		[]byte(img.Pix),
		img.Rect.Dx(), img.Rect.Dy(),
		bounds.Dx(), bounds.Dy(),
		target.WindowHandle,
		time.Now(),
	)
	frame.CaptureRegion = roi
	return frame, nil
}

func getWindowRect(hwnd uintptr) (image.Rectangle, error) {
	var rect winRect
	ret, _, _ := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&rect)))
	if ret == 0 {
		return image.Rectangle{}, fmt.Errorf("GetWindowRect failed for handle %d", hwnd)
	}
	return image.Rect(int(rect.Left), int(rect.Top), int(rect.Right), int(rect.Bottom)), nil
}
