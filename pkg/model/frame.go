package model

import (
	"sync"
	"time"
)

// TranslationMode selects the orchestrator's operating mode.
type TranslationMode int

const (
	// ModeLive loops continuously at a configurable interval.
	ModeLive TranslationMode = iota
	// ModeSingleShot runs exactly one iteration and bypasses the
	// text-change gate and screen stabilization.
	ModeSingleShot
)

func (m TranslationMode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeSingleShot:
		return "single_shot"
	default:
		return "unknown"
	}
}

// Frame is an immutable handle owning captured pixel data. A Frame is owned
// by exactly one orchestrator iteration at a time and must be released
// exactly once: either the iteration returns it via Release, or ownership is
// transferred to a downstream "ready" event whose consumer releases it.
// Double-release is a no-op, matching the teardown idempotence the rest of
// the pipeline relies on.
type Frame struct {
	Pixels []byte // raw RGBA bytes, row-major, Width*Height*4

	Width, Height                 int
	OriginalWidth, OriginalHeight int

	CaptureRegion *Rect // nil when the capture was not ROI-restricted
	WindowHandle  uintptr
	CapturedAt    time.Time

	once     sync.Once
	released bool
	mu       sync.Mutex
}

// NewFrame constructs a Frame taking ownership of pixels.
func NewFrame(pixels []byte, width, height, originalWidth, originalHeight int, windowHandle uintptr, capturedAt time.Time) *Frame {
	return &Frame{
		Pixels:         pixels,
		Width:          width,
		Height:         height,
		OriginalWidth:  originalWidth,
		OriginalHeight: originalHeight,
		WindowHandle:   windowHandle,
		CapturedAt:     capturedAt,
	}
}

// Release frees the frame's backing pixels. Idempotent: a second call is a
// silent no-op, so callers on every exit path (including error paths) can
// defer Release without tracking whether an earlier path already did.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.once.Do(func() {
		f.mu.Lock()
		f.released = true
		f.Pixels = nil
		f.mu.Unlock()
	})
}

// Released reports whether Release has already run.
func (f *Frame) Released() bool {
	if f == nil {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}
