package ocrfacade

import (
	"context"
	"sync"
	"sync/atomic"

	"scanlate/pkg/model"
)

// Stub is an in-process Engine used by tests and by pkg/orchestrator's
// fake-harness scenarios, standing in for the real named-pipe OCR process
// the same way the teacher's property tests stand in COM calls behind
// in-process fakes (pkg/capture/uia/property_test.go).
type Stub struct {
	// Regions, if set, is returned (wrapped in a single chunk) from every
	// Recognize call. Script, if set, takes priority and is consumed in
	// order.
	Regions []model.TextRegion
	Script  []StubResult

	initialized atomic.Bool
	calls       atomic.Int64
	mu          sync.Mutex
	cancelled   bool
}

// StubResult scripts one Recognize response.
type StubResult struct {
	Regions []model.TextRegion
	Err     error
}

func (s *Stub) Initialize(ctx context.Context) error {
	s.initialized.Store(true)
	return nil
}

func (s *Stub) ApplySettings(Settings) error { return nil }

func (s *Stub) Recognize(ctx context.Context, frame *model.Frame, roi *model.Rect) (model.OcrResult, error) {
	idx := int(s.calls.Add(1)) - 1

	if idx < len(s.Script) {
		step := s.Script[idx]
		if step.Err != nil {
			return model.OcrResult{}, step.Err
		}
		return s.resultFor(step.Regions, frame, roi), nil
	}

	if err := ctx.Err(); err != nil {
		return model.OcrResult{}, model.OcrErr(model.OcrCancelled, "stub recognize cancelled", err)
	}
	return s.resultFor(s.Regions, frame, roi), nil
}

func (s *Stub) resultFor(regions []model.TextRegion, frame *model.Frame, roi *model.Rect) model.OcrResult {
	if len(regions) == 0 {
		return model.OcrResult{}
	}
	chunk := model.NewTextChunk(0, frame.WindowHandle, roi, regions)
	return model.OcrResult{Chunks: []model.TextChunk{chunk}}
}

func (s *Stub) CancelCurrentTimeout() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

func (s *Stub) EngineName() string { return "stub" }

func (s *Stub) IsInitialized() bool { return s.initialized.Load() }

// Calls reports how many times Recognize has been invoked.
func (s *Stub) Calls() int64 { return s.calls.Load() }
