package orchestrator

import (
	"context"
	"testing"
	"time"

	"scanlate/pkg/capture"
	"scanlate/pkg/model"
	"scanlate/pkg/ocrfacade"
)

func regions(text string) []model.TextRegion {
	return []model.TextRegion{{Text: text, Bounds: model.Rect{X0: 1, Y0: 1, X1: 50, Y1: 20}, Confidence: 0.9}}
}

// Scenario: a stable screen with no changes runs OCR once on the first
// frame and never again while the screen stays pixel-identical.
func TestScenario_StableScreenNoChanges(t *testing.T) {
	h := newHarness(false, nil, "")
	defer h.close()
	h.drv.Frames = []capture.FakeFrame{solidFakeFrame(8, 8, 64)}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := h.orch.iterate(ctx, testWindow, model.ModeLive); err != nil {
			t.Fatalf("iterate #%d: %v", i, err)
		}
	}

	if got := h.stub.Calls(); got != 1 {
		t.Fatalf("OCR calls = %d, want 1 (subsequent frames are pixel-identical)", got)
	}
	if _, ok := waitFor(h.ready, 50*time.Millisecond); ok {
		t.Fatal("no AggregatedChunksReady expected: the stub returned no regions")
	}
}

// Scenario: a text change across two captures passes the gate, and the
// aggregator's time trigger publishes a translated batch once its window
// elapses, through the local engine since no cloud client is entitled.
func TestScenario_TextChangeTriggersAggregationAndLocalTranslation(t *testing.T) {
	h := newHarness(false, nil, "translated text")
	defer h.close()
	h.drv.Frames = []capture.FakeFrame{
		solidFakeFrame(8, 8, 10),
		solidFakeFrame(8, 8, 220),
	}
	h.stub.Script = []ocrfacade.StubResult{
		{Regions: regions("hello there friend")},
		{Regions: regions("goodbye now stranger")},
	}

	ctx := context.Background()
	if err := h.orch.iterate(ctx, testWindow, model.ModeLive); err != nil {
		t.Fatalf("first iterate: %v", err)
	}
	time.Sleep(350 * time.Millisecond)
	if err := h.orch.iterate(ctx, testWindow, model.ModeLive); err != nil {
		t.Fatalf("second iterate: %v", err)
	}

	ready, ok := waitFor(h.ready, time.Second)
	if !ok {
		t.Fatal("expected an AggregatedChunksReady event once the aggregation window elapsed")
	}
	if len(ready.Chunks) == 0 {
		t.Fatal("expected at least one aggregated chunk")
	}

	xlated, ok := waitFor(h.xlated, time.Second)
	if !ok {
		t.Fatal("expected a TranslationWithBoundsCompleted event via the local engine")
	}
	if xlated.TranslatedText != "translated text" {
		t.Fatalf("TranslatedText = %q, want the local engine's reply", xlated.TranslatedText)
	}
}

// Scenario: the Fork-Join coordinator resolves a second identical image
// from cache rather than re-calling the cloud endpoint.
func TestScenario_ForkJoinCacheHit(t *testing.T) {
	h := newHarness(true, []cloudWireSpan{{Text: "cloud span", X0: 0, Y0: 0, X1: 100, Y1: 100, Confidence: 0.9}}, "")
	defer h.close()

	frame := model.NewFrame(make([]byte, 8*8*4), 8, 8, 8, 8, testWindow, time.Now())
	defer frame.Release()

	ctx := context.Background()
	first, _ := h.orch.startCloudTask(ctx, testWindow, frame)
	if !first.Spawned {
		t.Fatal("first call with an uncached image should spawn a cloud task")
	}
	if _, ok := first.Await(ctx); !ok {
		t.Fatal("expected the spawned cloud task to succeed")
	}

	second, _ := h.orch.startCloudTask(ctx, testWindow, frame)
	if !second.CacheHit {
		t.Fatal("second call with the same image bytes should resolve from cache")
	}
	if got := h.cloud.calls.Load(); got != 1 {
		t.Fatalf("cloud endpoint calls = %d, want 1 (second lookup should be a cache hit)", got)
	}
}

// Scenario: a screen transition (cut-scene) drives the change percentage
// above the stabilization threshold; translations are suppressed until it
// settles back at or below the recovery threshold.
func TestScenario_ScreenTransitionStabilization(t *testing.T) {
	h := newHarness(false, nil, "")
	defer h.close()

	active, suppress := nextStabilization(false, 0.10, 0.50, 0.35)
	if active || suppress {
		t.Fatal("a small change should never enter the unstable state")
	}

	active, suppress = nextStabilization(active, 0.70, 0.50, 0.35)
	if !active || !suppress {
		t.Fatal("a change above the high threshold should enter the unstable state and suppress")
	}

	active, suppress = nextStabilization(active, 0.40, 0.50, 0.35)
	if !active || !suppress {
		t.Fatal("while unstable, a change still above the recovery threshold should keep suppressing")
	}

	active, suppress = nextStabilization(active, 0.35, 0.50, 0.35)
	if active || suppress {
		t.Fatal("a change at or below the recovery threshold should clear the unstable state")
	}
	_ = h
}

// Scenario: a transient OCR error (e.g. a PaddlePredictor failure) is
// surfaced as a transient error, its first occurrence on the backoff ladder
// adds 500ms without skipping, and the engine recovers on the next call.
func TestScenario_OcrTransientErrorThenRecovery(t *testing.T) {
	h := newHarness(false, nil, "")
	defer h.close()
	h.drv.Frames = []capture.FakeFrame{
		solidFakeFrame(8, 8, 10),
		solidFakeFrame(8, 8, 240),
	}
	h.stub.Script = []ocrfacade.StubResult{
		{Err: model.OcrErr(model.OcrPaddlePredictor, "inference crashed", nil)},
		{Regions: regions("recovered text")},
	}

	ctx := context.Background()
	err := h.orch.iterate(ctx, testWindow, model.ModeLive)
	if err == nil {
		t.Fatal("expected the first iteration to surface the OCR error")
	}
	if !model.IsTransient(err) {
		t.Fatalf("expected a transient error, got %v", err)
	}

	extra, skip := h.orch.backoff.Observe(errorSignature(err), time.Now())
	if extra != 500*time.Millisecond || skip {
		t.Fatalf("first occurrence: extra=%v skip=%v, want 500ms/false", extra, skip)
	}

	if err := h.orch.iterate(ctx, testWindow, model.ModeLive); err != nil {
		t.Fatalf("second iteration should recover: %v", err)
	}
}

// Scenario: stopping the orchestrator while OCR is in flight returns
// within the stop grace period instead of blocking indefinitely.
func TestScenario_StopDuringInFlightOcrReturnsPromptly(t *testing.T) {
	h := newHarness(false, nil, "")
	defer h.close()
	h.drv.Frames = []capture.FakeFrame{solidFakeFrame(8, 8, 10)}

	blocking := newBlockingEngine()
	h.orch.facade = ocrfacade.New(blocking, h.orch.ids)

	if err := h.orch.Start(context.Background(), testWindow); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-blocking.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("OCR never started")
	}

	start := time.Now()
	if err := h.orch.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > stopGracePeriod+time.Second {
		t.Fatalf("Stop took %v, want at most ~%v", elapsed, stopGracePeriod)
	}
	if got := h.orch.State(); got != StateStopped {
		t.Fatalf("state = %v, want Stopped", got)
	}
}
