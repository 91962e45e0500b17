package aggregator

import (
	"testing"
	"time"

	"scanlate/pkg/model"
)

func chunk(id uint64, x0, y0, x1, y1 float64, text string) model.TextChunk {
	return model.TextChunk{
		ChunkID:        id,
		CombinedText:   text,
		CombinedBounds: model.Rect{X0: x0, Y0: y0, X1: x1, Y1: y1},
	}
}

func TestSizeTriggerFires(t *testing.T) {
	a := New(Config{MaxPending: 2, Window: time.Hour}, &model.ChunkIDGenerator{})
	now := time.Unix(0, 0)
	const w = uintptr(1)

	if n := a.TryAddBatch(w, []model.TextChunk{chunk(1, 0, 0, 10, 10, "a")}, now); n != 1 {
		t.Fatalf("accepted = %d, want 1", n)
	}
	if a.ShouldTrigger(w, now) {
		t.Fatal("should not trigger with 1/2 pending")
	}
	if n := a.TryAddBatch(w, []model.TextChunk{chunk(2, 0, 0, 10, 10, "b")}, now); n != 1 {
		t.Fatalf("accepted = %d, want 1", n)
	}
	if !a.ShouldTrigger(w, now) {
		t.Fatal("should trigger once MaxPending reached")
	}

	event, ok := a.PollTrigger(w, now, model.ImageContext{})
	if !ok {
		t.Fatal("PollTrigger should fire")
	}
	if len(event.Chunks) != 2 {
		t.Fatalf("event has %d chunks, want 2", len(event.Chunks))
	}
	if a.ShouldTrigger(w, now) {
		t.Fatal("buffer should be empty after PollTrigger")
	}
}

func TestTimeTriggerFires(t *testing.T) {
	a := New(Config{MaxPending: 100, Window: 300 * time.Millisecond}, &model.ChunkIDGenerator{})
	start := time.Unix(0, 0)
	const w = uintptr(1)

	a.TryAddBatch(w, []model.TextChunk{chunk(1, 0, 0, 10, 10, "a")}, start)
	if a.ShouldTrigger(w, start.Add(100*time.Millisecond)) {
		t.Fatal("should not trigger before window elapses")
	}
	if !a.ShouldTrigger(w, start.Add(301*time.Millisecond)) {
		t.Fatal("should trigger once window elapses")
	}
}

func TestBackpressureDropsExcessWithoutError(t *testing.T) {
	a := New(Config{MaxPending: 2, Window: time.Hour}, &model.ChunkIDGenerator{})
	now := time.Unix(0, 0)
	const w = uintptr(1)

	n := a.TryAddBatch(w, []model.TextChunk{
		chunk(1, 0, 0, 10, 10, "a"),
		chunk(2, 0, 0, 10, 10, "b"),
		chunk(3, 0, 0, 10, 10, "c"),
	}, now)
	if n != 2 {
		t.Fatalf("accepted = %d, want 2", n)
	}
	if got := a.Dropped(w); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
}

func TestWindowsAreIndependent(t *testing.T) {
	a := New(Config{MaxPending: 1, Window: time.Hour}, &model.ChunkIDGenerator{})
	now := time.Unix(0, 0)

	a.TryAddBatch(1, []model.TextChunk{chunk(1, 0, 0, 10, 10, "a")}, now)
	if a.ShouldTrigger(2, now) {
		t.Fatal("window 2 should have no pending state from window 1's activity")
	}
	if !a.ShouldTrigger(1, now) {
		t.Fatal("window 1 should trigger")
	}
}

func TestResetClearsAllWindows(t *testing.T) {
	a := New(Config{MaxPending: 1, Window: time.Hour}, &model.ChunkIDGenerator{})
	now := time.Unix(0, 0)
	a.TryAddBatch(1, []model.TextChunk{chunk(1, 0, 0, 10, 10, "a")}, now)
	a.Reset()
	if a.ShouldTrigger(1, now) {
		t.Fatal("Reset should clear pending state")
	}
}

func TestPollTriggerAttachesPrecomputedCloudAndFuses(t *testing.T) {
	ids := &model.ChunkIDGenerator{}
	a := New(Config{MaxPending: 100, Window: time.Hour}, ids)
	now := time.Unix(0, 0)
	const w = uintptr(1)

	local := chunk(1, 10, 10, 50, 30, "hello")
	a.TryAddBatch(w, []model.TextChunk{local}, now)
	a.SetMode(w, model.ModeLive)
	a.SetPrecomputedCloud(w, &model.CloudTranslationResult{
		Success: true,
		Response: &model.CloudTranslationResponse{
			Translations: []model.CloudTranslatedSpan{
				// Normalized bounds that, mapped to a 100x100 original
				// image, land at (10,10)-(50,30): same as the local
				// chunk, so this should match rather than create a
				// synthetic chunk.
				{Text: "bonjour", BoundsNorm1000: model.Rect{X0: 100, Y0: 100, X1: 500, Y1: 300}},
			},
		},
	})

	event, ok := a.PollTrigger(w, now.Add(time.Hour), model.ImageContext{OriginalWidth: 100, OriginalHeight: 100})
	if !ok {
		t.Fatal("expected trigger to fire once time window elapses")
	}
	if len(event.Chunks) != 1 {
		t.Fatalf("expected fusion to match onto the existing chunk, got %d chunks", len(event.Chunks))
	}
	if event.Chunks[0].TranslatedText != "bonjour" {
		t.Fatalf("TranslatedText = %q, want bonjour", event.Chunks[0].TranslatedText)
	}
	if event.Mode != model.ModeLive {
		t.Fatalf("Mode = %v, want ModeLive", event.Mode)
	}
}

func TestUnmatchedCloudSpanProducesSyntheticChunk(t *testing.T) {
	ids := &model.ChunkIDGenerator{}
	chunks := []model.TextChunk{chunk(1, 0, 0, 10, 10, "near origin")}
	resp := &model.CloudTranslationResponse{
		Translations: []model.CloudTranslatedSpan{
			// Far from the only local chunk: no IoU overlap at all.
			{Text: "far away", BoundsNorm1000: model.Rect{X0: 900, Y0: 900, X1: 950, Y1: 950}},
		},
	}
	out := FuseCloudTranslations(chunks, resp, model.ImageContext{OriginalWidth: 1000, OriginalHeight: 1000}, ids)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (original + synthetic)", len(out))
	}
	synthetic := out[1]
	if synthetic.TranslatedText != "far away" || synthetic.ChunkID == 0 {
		t.Fatalf("synthetic chunk malformed: %+v", synthetic)
	}
}
