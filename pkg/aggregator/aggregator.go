// Package aggregator implements C9: buffering OCR chunks for a short
// window per source window, merging them into one "ready" event once a
// size or time trigger fires, and attaching whatever fork-join cloud
// result arrived for that window in the meantime. It owns no cross-window
// state beyond a map keyed by window handle; each window's buffer is
// independent, matching the teacher's per-session buffering shape in
// pkg/pipeline.Pipeline's ocrBatchProcessor (batch-or-timeout flush),
// generalized from a fixed ETW/OCR batch loop into an explicit poll API the
// orchestrator drives once per iteration.
package aggregator

import (
	"sync"
	"sync/atomic"
	"time"

	"scanlate/pkg/model"
)

// Config parameterizes the two triggers from spec.md §4.8.
type Config struct {
	// MaxPending is the size trigger: once a window's pending buffer
	// reaches this many chunks, the next TryAddBatch that would cross it
	// fires implicitly on the following PollTrigger call.
	MaxPending int
	// Window is the time trigger: once Window has elapsed since the
	// buffer's OpenSince, PollTrigger fires even with fewer than
	// MaxPending chunks pending.
	Window time.Duration
}

// DefaultConfig returns the documented defaults: a 300ms aggregation
// window (spec.md §4.8) and an 8-chunk size trigger (the spec does not fix
// N; 8 is chosen so a busy screen doesn't hold chunks past one dialogue
// box's worth of lines before flushing).
func DefaultConfig() Config {
	return Config{MaxPending: 8, Window: 300 * time.Millisecond}
}

type windowState struct {
	mu        sync.Mutex
	pending   []model.TextChunk
	openSince time.Time
	open      bool
	cloud     *model.CloudTranslationResult
	mode      model.TranslationMode
	dropped   atomic.Int64
}

// Aggregator buffers chunks per window handle and decides when an
// AggregatedChunksReady event should fire.
type Aggregator struct {
	cfg Config
	ids *model.ChunkIDGenerator

	mu      sync.Mutex
	windows map[uintptr]*windowState
}

// New constructs an Aggregator with the given config. ids is the shared
// process-wide chunk ID generator (spec.md §3's next_chunk_id), used only
// to mint IDs for synthetic chunks that fusion creates for unmatched cloud
// translations.
func New(cfg Config, ids *model.ChunkIDGenerator) *Aggregator {
	return &Aggregator{cfg: cfg, ids: ids, windows: make(map[uintptr]*windowState)}
}

func (a *Aggregator) windowFor(w uintptr) *windowState {
	a.mu.Lock()
	defer a.mu.Unlock()
	ws, ok := a.windows[w]
	if !ok {
		ws = &windowState{}
		a.windows[w] = ws
	}
	return ws
}

// TryAddBatch appends chunks to window w's pending buffer, accepting as
// many as fit under cfg.MaxPending and dropping the rest (incrementing the
// per-window dropped counter, never returning an error), per spec.md
// §4.8's backpressure rule. It returns the number actually accepted. The
// buffer's OpenSince is stamped with now on the first chunk added to an
// otherwise-empty buffer.
func (a *Aggregator) TryAddBatch(w uintptr, chunks []model.TextChunk, now time.Time) int {
	if len(chunks) == 0 {
		return 0
	}
	ws := a.windowFor(w)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.open {
		ws.openSince = now
		ws.open = true
	}

	room := a.cfg.MaxPending - len(ws.pending)
	if room < 0 {
		room = 0
	}
	accept := len(chunks)
	if accept > room {
		accept = room
	}
	ws.pending = append(ws.pending, chunks[:accept]...)
	if dropped := len(chunks) - accept; dropped > 0 {
		ws.dropped.Add(int64(dropped))
	}
	return accept
}

// SetPrecomputedCloud attaches a fork-join cloud result to window w's
// in-progress aggregation, so it rides along on the next trigger even
// though it arrived asynchronously mid-window.
func (a *Aggregator) SetPrecomputedCloud(w uintptr, cloud *model.CloudTranslationResult) {
	ws := a.windowFor(w)
	ws.mu.Lock()
	ws.cloud = cloud
	ws.mu.Unlock()
}

// SetMode records the current translation mode for window w, carried into
// the next AggregatedChunksReady event.
func (a *Aggregator) SetMode(w uintptr, mode model.TranslationMode) {
	ws := a.windowFor(w)
	ws.mu.Lock()
	ws.mode = mode
	ws.mu.Unlock()
}

// ShouldTrigger reports whether window w's buffer should flush right now,
// without mutating state. The orchestrator uses this to decide whether to
// wait for more chunks before building the ready event.
func (a *Aggregator) ShouldTrigger(w uintptr, now time.Time) bool {
	ws := a.windowFor(w)
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.triggerLocked(a.cfg, now)
}

func (ws *windowState) triggerLocked(cfg Config, now time.Time) bool {
	if !ws.open || len(ws.pending) == 0 {
		return false
	}
	if len(ws.pending) >= cfg.MaxPending {
		return true
	}
	return now.Sub(ws.openSince) >= cfg.Window
}

// PollTrigger fires window w's aggregation if its size or time trigger has
// been met, building the AggregatedChunksReady event and resetting the
// window's buffer. Because the orchestrator calls PollTrigger from a
// single loop goroutine, successive calls across iterations naturally
// preserve trigger order, satisfying spec.md §5's "events emit in trigger
// order" guarantee without an explicit sequence number.
func (a *Aggregator) PollTrigger(w uintptr, now time.Time, imgCtx model.ImageContext) (model.AggregatedChunksReady, bool) {
	ws := a.windowFor(w)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.triggerLocked(a.cfg, now) {
		return model.AggregatedChunksReady{}, false
	}

	chunks := ws.pending
	cloud := ws.cloud
	mode := ws.mode

	ws.pending = nil
	ws.open = false
	ws.cloud = nil

	if cloud != nil && cloud.Success && cloud.Response != nil {
		chunks = FuseCloudTranslations(chunks, cloud.Response, imgCtx, a.ids)
	}

	event := model.AggregatedChunksReady{
		WindowHandle: w,
		Chunks:       chunks,
		Cloud:        cloud,
		ImageContext: imgCtx,
		Mode:         mode,
		PublishedAt:  now.UnixNano(),
	}
	return event, true
}

// Dropped returns the number of chunks dropped for window w due to
// backpressure (spec.md §4.8's metric, not an error path).
func (a *Aggregator) Dropped(w uintptr) int64 {
	ws := a.windowFor(w)
	return ws.dropped.Load()
}

// Reset clears every window's buffered state, called on orchestrator
// reset_state() and dispose().
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.windows = make(map[uintptr]*windowState)
}
