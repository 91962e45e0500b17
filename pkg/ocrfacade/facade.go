// Package ocrfacade implements C3: turning a frame into an ordered set of
// text chunks. The actual OCR inference is an external concern (explicitly
// out of scope); this package only defines the narrow Engine contract the
// rest of the pipeline consumes and the per-window "latest request cancels
// the previous" coordination spec.md §5 requires.
package ocrfacade

import (
	"context"
	"sort"
	"sync"

	"scanlate/pkg/model"
)

// Settings mirrors the subset of pkg/config.Settings.Ocr the engine needs
// applied before recognition, kept separate so Engine implementations never
// import pkg/config directly.
type Settings struct {
	DetectionThreshold float64
}

// Engine is the narrow interface the core consumes an OCR implementation
// through (spec.md §6). Two implementations exist: the in-process stub used
// by tests (Stub, in this package) and pipeclient.Client, which talks to
// the real engine over a local named pipe.
type Engine interface {
	Initialize(ctx context.Context) error
	ApplySettings(s Settings) error
	Recognize(ctx context.Context, frame *model.Frame, roi *model.Rect) (model.OcrResult, error)
	// CancelCurrentTimeout cancels whatever Recognize call is currently in
	// flight on this engine, if any. It is safe to call when nothing is in
	// flight.
	CancelCurrentTimeout()
	EngineName() string
	IsInitialized() bool
}

// Facade wraps an Engine with the per-window single-flight discipline: a
// new Recognize request for a window whose previous request is still
// in-flight cancels that previous request first ("latest wins"), per
// spec.md §5. Chunk IDs are assigned from a single process-wide counter so
// they are never reused.
type Facade struct {
	engine Engine
	ids    *model.ChunkIDGenerator

	mu      sync.Mutex
	inFlight map[uintptr]context.CancelFunc
}

// New wraps engine in a Facade. ids must be the same generator passed to
// aggregator.New, so real OCR chunks and synthetic cloud-fusion chunks draw
// from one process-wide counter and never collide on ChunkID.
func New(engine Engine, ids *model.ChunkIDGenerator) *Facade {
	return &Facade{
		engine:   engine,
		ids:      ids,
		inFlight: make(map[uintptr]context.CancelFunc),
	}
}

// Recognize cancels any Recognize still running for frame.WindowHandle,
// then runs a new one under ctx. Chunks in the result are assigned fresh
// ChunkIDs and sorted top-to-bottom then left-to-right by CombinedBounds,
// per spec.md §4.2's ordering guarantee.
func (f *Facade) Recognize(ctx context.Context, frame *model.Frame, roi *model.Rect) (model.OcrResult, error) {
	childCtx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	if prevCancel, ok := f.inFlight[frame.WindowHandle]; ok {
		prevCancel()
	}
	f.inFlight[frame.WindowHandle] = cancel
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		// A superseded request finds its own context already cancelled and
		// leaves the newer request's entry in place.
		if childCtx.Err() == nil {
			delete(f.inFlight, frame.WindowHandle)
		}
		f.mu.Unlock()
		cancel()
	}()

	result, err := f.engine.Recognize(childCtx, frame, roi)
	if err != nil {
		return model.OcrResult{}, err
	}

	for i := range result.Chunks {
		result.Chunks[i].ChunkID = f.ids.Next()
	}
	sortChunks(result.Chunks)
	return result, nil
}

// Initialize delegates to the wrapped engine.
func (f *Facade) Initialize(ctx context.Context) error { return f.engine.Initialize(ctx) }

// ApplySettings delegates to the wrapped engine.
func (f *Facade) ApplySettings(s Settings) error { return f.engine.ApplySettings(s) }

// EngineName delegates to the wrapped engine.
func (f *Facade) EngineName() string { return f.engine.EngineName() }

// IsInitialized delegates to the wrapped engine.
func (f *Facade) IsInitialized() bool { return f.engine.IsInitialized() }

func sortChunks(chunks []model.TextChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i].CombinedBounds, chunks[j].CombinedBounds
		if a.Y0 != b.Y0 {
			return a.Y0 < b.Y0
		}
		return a.X0 < b.X0
	})
}
