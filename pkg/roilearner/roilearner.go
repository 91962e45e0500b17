// Package roilearner implements C5: a fire-and-forget sink recording where
// text was detected, so future captures of the same window (or similarly
// titled windows of the same application) can restrict capture to a
// learned region of interest instead of the full window.
//
// Persistence is supplemented beyond spec.md's bare sink contract (spec.md
// only requires accept-and-swallow-errors) using philippgille/chromem-go,
// the same pure-Go vector database the teacher uses for its session
// embedding store (pkg/storage/vector_manager.go), repurposed here to hold
// a small deterministic title feature vector per window instead of an
// Ollama-generated semantic embedding — ROI learning must stay usable with
// no network/model dependency, and a hashed-trigram vector is enough to
// find "the same kind of window" across re-opens with a slightly different
// title (a new document name, a new tab).
package roilearner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"scanlate/pkg/model"
)

const (
	collectionName = "roi_positions"
	vectorDims     = 64
	// matchSimilarity is the minimum cosine similarity for a
	// nearest-neighbor title match to be trusted as "the same kind of
	// window" when no exact window-handle record exists.
	matchSimilarity = 0.82
)

// Learner is the ROI sink. The zero value is not usable; construct with New.
type Learner struct {
	db         *chromem.DB
	collection *chromem.Collection
	log        *slog.Logger
}

// New opens (or creates) a persistent chromem-go store under dataDir.
func New(dataDir string, log *slog.Logger) (*Learner, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dataDir, "roi"), false)
	if err != nil {
		return nil, fmt.Errorf("roilearner: failed to open vector store: %w", err)
	}

	noopEmbed := chromem.EmbeddingFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("roilearner: embeddings are always precomputed, embedding func should not run")
	})
	collection, err := db.GetOrCreateCollection(collectionName, nil, noopEmbed)
	if err != nil {
		return nil, fmt.Errorf("roilearner: failed to open collection: %w", err)
	}

	return &Learner{db: db, collection: collection, log: log}, nil
}

// Record stores the hull of normalizedRects as the learned ROI for this
// window, keyed by window handle. It is fire-and-forget: it returns at once
// and does the store write in its own goroutine; failures are logged and
// swallowed, per spec.md §4.4.
func (l *Learner) Record(windowHandle uintptr, windowTitle, executablePath string, normalizedRects []model.Rect, changedRegions []model.Rect) {
	if l == nil || len(normalizedRects) == 0 {
		return
	}
	go func() {
		if err := l.record(windowHandle, windowTitle, executablePath, normalizedRects); err != nil {
			l.log.Debug("roilearner: record failed, swallowed", "error", err, "window_handle", windowHandle)
		}
	}()
}

func (l *Learner) record(windowHandle uintptr, windowTitle, executablePath string, normalizedRects []model.Rect) error {
	hull := model.Hull(normalizedRects)
	vec := titleVector(windowTitle)
	docID := strconv.FormatUint(uint64(windowHandle), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// chromem-go has no upsert; clear any prior record for this window
	// before adding, mirroring the teacher's UpdateEmbedding delete-then-add
	// pattern.
	_ = l.collection.Delete(ctx, nil, nil, docID)

	metadata := map[string]string{
		"window_handle":   docID,
		"window_title":    windowTitle,
		"executable_path": executablePath,
		"rect_x0":         strconv.FormatFloat(hull.X0, 'f', -1, 64),
		"rect_y0":         strconv.FormatFloat(hull.Y0, 'f', -1, 64),
		"rect_x1":         strconv.FormatFloat(hull.X1, 'f', -1, 64),
		"rect_y1":         strconv.FormatFloat(hull.Y1, 'f', -1, 64),
		"updated_at":      time.Now().UTC().Format(time.RFC3339),
	}

	return l.collection.Add(ctx, []string{docID}, [][]float32{vec}, []map[string]string{metadata}, []string{""})
}

// SuggestROI looks up a previously learned region of interest for
// windowHandle. If no exact record exists, it falls back to a
// nearest-neighbor match on windowTitle's feature vector across all
// recorded windows, accepting the match only above matchSimilarity.
func (l *Learner) SuggestROI(windowHandle uintptr, windowTitle string) (*model.Rect, bool) {
	if l == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	docID := strconv.FormatUint(uint64(windowHandle), 10)
	if exact, ok := l.queryExact(ctx, docID); ok {
		return exact, true
	}

	vec := titleVector(windowTitle)
	results, err := l.collection.QueryEmbedding(ctx, vec, 1, nil, nil)
	if err != nil || len(results) == 0 {
		return nil, false
	}
	best := results[0]
	if best.Similarity < matchSimilarity {
		return nil, false
	}
	return rectFromMetadata(best.Metadata)
}

func (l *Learner) queryExact(ctx context.Context, docID string) (*model.Rect, bool) {
	// The where filter narrows to at most one document for this window
	// handle, so the query vector itself is irrelevant to the outcome; any
	// non-zero vector keeps the similarity computation well-defined.
	results, err := l.collection.QueryEmbedding(ctx, titleVector(docID), 1, map[string]string{"window_handle": docID}, nil)
	if err != nil || len(results) == 0 {
		return nil, false
	}
	return rectFromMetadata(results[0].Metadata)
}

func rectFromMetadata(meta map[string]string) (*model.Rect, bool) {
	x0, err1 := strconv.ParseFloat(meta["rect_x0"], 64)
	y0, err2 := strconv.ParseFloat(meta["rect_y0"], 64)
	x1, err3 := strconv.ParseFloat(meta["rect_x1"], 64)
	y1, err4 := strconv.ParseFloat(meta["rect_y1"], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil, false
	}
	r := model.Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
	return &r, true
}

// titleVector builds a deterministic, L2-normalized character-trigram
// hashed feature vector from a window title, giving similarly themed
// titles ("Report Draft.docx - Word", "Report Final.docx - Word") a high
// cosine similarity without running any ML model.
func titleVector(title string) []float32 {
	vec := make([]float32, vectorDims)
	lower := strings.ToLower(strings.TrimSpace(title))
	runes := []rune(lower)
	if len(runes) < 3 {
		return vec
	}
	for i := 0; i+2 < len(runes); i++ {
		trigram := string(runes[i : i+3])
		h := fnv32(trigram)
		vec[h%vectorDims] += 1
	}
	normalize(vec)
	return vec
}

func fnv32(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
