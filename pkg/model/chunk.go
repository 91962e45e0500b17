package model

import "sync/atomic"

// TextRegion is a single OCR detection: text plus its pixel-space bounds in
// original-window coordinates, a confidence score, and the detected
// language (when the OCR engine reports one).
type TextRegion struct {
	Text             string
	Bounds           Rect
	Confidence       float64 // [0, 1]
	DetectedLanguage string
}

// TextChunk is a bounded text region produced by OCR, carrying pixel-space
// bounds and a monotonic identifier. CombinedBounds is always the axis-
// aligned hull of Regions[].Bounds; ChunkID is unique across the process
// lifetime (see ChunkIDGenerator).
type TextChunk struct {
	ChunkID            uint64
	CombinedText       string
	CombinedBounds     Rect
	SourceWindowHandle uintptr
	CaptureRegion      *Rect
	Regions            []TextRegion
	TranslatedText     string // late-filled by the fork-join/aggregator stage
}

// NewTextChunk builds a TextChunk from its regions, computing CombinedBounds
// as their hull and CombinedText by joining region text with a single
// space, preserving caller-supplied (already spatially sorted) order.
func NewTextChunk(id uint64, windowHandle uintptr, captureRegion *Rect, regions []TextRegion) TextChunk {
	bounds := make([]Rect, len(regions))
	text := ""
	for i, r := range regions {
		bounds[i] = r.Bounds
		if i > 0 {
			text += " "
		}
		text += r.Text
	}
	return TextChunk{
		ChunkID:            id,
		CombinedText:       text,
		CombinedBounds:     Hull(bounds),
		SourceWindowHandle: windowHandle,
		CaptureRegion:      captureRegion,
		Regions:            regions,
	}
}

// ChunkIDGenerator hands out globally unique, monotonically increasing
// chunk IDs for the lifetime of the process. It backs
// OrchestratorState.next_chunk_id from the data model.
type ChunkIDGenerator struct {
	counter atomic.Uint64
}

// Next returns the next chunk ID. IDs start at 1 so the zero value can be
// used as an "unset" sentinel.
func (g *ChunkIDGenerator) Next() uint64 {
	return g.counter.Add(1)
}

// OcrResult is an ordered sequence of chunks, sorted top-to-bottom then
// left-to-right by CombinedBounds, as guaranteed by the OCR facade.
type OcrResult struct {
	Chunks []TextChunk
}

// CombinedText concatenates all chunk text in order, used by the
// text-change gate and previous_ocr_text_cache.
func (o OcrResult) CombinedText() string {
	text := ""
	for i, c := range o.Chunks {
		if i > 0 {
			text += " "
		}
		text += c.CombinedText
	}
	return text
}
