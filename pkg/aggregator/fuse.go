package aggregator

import (
	"github.com/samber/lo"

	"scanlate/pkg/model"
)

// IoUMatchThreshold is the minimum intersection-over-union for a cloud
// translation's mapped bounds to be considered "the same chunk" as a local
// OCR detection, per spec.md §4.8.
const IoUMatchThreshold = 0.4

// candidate pairs a chunk's index with its IoU against one cloud span, used
// to find the best unmatched chunk for that span without mutating chunks
// mid-scan.
type candidate struct {
	index int
	iou   float64
}

// FuseCloudTranslations maps each cloud-normalized (0-1000 scale) span in
// resp into pixel space of imgCtx's original dimensions, then attaches its
// translated text to the nearest-matching local chunk by IoU (>=
// IoUMatchThreshold). A cloud span with no sufficiently overlapping local
// chunk becomes a synthetic chunk carrying only the cloud-derived bounds
// and translation, per spec.md §4.8. ids mints the synthetic chunks' IDs
// from the shared process-wide counter so they remain globally unique.
func FuseCloudTranslations(chunks []model.TextChunk, resp *model.CloudTranslationResponse, imgCtx model.ImageContext, ids *model.ChunkIDGenerator) []model.TextChunk {
	if resp == nil || len(resp.Translations) == 0 {
		return chunks
	}

	out := append([]model.TextChunk(nil), chunks...)
	matched := make([]bool, len(out))

	for _, span := range resp.Translations {
		pixelBounds := model.Normalized0To1000ToPixels(span.BoundsNorm1000, imgCtx.OriginalWidth, imgCtx.OriginalHeight)

		unmatchedIdx := lo.Filter(lo.Range(len(out)), func(i int, _ int) bool {
			return !matched[i]
		})
		candidates := lo.FilterMap(unmatchedIdx, func(i int, _ int) (candidate, bool) {
			iou := out[i].CombinedBounds.IoU(pixelBounds)
			return candidate{index: i, iou: iou}, iou >= IoUMatchThreshold
		})

		if len(candidates) > 0 {
			best := lo.MaxBy(candidates, func(a, b candidate) bool { return a.iou > b.iou })
			out[best.index].TranslatedText = span.Text
			matched[best.index] = true
			continue
		}

		out = append(out, model.TextChunk{
			ChunkID:        ids.Next(),
			CombinedText:   span.Text,
			CombinedBounds: pixelBounds,
			TranslatedText: span.Text,
		})
	}

	return out
}
