// Package pipeline implements C10: the Capture -> ChangeDetect -> OCR stage
// machine. It is the direct generalization of the teacher's
// etwEventProcessor -> uiaProcessor -> ocrBatchProcessor staged hand-off
// (pkg/pipeline's original Pipeline type): the same "each stage decides
// whether to continue, the next stage never runs otherwise" shape, stages
// renamed and re-wired to the spec's Capture/ChangeDetect/OCR sequence
// instead of ETW/UIA/OCR-batch. Aggregate is deliberately left out of this
// stage machine: spec.md §4.10 applies the text-change gate between OCR
// completing and chunks being fed to the aggregator, so pkg/orchestrator
// drives that hand-off itself rather than this package assuming the gate
// always passes.
package pipeline

import (
	"context"

	"scanlate/pkg/capture"
	"scanlate/pkg/changedetect"
	"scanlate/pkg/model"
)

// Recognizer is the subset of ocrfacade.Facade the stage machine needs,
// kept as a function type so tests can substitute a scripted recognizer
// without standing up a full Facade.
type Recognizer func(ctx context.Context, frame *model.Frame, roi *model.Rect) (model.OcrResult, error)

// Deps bundles the external collaborators one stage-machine run needs.
type Deps struct {
	Capture      capture.Driver
	ChangeDetect changedetect.Config
	Recognize    Recognizer
	// OnStable, when set, runs once change-detection has decided OCR
	// should proceed, before Recognize is called. This lets a caller
	// start independent work (the cloud fork-join child, C8) so it
	// overlaps with OCR latency instead of paying for it serially.
	OnStable func(frame *model.Frame, change model.ChangeResult)
}

// Run executes Capture -> ChangeDetect -> OCR for one iteration and
// returns the captured frame alongside the stage result. Callers own the
// returned Frame and must Release it once done (including when Release was
// not already implied by a transfer to a downstream event).
//
// prevFrame is the previous accepted frame for the same window (nil on the
// first iteration for a window, or after reset_state()). If prevFrame is
// non-nil and no pixel's luma delta exceeds the change detector's noise
// floor (ChangePercentage == 0), the OCR stage is skipped and the result reports EarlyTerminated, per
// spec.md §4.10 step 3 ("on no change return early").
//
// preExecutedOcr lets a caller skip re-running OCR when capture already
// produced a result for this frame (spec.md §3's PipelineInput.pre_executed_ocr).
func Run(ctx context.Context, deps Deps, target capture.Target, prevFrame *model.Frame, preExecutedOcr *model.OcrResult) (model.PipelineResult, *model.Frame, error) {
	frame, err := deps.Capture.Capture(ctx, target)
	if err != nil {
		return model.PipelineResult{ShouldContinue: false}, nil, err
	}

	change := changedetect.Detect(frame, prevFrame, deps.ChangeDetect)
	result := model.PipelineResult{
		ImageChange:        &change,
		LastCompletedStage: model.StageChangeDetect,
		ShouldContinue:     true,
	}

	if prevFrame != nil && change.ChangePercentage == 0 {
		result.ShouldContinue = false
		result.EarlyTerminated = true
		return result, frame, nil
	}

	if deps.OnStable != nil {
		deps.OnStable(frame, change)
	}

	var ocrResult model.OcrResult
	if preExecutedOcr != nil {
		ocrResult = *preExecutedOcr
	} else {
		ocrResult, err = deps.Recognize(ctx, frame, target.ROI)
		if err != nil {
			result.ShouldContinue = false
			return result, frame, err
		}
	}

	result.OcrResult = &ocrResult
	result.OcrResultText = ocrResult.CombinedText()
	result.LastCompletedStage = model.StageOcr
	result.ShouldContinue = true
	return result, frame, nil
}
