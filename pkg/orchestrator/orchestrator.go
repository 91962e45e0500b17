// Package orchestrator implements C11: the per-window control loop that
// drives capture, change detection, OCR, the text-change gate, the cloud
// fork-join child, chunk aggregation, and translation publication through
// one coherent lifecycle. It is the direct generalization of the teacher's
// pkg/pipeline.Pipeline lifecycle (Start/Stop/Dispose over a goroutine
// running a staged loop) onto the translation domain, with the staged
// processors replaced by the C1-C10 packages this module builds.
package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bep/debounce"

	"scanlate/pkg/aggregator"
	"scanlate/pkg/capture"
	"scanlate/pkg/changedetect"
	"scanlate/pkg/cloudtranslate"
	"scanlate/pkg/config"
	"scanlate/pkg/diagnostics"
	"scanlate/pkg/eventbus"
	"scanlate/pkg/focuswatch"
	"scanlate/pkg/forkjoin"
	"scanlate/pkg/imaging"
	"scanlate/pkg/localtranslate"
	"scanlate/pkg/model"
	"scanlate/pkg/ocrfacade"
	"scanlate/pkg/pipeline"
	"scanlate/pkg/roilearner"
	"scanlate/pkg/textgate"
)

// stopGracePeriod bounds how long Stop waits for an in-flight iteration to
// observe cancellation before giving up and reporting Stopped anyway,
// per spec.md §8's "stop during in-flight OCR returns within 5s" scenario.
const stopGracePeriod = 5 * time.Second

// singleShotTimeout bounds a single TriggerSingle-initiated iteration.
const singleShotTimeout = 10 * time.Second

// triggerDebounce coalesces rapid TriggerSingle calls (e.g. several focus
// events in a row) into one iteration.
const triggerDebounce = 200 * time.Millisecond

// Dependencies bundles every external collaborator one Orchestrator needs.
// OCR is required; Cloud, Local, ROI and Focus may be nil. A nil Cloud
// never spawns the cloud child, and a nil Local publishes a failure for
// any chunk the cloud result did not translate.
type Dependencies struct {
	Capture capture.Driver
	OCR     ocrfacade.Engine
	Local   *localtranslate.Client
	Cloud   *cloudtranslate.Client
	ROI     *roilearner.Learner
	Focus   *focuswatch.Watcher

	Bus         *eventbus.Bus
	Diagnostics *diagnostics.Reporter

	SessionToken  string
	CloudEntitled bool
}

// Orchestrator drives one target window's translation loop. The zero value
// is not usable; construct with New.
type Orchestrator struct {
	deps Dependencies
	cfg  config.Settings

	facade   *ocrfacade.Facade
	fork     *forkjoin.Coordinator
	agg      *aggregator.Aggregator
	ids      *model.ChunkIDGenerator
	backoff  *backoffLadder
	debounce func(func())

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	wg     sync.WaitGroup

	window uintptr
	// windows holds cross-iteration memory per target window, keyed the
	// same way pkg/aggregator.Aggregator keys its own windowState: a
	// TriggerSingle/followFocus single-shot pass on window B must never
	// read or overwrite the Live loop's state for window A.
	windows map[uintptr]*windowMemory
}

// windowMemory is one window's slice of OrchestratorState's
// previous_ocr_text_cache, screen_stabilization_active, and cooldown/dedup
// bookkeeping (spec.md §3).
type windowMemory struct {
	prevFrame           *model.Frame
	previousOcrText     string
	stabilizationActive bool
	lastTranslatedText  string
	cooldownUntil       time.Time
}

// memoryFor returns window's memory slot, creating it on first use. Callers
// must hold o.mu.
func (o *Orchestrator) memoryFor(window uintptr) *windowMemory {
	m, ok := o.windows[window]
	if !ok {
		m = &windowMemory{}
		o.windows[window] = m
	}
	return m
}

// New constructs an Orchestrator in the Stopped state.
func New(deps Dependencies, cfg config.Settings) *Orchestrator {
	ids := &model.ChunkIDGenerator{}
	o := &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		facade:   ocrfacade.New(deps.OCR, ids),
		fork:     forkjoin.New(deps.Cloud),
		agg:      aggregator.New(aggregator.DefaultConfig(), ids),
		ids:      ids,
		backoff:  &backoffLadder{},
		debounce: debounce.New(triggerDebounce),
		state:    StateStopped,
		windows:  make(map[uintptr]*windowMemory),
	}
	if deps.Focus != nil {
		go o.followFocus(deps.Focus)
	}
	return o
}

// followFocus forwards every reported focus change as a debounced
// single-shot trigger, so switching to a newly focused window gets an
// immediate translation pass instead of waiting for the Live loop's next
// tick. Runs for the lifetime of the Orchestrator; Dispose does not close
// watcher, since a Watcher may be shared across Orchestrator instances.
func (o *Orchestrator) followFocus(watcher *focuswatch.Watcher) {
	for hwnd := range watcher.Changes() {
		o.TriggerSingle(hwnd)
	}
}

// Start transitions Stopped -> Running and begins the Live-mode loop for
// window. Starting an already-Running Orchestrator is a no-op reported as
// a debug diagnostic; starting a Disposed one returns ErrDisposed.
func (o *Orchestrator) Start(ctx context.Context, window uintptr) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateDisposed {
		return ErrDisposed
	}
	if o.state == StateRunning {
		o.deps.Diagnostics.Emit(model.PipelineDiagnostic{
			Stage:     "lifecycle",
			IsSuccess: true,
			SessionID: sessionIDFor(window),
			Severity:  model.SeverityDebug,
			Message:   "start ignored: orchestrator already running",
		})
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.window = window
	o.state = StateRunning

	o.wg.Add(1)
	go o.runLoop(runCtx, window)
	return nil
}

// TriggerSingle requests one debounced single-shot iteration for window,
// bypassing the text-change gate, screen stabilization, and cooldown
// (spec.md §4.10's SingleShot mode). Safe to call whether or not the Live
// loop is running; a no-op once Disposed.
func (o *Orchestrator) TriggerSingle(window uintptr) {
	o.debounce(func() {
		o.mu.Lock()
		disposed := o.state == StateDisposed
		o.mu.Unlock()
		if disposed {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), singleShotTimeout)
		defer cancel()
		_ = o.iterate(ctx, window, model.ModeSingleShot)
	})
}

// Stop transitions Running -> Stopping -> Stopped, cancelling the loop's
// context and waiting up to stopGracePeriod for the in-flight iteration to
// observe it. A Stop on an Orchestrator that is not Running is a no-op
// reported as a debug diagnostic.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		o.deps.Diagnostics.Emit(model.PipelineDiagnostic{
			Stage:     "lifecycle",
			IsSuccess: true,
			Severity:  model.SeverityDebug,
			Message:   "stop ignored: orchestrator not running",
		})
		return nil
	}
	o.state = StateStopping
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
	}

	o.mu.Lock()
	if o.state != StateDisposed {
		o.state = StateStopped
	}
	o.mu.Unlock()
	return nil
}

// Dispose stops the loop (if running) and permanently transitions to
// Disposed, releasing cached cross-iteration state. Idempotent.
func (o *Orchestrator) Dispose() error {
	_ = o.Stop()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateDisposed {
		return nil
	}
	o.state = StateDisposed
	for window, m := range o.windows {
		if m.prevFrame != nil {
			m.prevFrame.Release()
		}
		delete(o.windows, window)
	}
	o.fork.Reset()
	o.agg.Reset()
	o.backoff.Reset()
	return nil
}

// ResetState clears every piece of cross-iteration memory (previous frame,
// previous OCR text, stabilization, cooldown, fork-join cache, aggregator
// buffers, backoff ladder) for every window this Orchestrator has touched,
// without changing the lifecycle state, per spec.md §3's reset_state
// operation.
func (o *Orchestrator) ResetState() {
	o.mu.Lock()
	for window, m := range o.windows {
		if m.prevFrame != nil {
			m.prevFrame.Release()
		}
		delete(o.windows, window)
	}
	o.mu.Unlock()

	o.fork.Reset()
	o.agg.Reset()
	o.backoff.Reset()
}

// State reports the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) runLoop(ctx context.Context, window uintptr) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		if o.state == StateRunning || o.state == StateStopping {
			o.state = StateStopped
		}
		o.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := o.iterate(ctx, window, model.ModeLive)

		errorsObserved := false
		var extra time.Duration
		if err != nil {
			errorsObserved = true
			extra, _ = o.backoff.Observe(errorSignature(err), time.Now())
			o.deps.Diagnostics.Error(model.StageCapture, sessionIDFor(window), "iteration failed", err)
			if model.IsFatal(err) {
				return
			}
		}

		floor := o.backoff.IntervalFloor(time.Now())
		interval := o.cfg.AutoTranslationInterval(errorsObserved)
		if floor > interval {
			interval = floor
		}
		interval += extra

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// iterate runs the eleven steps of one translation round for window, per
// spec.md §4.10: cooldown check, capture+change-detect+OCR (pkg/pipeline),
// screen-stabilization hysteresis, the text-change gate, chunk aggregation
// with the fork-join cloud child folded in, translation publication with
// duplicate suppression, and ROI learning.
func (o *Orchestrator) iterate(ctx context.Context, window uintptr, mode model.TranslationMode) error {
	o.mu.Lock()
	mem := o.memoryFor(window)
	if mode == model.ModeLive && time.Now().Before(mem.cooldownUntil) {
		o.mu.Unlock()
		return nil
	}
	prevFrame := mem.prevFrame
	prevText := mem.previousOcrText
	stabilizing := mem.stabilizationActive
	o.mu.Unlock()

	target := capture.Target{WindowHandle: window}
	if o.deps.ROI != nil {
		meta := capture.Describe(window)
		if roi, ok := o.deps.ROI.SuggestROI(window, meta.Title); ok {
			target.ROI = roi
		}
	}

	var (
		cloudTask *forkjoin.Task
		imgCtx    model.ImageContext
	)

	deps := pipeline.Deps{
		Capture:      o.deps.Capture,
		ChangeDetect: changedetect.DefaultConfig(),
		Recognize:    o.facade.Recognize,
		OnStable: func(frame *model.Frame, _ model.ChangeResult) {
			cloudTask, imgCtx = o.startCloudTask(ctx, window, frame)
		},
	}

	result, frame, err := pipeline.Run(ctx, deps, target, prevFrame, nil)
	o.adoptFrame(window, prevFrame, frame)

	if err != nil {
		if cloudTask != nil {
			cloudTask.Cancel()
		}
		if model.IsCancelled(err) {
			return nil
		}
		return err
	}

	if !result.ShouldContinue {
		if cloudTask != nil {
			cloudTask.Cancel()
		}
		return nil
	}

	changePct := float32(0)
	var changedRegions []model.Rect
	if result.ImageChange != nil {
		changePct = result.ImageChange.ChangePercentage
		changedRegions = result.ImageChange.ChangedRegions
	}

	// Stabilization only applies once the window has an OCR baseline.
	if mode == model.ModeLive && prevText != "" {
		nextActive, suppress := nextStabilization(stabilizing, changePct, o.cfg.ImageChange.ScreenStabilizationThreshold, o.cfg.ImageChange.ScreenStabilizationRecoveryThreshold)
		o.mu.Lock()
		o.memoryFor(window).stabilizationActive = nextActive
		o.mu.Unlock()
		if suppress {
			if cloudTask != nil {
				cloudTask.Cancel()
			}
			return nil
		}
	}

	if result.OcrResult == nil || len(result.OcrResult.Chunks) == 0 {
		if cloudTask != nil {
			cloudTask.Cancel()
		}
		return nil
	}

	gate := textgate.Accept(prevText, result.OcrResultText, mode == model.ModeSingleShot)
	if !gate.Accepted {
		if cloudTask != nil {
			cloudTask.Cancel()
		}
		return nil
	}

	o.mu.Lock()
	o.memoryFor(window).previousOcrText = result.OcrResultText
	o.mu.Unlock()

	chunks := result.OcrResult.Chunks
	accepted := o.agg.TryAddBatch(window, chunks, time.Now())
	if accepted < len(chunks) {
		o.deps.Diagnostics.Emit(model.PipelineDiagnostic{
			Stage:     model.StageAggregate,
			IsSuccess: true,
			SessionID: sessionIDFor(window),
			Severity:  model.SeverityWarn,
			Message:   "aggregator backpressure dropped chunks",
			Metrics:   map[string]float64{"dropped": float64(len(chunks) - accepted)},
		})
	}
	o.agg.SetMode(window, mode)

	if cloudTask != nil {
		waitCtx, cancel := context.WithTimeout(ctx, cloudtranslate.Timeout)
		cloud, _ := cloudTask.Await(waitCtx)
		cancel()
		if cloud != nil {
			o.agg.SetPrecomputedCloud(window, cloud)
		}
	}

	// Wait (at most one aggregation window) for the size or time trigger, so
	// the chunks just added are published without a later iteration.
	deadline := time.Now().Add(aggregator.DefaultConfig().Window)
	for !o.agg.ShouldTrigger(window, time.Now()) && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(10 * time.Millisecond):
		}
	}

	if ready, fired := o.agg.PollTrigger(window, time.Now(), imgCtx); fired {
		o.publishReady(ctx, window, ready)
	}

	o.mu.Lock()
	o.memoryFor(window).cooldownUntil = time.Now().Add(o.cfg.PostTranslationCooldown())
	o.mu.Unlock()

	if o.deps.ROI != nil {
		meta := capture.Describe(window)
		o.deps.ROI.Record(window, meta.Title, meta.ExecutablePath, normalizedBounds(chunks, imgCtx), changedRegions)
	}

	return nil
}

// adoptFrame replaces the cached previous frame with frame (when a new one
// was actually captured), releasing the one it superseded. Frame teardown
// is idempotent (model.Frame.Release), so this is safe even if frame == old.
func (o *Orchestrator) adoptFrame(window uintptr, old, frame *model.Frame) {
	if frame == nil || frame == old {
		return
	}
	old.Release()
	o.mu.Lock()
	o.memoryFor(window).prevFrame = frame
	o.mu.Unlock()
}

// startCloudTask prepares frame for the cloud wire format and spawns (or
// resolves from cache) the Fork-Join cloud child, per spec.md §4.7.
func (o *Orchestrator) startCloudTask(ctx context.Context, window uintptr, frame *model.Frame) (*forkjoin.Task, model.ImageContext) {
	imgCtx := model.ImageContext{
		OriginalWidth:  frame.OriginalWidth,
		OriginalHeight: frame.OriginalHeight,
	}

	prepared, err := imaging.PrepareForCloud(frame.Pixels, frame.Width, frame.Height)
	if err != nil {
		return nil, imgCtx
	}
	imgCtx.DownscaledWidth = prepared.Width
	imgCtx.DownscaledHeight = prepared.Height

	key := forkjoin.CacheKey{WindowHandle: window, ImageHash: forkjoin.ImageHash(prepared.JpegBytes)}
	precond := forkjoin.Precondition{
		CloudEntitled:    o.deps.CloudEntitled,
		CloudEnabled:     o.deps.Cloud != nil && !o.cfg.Translation.UseLocalEngine,
		LocalOnlyMode:    o.cfg.Translation.UseLocalEngine,
		ImageDataPresent: len(prepared.JpegBytes) > 0,
		SessionToken:     o.deps.SessionToken,
	}
	req := cloudtranslate.Request{
		ImageBase64:    prepared.Base64,
		OriginalWidth:  frame.OriginalWidth,
		OriginalHeight: frame.OriginalHeight,
		CloudWidth:     prepared.Width,
		CloudHeight:    prepared.Height,
		SessionToken:   o.deps.SessionToken,
		TargetLang:     o.cfg.Translation.TargetLanguage,
	}
	return o.fork.Start(ctx, window, key, req, precond), imgCtx
}

// publishReady publishes the ready batch, fills in local translations for
// any chunk the cloud fusion pass left untranslated, then publishes the
// per-chunk translations, subject to byte-equal duplicate suppression
// against the last published text for this window.
func (o *Orchestrator) publishReady(ctx context.Context, window uintptr, ready model.AggregatedChunksReady) {
	o.deps.Bus.Ready.Publish(ready)

	var missing []int
	var texts []string
	for i, c := range ready.Chunks {
		if c.TranslatedText == "" && c.CombinedText != "" {
			missing = append(missing, i)
			texts = append(texts, c.CombinedText)
		}
	}

	if len(texts) > 0 {
		if o.deps.Local == nil {
			o.deps.Bus.Failed.Publish(model.AggregatedChunksFailed{
				FailedChunks:   ready.Chunks,
				Err:            model.New(model.ErrExternalUnavailable, "local", "no local engine configured and cloud did not cover every chunk", nil),
				SourceLanguage: o.cfg.Translation.SourceLanguage,
				TargetLanguage: o.cfg.Translation.TargetLanguage,
			})
		} else {
			localCtx, cancel := context.WithTimeout(ctx, localtranslate.BatchTimeout)
			results, err := o.deps.Local.TranslateBatch(localCtx, texts, o.cfg.Translation.SourceLanguage, o.cfg.Translation.TargetLanguage, "")
			cancel()
			if err != nil {
				o.deps.Bus.Failed.Publish(model.AggregatedChunksFailed{
					FailedChunks:   ready.Chunks,
					Err:            err,
					SourceLanguage: o.cfg.Translation.SourceLanguage,
					TargetLanguage: o.cfg.Translation.TargetLanguage,
				})
			} else {
				for i, idx := range missing {
					if results[i].Success {
						ready.Chunks[idx].TranslatedText = results[i].Text
					}
				}
			}
		}
	}

	o.finalizeAndPublish(window, ready.Chunks)
}

// finalizeAndPublish publishes one TranslationWithBoundsCompleted per
// chunk, unless the batch's combined translated text is byte-identical to
// the last batch published for this window (spec.md §4.10 step 10's
// duplicate-result suppression).
func (o *Orchestrator) finalizeAndPublish(window uintptr, chunks []model.TextChunk) {
	combined := combinedTranslatedText(chunks)

	o.mu.Lock()
	mem := o.memoryFor(window)
	duplicate := combined != "" && combined == mem.lastTranslatedText
	if !duplicate {
		mem.lastTranslatedText = combined
	}
	o.mu.Unlock()

	if duplicate {
		return
	}

	for _, c := range chunks {
		if c.TranslatedText == "" {
			continue
		}
		o.deps.Bus.Translated.Publish(model.TranslationWithBoundsCompleted{
			SourceText:     c.CombinedText,
			TranslatedText: c.TranslatedText,
			Bounds:         c.CombinedBounds,
		})
	}
}

func combinedTranslatedText(chunks []model.TextChunk) string {
	text := ""
	for i, c := range chunks {
		if i > 0 {
			text += " "
		}
		text += c.TranslatedText
	}
	return text
}

// normalizedBounds maps each chunk's original-window pixel bounds onto a
// 0-1 scale, so the ROI learner's stored hull stays meaningful across
// window resizes between captures of the same title.
func normalizedBounds(chunks []model.TextChunk, imgCtx model.ImageContext) []model.Rect {
	if imgCtx.OriginalWidth == 0 || imgCtx.OriginalHeight == 0 {
		return nil
	}
	out := make([]model.Rect, len(chunks))
	for i, c := range chunks {
		out[i] = c.CombinedBounds.MapTo(float64(imgCtx.OriginalWidth), float64(imgCtx.OriginalHeight), 1, 1)
	}
	return out
}

// nextStabilization implements spec.md §4.10's screen-stabilization
// hysteresis as a pure function over the previous active flag and the
// current change percentage: a change above hi enters the unstable state;
// once unstable, a change still above lo keeps it suppressed; dropping to
// lo or below (strict > comparisons throughout, per spec) clears it and
// lets this iteration's translation proceed.
func nextStabilization(active bool, changePct, hi, lo float32) (nextActive, suppress bool) {
	if !active && changePct > hi {
		active = true
	}
	if active && changePct > lo {
		return true, true
	}
	return false, false
}

func sessionIDFor(window uintptr) string {
	return strconv.FormatUint(uint64(window), 10)
}

func errorSignature(err error) string {
	var pe *model.PipelineError
	if errors.As(err, &pe) {
		if pe.Signature != "" {
			return pe.Stage + ":" + pe.Signature
		}
		return pe.Stage + ":" + pe.Kind.String()
	}
	return err.Error()
}
