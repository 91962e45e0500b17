package model

// PipelineOptions configures a single pipeline run; it is the frozen,
// per-iteration view of the settings in pkg/config relevant to the stage
// machine.
type PipelineOptions struct {
	Mode                TranslationMode
	SourceLanguage      string
	TargetLanguage      string
	EnableTextGrouping  bool
	PreserveParagraphs  bool
	SameLineThreshold    float32
	ParaSeparationThresh float32
	DetectionThreshold   float32
}

// PipelineInput is the frame plus everything the stage machine needs to
// decide whether OCR can be skipped.
type PipelineInput struct {
	Frame             *Frame
	Options           PipelineOptions
	PreviousOcrText   *string
	PreExecutedOcr    *OcrResult // set when capture already ran inference
}

// PipelineStage names one of the stage machine's stops, used for
// last_completed_stage and diagnostics.
type PipelineStage string

const (
	StageCapture      PipelineStage = "capture"
	StageChangeDetect PipelineStage = "change_detect"
	StageOcr          PipelineStage = "ocr"
	StageAggregate    PipelineStage = "aggregate"
)

// PipelineResult is the outcome of one run of the stage machine.
type PipelineResult struct {
	OcrResult         *OcrResult
	OcrResultText     string
	ImageChange       *ChangeResult
	ShouldContinue    bool
	EarlyTerminated   bool
	LastCompletedStage PipelineStage
}

// AggregatorState is the per-window state the chunk aggregator (C9)
// maintains between triggers.
type AggregatorState struct {
	Pending          []TextChunk
	OpenSince        int64 // unix nano; monotonic within a process run
	PreComputedCloud *CloudTranslationResult
	TranslationMode  TranslationMode
}

// ImageContext carries the original and downscaled dimensions needed to map
// normalized cloud coordinates back to pixel space.
type ImageContext struct {
	OriginalWidth, OriginalHeight     int
	DownscaledWidth, DownscaledHeight int
}

// AggregatedChunksReady is the event C9 publishes when a trigger fires.
type AggregatedChunksReady struct {
	WindowHandle uintptr
	Chunks       []TextChunk
	Cloud        *CloudTranslationResult
	ImageContext ImageContext
	Mode         TranslationMode
	PublishedAt  int64 // unix nano
}

// AggregatedChunksFailed is published when aggregation cannot produce a
// usable translation for a window's pending chunks.
type AggregatedChunksFailed struct {
	Session        string
	FailedChunks   []TextChunk
	Err            error
	SourceLanguage string
	TargetLanguage string
}

// TranslationWithBoundsCompleted is published per finalized, positioned
// translation, ready for overlay placement.
type TranslationWithBoundsCompleted struct {
	SourceText     string
	TranslatedText string
	Bounds         Rect
	Confidence     float64
	EngineName     string
	IsFallback     bool
}

// DiagnosticSeverity classifies a PipelineDiagnostic event.
type DiagnosticSeverity int

const (
	SeverityDebug DiagnosticSeverity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// PipelineDiagnostic is a fire-and-forget diagnostic event; publication
// failures never affect control flow.
type PipelineDiagnostic struct {
	Stage             PipelineStage
	IsSuccess         bool
	ProcessingTimeMs  int64
	SessionID         string
	Severity          DiagnosticSeverity
	Message           string
	Metrics           map[string]float64
}
