package eventbus

import "scanlate/pkg/model"

// CaptureCompleted is published once per successful capture.
type CaptureCompleted struct {
	Frame        *model.Frame
	WindowHandle uintptr
	Timestamp    int64 // unix nano
}

// Bus bundles one Topic per event type named in spec.md §6. It is safe for
// concurrent publish and subscribe; the orchestrator is the sole publisher,
// any number of readers (overlay dispatch, diagnostics sinks, the
// websocket bridge) may subscribe.
type Bus struct {
	Capture     *Topic[CaptureCompleted]
	Ready       *Topic[model.AggregatedChunksReady]
	Failed      *Topic[model.AggregatedChunksFailed]
	Translated  *Topic[model.TranslationWithBoundsCompleted]
	Diagnostic  *Topic[model.PipelineDiagnostic]
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{
		Capture:    NewTopic[CaptureCompleted](),
		Ready:      NewTopic[model.AggregatedChunksReady](),
		Failed:     NewTopic[model.AggregatedChunksFailed](),
		Translated: NewTopic[model.TranslationWithBoundsCompleted](),
		Diagnostic: NewTopic[model.PipelineDiagnostic](),
	}
}
