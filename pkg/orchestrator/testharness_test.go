package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"scanlate/pkg/capture"
	"scanlate/pkg/cloudtranslate"
	"scanlate/pkg/config"
	"scanlate/pkg/diagnostics"
	"scanlate/pkg/eventbus"
	"scanlate/pkg/localtranslate"
	"scanlate/pkg/model"
	"scanlate/pkg/ocrfacade"
)

// solidFrame builds a scripted capture.FakeFrame of one flat color.
func solidFakeFrame(w, h int, v byte) capture.FakeFrame {
	pixels := make([]byte, w*h*4)
	for i := range pixels {
		pixels[i] = v
	}
	return capture.FakeFrame{Pixels: pixels, Width: w, Height: h, OriginalWidth: w, OriginalHeight: h}
}

// blockingEngine is an ocrfacade.Engine whose Recognize call never returns
// on its own, only in response to ctx cancellation — used to exercise the
// "stop while OCR is in flight" scenario.
type blockingEngine struct {
	entered chan struct{}
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{entered: make(chan struct{}, 1)}
}

func (b *blockingEngine) Initialize(ctx context.Context) error  { return nil }
func (b *blockingEngine) ApplySettings(ocrfacade.Settings) error { return nil }
func (b *blockingEngine) CancelCurrentTimeout()                  {}
func (b *blockingEngine) EngineName() string                     { return "blocking" }
func (b *blockingEngine) IsInitialized() bool                    { return true }

func (b *blockingEngine) Recognize(ctx context.Context, frame *model.Frame, roi *model.Rect) (model.OcrResult, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return model.OcrResult{}, model.OcrErr(model.OcrCancelled, "blocking engine cancelled", ctx.Err())
}

// fakeCloudServer runs an httptest server implementing the cloudtranslate
// wire protocol, counting calls so tests can assert on fork-join cache
// reuse without reaching into Coordinator internals.
type fakeCloudServer struct {
	*httptest.Server
	calls atomic.Int64
}

func newFakeCloudServer(translations []cloudWireSpan) *fakeCloudServer {
	s := &fakeCloudServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		resp := map[string]any{
			"source_language": "ja",
			"engine":          "fake-cloud",
			"translations":    translations,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	return s
}

type cloudWireSpan struct {
	Text       string  `json:"text"`
	X0         float64 `json:"x0"`
	Y0         float64 `json:"y0"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	Confidence float64 `json:"confidence"`
}

// fakeLocalServer runs an httptest server implementing the local
// translate-generate wire protocol, always returning a fixed translation.
func newFakeLocalServer(reply string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": reply, "done": true})
	}))
}

// harness bundles everything one orchestrator test scenario needs: a
// scripted capture driver, a scripted OCR engine, a fake cloud server, a
// fake local server, and subscriptions on every event bus topic.
type harness struct {
	orch   *Orchestrator
	drv    *capture.FakeDriver
	stub   *ocrfacade.Stub
	cloud  *fakeCloudServer
	local  *httptest.Server
	bus    *eventbus.Bus
	ready  <-chan model.AggregatedChunksReady
	failed <-chan model.AggregatedChunksFailed
	xlated <-chan model.TranslationWithBoundsCompleted
}

func newHarness(cloudEntitled bool, translations []cloudWireSpan, localReply string) *harness {
	drv := &capture.FakeDriver{}
	stub := &ocrfacade.Stub{}
	cloud := newFakeCloudServer(translations)
	local := newFakeLocalServer(localReply)
	bus := eventbus.New()

	cfg := config.Default()
	cfg.Translation.AutoTranslationIntervalMs = 20
	cfg.Translation.PostTranslationCooldownSecs = 0

	deps := Dependencies{
		Capture:       drv,
		OCR:           stub,
		Local:         localtranslate.NewClient(local.URL, "test-model"),
		Cloud:         cloudtranslate.NewClient(cloud.URL, nil),
		Bus:           bus,
		Diagnostics:   diagnostics.New(bus, nil),
		SessionToken:  "session-token",
		CloudEntitled: cloudEntitled,
	}

	orch := New(deps, cfg)
	return &harness{
		orch:   orch,
		drv:    drv,
		stub:   stub,
		cloud:  cloud,
		local:  local,
		bus:    bus,
		ready:  bus.Ready.Subscribe(8),
		failed: bus.Failed.Subscribe(8),
		xlated: bus.Translated.Subscribe(32),
	}
}

func (h *harness) close() {
	h.cloud.Close()
	h.local.Close()
}

const testWindow uintptr = 0xF00D

func waitFor[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}
