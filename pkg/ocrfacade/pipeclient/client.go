// Package pipeclient implements ocrfacade.Engine by talking to an external
// OCR process over a local named pipe, generalized from the teacher's
// pkg/server/secure.go named-pipe HTTP server (winio.PipeConfig,
// winio.ListenPipe) mirrored on the client side with winio.DialPipeContext.
// The wire protocol is newline-delimited JSON request/response rather than
// full HTTP, since this is a single narrow RPC surface, not a general API.
package pipeclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Microsoft/go-winio"

	"scanlate/pkg/model"
	"scanlate/pkg/ocrfacade"
)

// DefaultPipeName is the named pipe the external OCR process listens on.
const DefaultPipeName = `\\.\pipe\scanlate-ocr`

// Client implements ocrfacade.Engine over a named pipe connection to an
// external OCR process. One Client serializes all calls (the pipe
// connection itself is not safe for concurrent requests); ocrfacade.Facade
// is what provides the per-window "latest wins" semantics above this.
type Client struct {
	pipeName string

	// callMu serializes request/response exchanges on conn; mu guards the
	// fields below and is never held across pipe I/O.
	callMu sync.Mutex

	mu          sync.Mutex
	conn        net.Conn
	initialized bool
	cancelFn    context.CancelFunc
}

// New constructs a Client targeting pipeName ("" uses DefaultPipeName).
func New(pipeName string) *Client {
	if pipeName == "" {
		pipeName = DefaultPipeName
	}
	return &Client{pipeName: pipeName}
}

type wireRequest struct {
	Op       string  `json:"op"`
	ROI      *model.Rect `json:"roi,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Pixels   []byte  `json:"pixels,omitempty"`
	Settings *ocrfacade.Settings `json:"settings,omitempty"`
}

type wireResponse struct {
	OK     bool             `json:"ok"`
	Error  string           `json:"error,omitempty"`
	Code   string           `json:"code,omitempty"`
	Chunks []wireChunk      `json:"chunks,omitempty"`
}

type wireChunk struct {
	Text       string      `json:"text"`
	Bounds     model.Rect  `json:"bounds"`
	Confidence float64     `json:"confidence"`
	Language   string      `json:"language"`
}

// Initialize dials the named pipe and confirms the remote engine is ready.
func (c *Client) Initialize(ctx context.Context) error {
	conn, err := winio.DialPipeContext(ctx, c.pipeName)
	if err != nil {
		return model.OcrErr(model.OcrInitFailed, "failed to dial OCR pipe "+c.pipeName, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if _, err := c.call(ctx, wireRequest{Op: "ping"}); err != nil {
		return model.OcrErr(model.OcrInitFailed, "OCR engine did not respond to ping", err)
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	return nil
}

// ApplySettings pushes detection settings to the remote engine.
func (c *Client) ApplySettings(s ocrfacade.Settings) error {
	_, err := c.call(context.Background(), wireRequest{Op: "apply_settings", Settings: &s})
	if err != nil {
		return model.OcrErr(model.OcrInitFailed, "failed to apply OCR settings", err)
	}
	return nil
}

// Recognize sends the frame's pixels for recognition and decodes the
// resulting chunks.
func (c *Client) Recognize(ctx context.Context, frame *model.Frame, roi *model.Rect) (model.OcrResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFn = cancel
	c.mu.Unlock()
	defer cancel()

	resp, err := c.call(ctx, wireRequest{
		Op:     "recognize",
		ROI:    roi,
		Width:  frame.Width,
		Height: frame.Height,
		Pixels: frame.Pixels,
	})
	if err != nil {
		if ctx.Err() != nil {
			return model.OcrResult{}, model.OcrErr(model.OcrCancelled, "recognize cancelled", ctx.Err())
		}
		return model.OcrResult{}, model.OcrErr(model.OcrRunFailed, "recognize call failed", err)
	}
	if !resp.OK {
		return model.OcrResult{}, wireErrToPipelineErr(resp)
	}

	regions := make([]model.TextRegion, len(resp.Chunks))
	for i, wc := range resp.Chunks {
		regions[i] = model.TextRegion{
			Text:             wc.Text,
			Bounds:           wc.Bounds,
			Confidence:       wc.Confidence,
			DetectedLanguage: wc.Language,
		}
	}
	// The remote engine groups regions into chunks itself; here every
	// region is returned flattened, one chunk per region, and NewTextChunk
	// computes each chunk's bounds as that single region's hull.
	chunks := make([]model.TextChunk, len(regions))
	for i, r := range regions {
		chunks[i] = model.NewTextChunk(0, frame.WindowHandle, frame.CaptureRegion, []model.TextRegion{r})
	}
	return model.OcrResult{Chunks: chunks}, nil
}

// CancelCurrentTimeout cancels whatever Recognize call is currently in
// flight, if any.
func (c *Client) CancelCurrentTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelFn != nil {
		c.cancelFn()
	}
}

// EngineName identifies this engine for diagnostics.
func (c *Client) EngineName() string { return "pipeclient:" + c.pipeName }

// IsInitialized reports whether Initialize has completed successfully.
func (c *Client) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *Client) call(ctx context.Context, req wireRequest) (wireResponse, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return wireResponse{}, fmt.Errorf("pipeclient: not connected")
	}

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
		defer conn.SetDeadline(time.Time{})
	}

	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return wireResponse{}, err
	}

	var resp wireResponse
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return wireResponse{}, err
	}
	return resp, nil
}

func wireErrToPipelineErr(resp wireResponse) error {
	switch resp.Code {
	case model.OcrEngineBusy.String():
		return model.OcrErr(model.OcrEngineBusy, resp.Error, nil)
	case model.OcrPaddlePredictor.String():
		return model.OcrErr(model.OcrPaddlePredictor, resp.Error, nil)
	case model.OcrRunFailed.String():
		return model.OcrErr(model.OcrRunFailed, resp.Error, nil)
	case model.OcrTimeout.String():
		return model.OcrErr(model.OcrTimeout, resp.Error, nil)
	default:
		return model.OcrErr(model.OcrFatalErr, resp.Error, nil)
	}
}
