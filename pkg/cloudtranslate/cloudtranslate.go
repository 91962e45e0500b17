// Package cloudtranslate implements C6: a single cancellable cloud
// translation call. It owns none of the coordination with local OCR/
// translation (that is C8's job) and never maps the cloud response's
// normalized coordinates into pixel space (that is C9's job, per spec.md
// §4.5) — this package only speaks the wire protocol.
package cloudtranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"scanlate/pkg/model"
)

// Timeout is the hard wall-clock bound on a single cloud call, per
// spec.md §4.5.
const Timeout = 30 * time.Second

// Request is everything a single cloud translation call needs. ImageBase64
// and CloudWidth/CloudHeight come from pkg/imaging.PrepareForCloud, computed
// once by the caller (C8) and shared with its image-hash cache key so the
// downscale/encode work is never duplicated.
type Request struct {
	ImageBase64                   string
	OriginalWidth, OriginalHeight int
	CloudWidth, CloudHeight       int
	SessionToken                  string
	TargetLang                    string
}

// Client calls a cloud translation endpoint over HTTP, generalized from the
// teacher's pkg/ai/ollama.go HTTP-client-plus-JSON pattern (same
// marshal/POST/status-check/decode shape, different endpoint and payload).
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
}

// NewClient builds a Client. A nil httpClient gets a default with Timeout
// as its own bound, layered under the per-call context deadline.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: Timeout}
	}
	return &Client{Endpoint: endpoint, HTTPClient: httpClient}
}

type wireRequest struct {
	ImageBase64  string `json:"image_base64"`
	OriginalW    int    `json:"original_width"`
	OriginalH    int    `json:"original_height"`
	CloudW       int    `json:"cloud_width"`
	CloudH       int    `json:"cloud_height"`
	SessionToken string `json:"session_token"`
	TargetLang   string `json:"target_lang"`
}

type wireSpan struct {
	Text       string  `json:"text"`
	X0         float64 `json:"x0"`
	Y0         float64 `json:"y0"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	Confidence float64 `json:"confidence"`
}

type wireResponse struct {
	SourceLanguage string     `json:"source_language"`
	Translations   []wireSpan `json:"translations"`
	Engine         string     `json:"engine"`
}

// TranslateCloud performs a single cloud translation call. It enforces
// Timeout on top of whatever deadline ctx already carries, and is fully
// cancellable: a cancelled ctx returns promptly with Success=false and a
// cancelled-kind error, never a panic or a leaked goroutine.
func TranslateCloud(ctx context.Context, c *Client, req Request) (*model.CloudTranslationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	body, err := json.Marshal(wireRequest{
		ImageBase64:  req.ImageBase64,
		OriginalW:    req.OriginalWidth,
		OriginalH:    req.OriginalHeight,
		CloudW:       req.CloudWidth,
		CloudH:       req.CloudHeight,
		SessionToken: req.SessionToken,
		TargetLang:   req.TargetLang,
	})
	if err != nil {
		return nil, model.New(model.ErrBadInput, "cloud", "failed to marshal cloud request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, model.New(model.ErrBadInput, "cloud", "failed to build cloud request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			kind := model.ErrCancelled
			if ctx.Err() == context.DeadlineExceeded {
				kind = model.ErrTimeout
			}
			return &model.CloudTranslationResult{Success: false, Err: ctx.Err()}, model.New(kind, "cloud", "cloud call cancelled or timed out", ctx.Err())
		}
		return &model.CloudTranslationResult{Success: false, Err: err}, model.New(model.ErrExternalUnavailable, "cloud", "cloud call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		pipeErr := model.New(model.ErrExternalUnavailable, "cloud", fmt.Sprintf("cloud returned status %d: %s", resp.StatusCode, string(respBody)), nil)
		return &model.CloudTranslationResult{Success: false, Err: pipeErr}, pipeErr
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		pipeErr := model.New(model.ErrBadInput, "cloud", "failed to decode cloud response", err)
		return &model.CloudTranslationResult{Success: false, Err: pipeErr}, pipeErr
	}

	spans := make([]model.CloudTranslatedSpan, len(wr.Translations))
	for i, s := range wr.Translations {
		spans[i] = model.CloudTranslatedSpan{
			Text:           s.Text,
			BoundsNorm1000: model.Rect{X0: s.X0, Y0: s.Y0, X1: s.X1, Y1: s.Y1},
			Confidence:     s.Confidence,
		}
	}

	return &model.CloudTranslationResult{
		Success:    true,
		UsedEngine: model.CloudEngineName(wr.Engine),
		Response: &model.CloudTranslationResponse{
			Translations:   spans,
			SourceLanguage: wr.SourceLanguage,
		},
	}, nil
}
