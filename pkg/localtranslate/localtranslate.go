// Package localtranslate implements C7: batch translation against a local
// LLM endpoint, generalized from the teacher's pkg/ai/ollama.go client
// (same base URL, HTTP POST + JSON decode shape) from a single
// prompt-summarization call into an ordered batch-translate call.
package localtranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"scanlate/pkg/model"
)

const (
	// DefaultBaseURL is the local LLM endpoint's default address, unchanged
	// from the teacher's Ollama default.
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel is the default local translation model.
	DefaultModel = "gemma2:2b"
	// BatchTimeout bounds a full translate_batch call.
	BatchTimeout = 60 * time.Second
	// maxBatchWorkers bounds how many translateOne calls run concurrently
	// against the local engine, so a large batch doesn't pile up requests
	// faster than a single-model Ollama-style server can actually serve them.
	maxBatchWorkers = 4
)

// Client talks to a local Ollama-compatible generation endpoint.
type Client struct {
	BaseURL string
	Model   string
	HTTP    *http.Client
}

// NewClient constructs a Client, defaulting BaseURL/Model the same way the
// teacher's NewOllamaClient does.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{BaseURL: baseURL, Model: model, HTTP: &http.Client{Timeout: BatchTimeout}}
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options,omitempty"`
}

type options struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// TranslateBatch translates texts from source to target, optionally primed
// with extra context (e.g. surrounding dialogue). result[i] always
// corresponds to texts[i], per spec.md §4.6's deterministic-ordering
// guarantee — a per-item failure produces a failed LocalTranslationResult
// at that index rather than aborting the whole batch or reordering. Items
// run through a bounded pool of at most maxBatchWorkers concurrent
// translateOne calls; each worker writes only to its own result index, so
// no locking is needed around the shared results slice.
func (c *Client) TranslateBatch(ctx context.Context, texts []string, source, target, extraContext string) ([]model.LocalTranslationResult, error) {
	results := make([]model.LocalTranslationResult, len(texts))

	sem := make(chan struct{}, maxBatchWorkers)
	var wg sync.WaitGroup
	for i, text := range texts {
		i, text := i, text
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			translated, err := c.translateOne(ctx, text, source, target, extraContext)
			elapsed := time.Since(start).Milliseconds()
			if err != nil {
				results[i] = model.LocalTranslationResult{Text: text, Success: false, Err: err, ProcessingTimeMs: elapsed}
				return
			}
			results[i] = model.LocalTranslationResult{Text: translated, Success: true, ProcessingTimeMs: elapsed, ConfidenceScore: 1.0}
		}()
	}
	wg.Wait()

	return results, nil
}

func (c *Client) translateOne(ctx context.Context, text, source, target, extraContext string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	prompt := buildPrompt(text, source, target, extraContext)
	reqBody := generateRequest{
		Model:  c.Model,
		Prompt: prompt,
		Stream: false,
		Options: options{
			Temperature: 0.1,
			NumPredict:  512,
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", model.New(model.ErrBadInput, "local", "failed to marshal local translate request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return "", model.New(model.ErrBadInput, "local", "failed to build local translate request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return "", model.New(model.ErrTimeout, "local", "local translate timed out", ctx.Err())
			}
			return "", model.New(model.ErrCancelled, "local", "local translate cancelled", ctx.Err())
		}
		return "", model.New(model.ErrExternalUnavailable, "local", "failed to call local translation engine", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", model.New(model.ErrExternalUnavailable, "local", fmt.Sprintf("local engine returned status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", model.New(model.ErrBadInput, "local", "failed to decode local translate response", err)
	}

	return strings.TrimSpace(genResp.Response), nil
}

func buildPrompt(text, source, target, extraContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following text from %s to %s.\n", source, target)
	if extraContext != "" {
		fmt.Fprintf(&b, "Context: %s\n", extraContext)
	}
	fmt.Fprintf(&b, "Respond with only the translation, no explanation.\nText: %s\nTranslation:", text)
	return b.String()
}
