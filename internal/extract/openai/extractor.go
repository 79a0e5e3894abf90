// Package openai implements models.Extractor against the OpenAI
// chat/completions API with image payloads.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/docpipe/docpipe/internal/config"
	extract "github.com/docpipe/docpipe/internal/extract/extracterr"
	"github.com/docpipe/docpipe/pkg/models"
)

const systemPrompt = "You are a document transcription engine. Transcribe all " +
	"text visible in the page image, preserving reading order. Then list any " +
	"clearly labeled fields (dates, totals, identifiers) you can identify. " +
	"Respond with JSON: {\"text\": string, \"fields\": object, \"confidence\": number between 0 and 1}."

// Extractor calls OpenAI vision models over plain HTTP. It is stateless per
// call and safe for concurrent use; the shared http.Client handles
// connection pooling.
type Extractor struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewExtractor(cfg config.OpenAIConfig) *Extractor {
	return &Extractor{
		cfg: cfg,
		// No client-level timeout: the per-call context carries the deadline.
		client: &http.Client{},
	}
}

func (e *Extractor) Name() string { return "openai" }

func (e *Extractor) Extract(ctx context.Context, req models.ExtractionRequest) (models.ExtractionResult, error) {
	if len(req.Image) == 0 {
		return models.ExtractionResult{}, extract.InvalidInput(fmt.Errorf("empty page image"))
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Image)
	body := map[string]any{
		"model":           e.cfg.Model,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				},
			},
		},
	}

	raw, err := e.post(ctx, strings.TrimRight(e.cfg.BaseURL, "/")+"/chat/completions", body)
	if err != nil {
		return models.ExtractionResult{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return models.ExtractionResult{}, extract.ProviderError(fmt.Errorf("decode response: %w", err), true)
	}
	if len(cc.Choices) == 0 {
		return models.ExtractionResult{}, extract.ProviderError(fmt.Errorf("no choices in response"), true)
	}

	var payload struct {
		Text       string            `json:"text"`
		Fields     map[string]string `json:"fields"`
		Confidence float64           `json:"confidence"`
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return models.ExtractionResult{}, extract.ProviderError(fmt.Errorf("decode model output: %w", err), true)
	}

	if payload.Confidence < 0 {
		payload.Confidence = 0
	}
	if payload.Confidence > 1 {
		payload.Confidence = 1
	}

	return models.ExtractionResult{
		Text:       payload.Text,
		Fields:     payload.Fields,
		Confidence: payload.Confidence,
		Provider:   e.Name(),
		Model:      e.cfg.Model,
	}, nil
}

func (e *Extractor) post(ctx context.Context, url string, body any) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, extract.InvalidInput(fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, extract.InvalidInput(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, extract.Timeout(err)
		}
		return nil, extract.ProviderError(err, true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, extract.ProviderError(fmt.Errorf("read response: %w", err), true)
	}

	slog.Debug("openai response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusOK:
		return raw, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, extract.RateLimited(fmt.Errorf("status 429: %s", snippet(raw)))
	case resp.StatusCode >= 500:
		return nil, extract.ProviderError(fmt.Errorf("status %d: %s", resp.StatusCode, snippet(raw)), true)
	default:
		return nil, extract.InvalidInput(fmt.Errorf("status %d: %s", resp.StatusCode, snippet(raw)))
	}
}

func snippet(raw []byte) string {
	const max = 256
	if len(raw) > max {
		raw = raw[:max]
	}
	return string(raw)
}

var _ models.Extractor = (*Extractor)(nil)
