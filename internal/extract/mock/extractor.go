// Package mock provides models.Extractor implementations for testing and
// dev mode.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/docpipe/docpipe/pkg/models"
)

// Extractor satisfies models.Extractor with configurable behavior.
type Extractor struct {
	Name_       string
	ExtractFunc func(ctx context.Context, req models.ExtractionRequest) (models.ExtractionResult, error)

	mu    sync.Mutex
	calls []models.ExtractionRequest
}

func (m *Extractor) Name() string { return m.Name_ }

func (m *Extractor) Extract(ctx context.Context, req models.ExtractionRequest) (models.ExtractionResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, req)
	}
	return models.ExtractionResult{Provider: m.Name_}, nil
}

// Calls returns a copy of every request seen so far.
func (m *Extractor) Calls() []models.ExtractionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ExtractionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// NewExtractor returns an Extractor with a deterministic canned response.
func NewExtractor() *Extractor {
	return &Extractor{
		Name_: "mock",
		ExtractFunc: func(_ context.Context, req models.ExtractionRequest) (models.ExtractionResult, error) {
			return models.ExtractionResult{
				Text:       fmt.Sprintf("mock text for page %d", req.PageIndex),
				Confidence: 0.9,
				Provider:   "mock",
				Model:      "mock-v1",
			}, nil
		},
	}
}

// NewFailing returns an Extractor that always returns the given error.
func NewFailing(err error) *Extractor {
	return &Extractor{
		Name_: "mock-failing",
		ExtractFunc: func(_ context.Context, _ models.ExtractionRequest) (models.ExtractionResult, error) {
			return models.ExtractionResult{}, err
		},
	}
}

// NewBlocking returns an Extractor that blocks until its context is
// cancelled, then reports the context error.
func NewBlocking() *Extractor {
	return &Extractor{
		Name_: "mock-blocking",
		ExtractFunc: func(ctx context.Context, _ models.ExtractionRequest) (models.ExtractionResult, error) {
			<-ctx.Done()
			return models.ExtractionResult{}, ctx.Err()
		},
	}
}

// Compile-time check that Extractor implements models.Extractor.
var _ models.Extractor = (*Extractor)(nil)
