package models

import "context"

// Extractor is the core interface every OCR/semantic-extraction integration
// must implement. Never call a specific provider directly — always inject
// this interface. Implementations must be safe for concurrent use across
// distinct pages and hold no per-page state between calls.
type Extractor interface {
	// Extract runs OCR/semantic extraction on a single rasterized page.
	Extract(ctx context.Context, req ExtractionRequest) (ExtractionResult, error)
	// Name returns the provider identifier (e.g., "tesseract", "openai").
	Name() string
}

// ExtractionRequest is the input to a single-page extraction call.
type ExtractionRequest struct {
	// Image holds the rasterized page bytes (PNG).
	Image []byte
	// PageIndex is informational; providers must not keep state keyed on it.
	PageIndex int
	// Language is an optional hint for OCR engines (e.g. "eng").
	Language string
}

// ExtractionResult is the structured payload produced for one page.
type ExtractionResult struct {
	Text       string            `json:"text"`
	Fields     map[string]string `json:"fields,omitempty"`
	Confidence float64           `json:"confidence"`
	Provider   string            `json:"provider"`
	Model      string            `json:"model,omitempty"`
}
