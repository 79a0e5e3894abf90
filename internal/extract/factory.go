package extract

import (
	"fmt"

	"github.com/docpipe/docpipe/internal/config"
	"github.com/docpipe/docpipe/internal/extract/mock"
	"github.com/docpipe/docpipe/internal/extract/openai"
	"github.com/docpipe/docpipe/internal/extract/tesseract"
	"github.com/docpipe/docpipe/pkg/models"
)

// NewExtractor constructs the configured extraction provider.
// Called once at server startup.
func NewExtractor(cfg config.ExtractionConfig) (models.Extractor, error) {
	switch cfg.Provider {
	case "tesseract":
		return tesseract.NewExtractor(cfg.Tesseract), nil
	case "openai":
		return openai.NewExtractor(cfg.OpenAI), nil
	case "mock":
		return mock.NewExtractor(), nil
	default:
		return nil, fmt.Errorf("unknown extraction provider %q: must be one of tesseract, openai, mock", cfg.Provider)
	}
}
