// Package tesseract implements models.Extractor on top of a local
// Tesseract installation via gosseract.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/docpipe/docpipe/internal/config"
	extract "github.com/docpipe/docpipe/internal/extract/extracterr"
	"github.com/docpipe/docpipe/pkg/models"
)

// Extractor runs OCR locally. A fresh gosseract client is created per call;
// the client itself is not safe for concurrent reuse.
type Extractor struct {
	cfg           config.TesseractConfig
	clientFactory func() *gosseract.Client
}

func NewExtractor(cfg config.TesseractConfig) *Extractor {
	return &Extractor{cfg: cfg, clientFactory: gosseract.NewClient}
}

func (e *Extractor) Name() string { return "tesseract" }

func (e *Extractor) Extract(ctx context.Context, req models.ExtractionRequest) (models.ExtractionResult, error) {
	if len(req.Image) == 0 {
		return models.ExtractionResult{}, extract.InvalidInput(fmt.Errorf("empty page image"))
	}
	if err := ctx.Err(); err != nil {
		return models.ExtractionResult{}, extract.Classify(err)
	}

	c := e.clientFactory()
	defer c.Close()

	lang := req.Language
	if lang == "" {
		lang = e.cfg.Language
	}
	if lang != "" {
		if err := c.SetLanguage(lang); err != nil {
			return models.ExtractionResult{}, extract.ProviderError(fmt.Errorf("set language: %w", err), false)
		}
	}

	if err := c.SetImageFromBytes(req.Image); err != nil {
		return models.ExtractionResult{}, extract.InvalidInput(fmt.Errorf("set image: %w", err))
	}

	text, err := c.Text()
	if err != nil {
		return models.ExtractionResult{}, extract.ProviderError(fmt.Errorf("recognize: %w", err), true)
	}

	return models.ExtractionResult{
		Text:       text,
		Confidence: meanWordConfidence(c),
		Provider:   e.Name(),
	}, nil
}

// meanWordConfidence averages Tesseract's per-word confidences to [0, 1].
// A page with no recognized words reports zero.
func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes)) / 100.0
}

var _ models.Extractor = (*Extractor)(nil)
