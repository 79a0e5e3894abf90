package convert

import (
	"bytes"
	"context"
	"image/png"

	"github.com/gen2brain/go-fitz"

	"github.com/docpipe/docpipe/internal/blob"
)

// PDFConverter rasterizes PDF documents page by page via MuPDF.
type PDFConverter struct {
	blobs blob.Store
}

func NewPDFConverter(blobs blob.Store) *PDFConverter {
	return &PDFConverter{blobs: blobs}
}

func (c *PDFConverter) Supports(contentType string) bool {
	return contentType == "application/pdf"
}

func (c *PDFConverter) Convert(ctx context.Context, source []byte, contentType string) ([]string, error) {
	if !c.Supports(contentType) {
		return nil, unsupported("content type %q is not a PDF", contentType)
	}
	if len(source) == 0 {
		return nil, corrupt("empty document")
	}

	doc, err := fitz.NewFromMemory(source)
	if err != nil {
		return nil, corrupt("open pdf: %v", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n == 0 {
		return nil, corrupt("pdf has no pages")
	}

	refs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, ioErr(err)
		}

		img, err := doc.Image(i)
		if err != nil {
			return nil, corrupt("render page %d: %v", i, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, corrupt("encode page %d: %v", i, err)
		}

		ref, err := c.blobs.Put(ctx, buf.Bytes())
		if err != nil {
			return nil, ioErr(err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

var _ Converter = (*PDFConverter)(nil)
