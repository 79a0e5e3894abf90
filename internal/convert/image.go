package convert

import (
	"bytes"
	"context"
	"image"
	"image/png"

	// Raster formats accepted as single-page documents.
	_ "image/gif"
	_ "image/jpeg"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/docpipe/docpipe/internal/blob"
)

var imageContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
	"image/webp": true,
}

// ImageConverter treats a directly-rasterizable image as a one-page
// document, re-encoded to PNG.
type ImageConverter struct {
	blobs blob.Store
}

func NewImageConverter(blobs blob.Store) *ImageConverter {
	return &ImageConverter{blobs: blobs}
}

func (c *ImageConverter) Supports(contentType string) bool {
	return imageContentTypes[contentType]
}

func (c *ImageConverter) Convert(ctx context.Context, source []byte, contentType string) ([]string, error) {
	if !c.Supports(contentType) {
		return nil, unsupported("content type %q is not a supported image format", contentType)
	}
	if len(source) == 0 {
		return nil, corrupt("empty document")
	}

	img, _, err := image.Decode(bytes.NewReader(source))
	if err != nil {
		return nil, corrupt("decode image: %v", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, corrupt("encode page: %v", err)
	}

	ref, err := c.blobs.Put(ctx, buf.Bytes())
	if err != nil {
		return nil, ioErr(err)
	}
	return []string{ref}, nil
}

var _ Converter = (*ImageConverter)(nil)
