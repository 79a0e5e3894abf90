package convert

import (
	"context"

	"github.com/docpipe/docpipe/internal/blob"
)

// Registry dispatches conversion to the first converter supporting the
// document's content type. Unrecognized types fail immediately as
// non-retryable unsupported errors.
type Registry struct {
	converters []Converter
}

// NewRegistry returns a registry over the given converters, consulted in
// order.
func NewRegistry(converters ...Converter) *Registry {
	return &Registry{converters: converters}
}

// DefaultRegistry covers PDF and directly-rasterizable image inputs.
func DefaultRegistry(blobs blob.Store) *Registry {
	return NewRegistry(NewPDFConverter(blobs), NewImageConverter(blobs))
}

func (r *Registry) Supports(contentType string) bool {
	for _, c := range r.converters {
		if c.Supports(contentType) {
			return true
		}
	}
	return false
}

func (r *Registry) Convert(ctx context.Context, source []byte, contentType string) ([]string, error) {
	for _, c := range r.converters {
		if c.Supports(contentType) {
			return c.Convert(ctx, source, contentType)
		}
	}
	return nil, unsupported("no converter for content type %q", contentType)
}

var _ Converter = (*Registry)(nil)
