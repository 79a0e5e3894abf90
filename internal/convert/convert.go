// Package convert turns an uploaded document into an ordered sequence of
// page-level raster images, written to blob storage before their refs are
// returned.
package convert

import (
	"context"
	"errors"
	"fmt"
)

// Conversion error kinds.
const (
	KindUnsupported = "unsupported"
	KindCorrupt     = "corrupt"
	KindIO          = "io"
)

// Error is a structured conversion failure.
type Error struct {
	Kind      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("conversion failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func unsupported(format string, args ...any) *Error {
	return &Error{Kind: KindUnsupported, Err: fmt.Errorf(format, args...)}
}

func corrupt(format string, args ...any) *Error {
	return &Error{Kind: KindCorrupt, Err: fmt.Errorf(format, args...)}
}

func ioErr(err error) *Error {
	return &Error{Kind: KindIO, Retryable: true, Err: err}
}

// AsError extracts a *Error from err, or wraps err as a non-retryable
// corrupt failure if it carries no conversion kind.
func AsError(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Kind: KindCorrupt, Err: err}
}

// Converter rasterizes one document into ordered page images. The returned
// refs preserve source page order; each page is fully written to the blob
// store before its ref appears in the slice. A zero-page source is a
// non-retryable corrupt failure, never an empty success.
type Converter interface {
	Convert(ctx context.Context, source []byte, contentType string) ([]string, error)
	Supports(contentType string) bool
}
