// Package blob provides durable artifact storage for original uploads,
// rasterized page images, and aggregated results.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no artifact exists for the given ref.
var ErrNotFound = errors.New("artifact not found")

// Store is the artifact storage interface. A ref returned by Put must be
// immediately readable (write-then-visible). Implementations must be safe
// for concurrent use.
type Store interface {
	Put(ctx context.Context, data []byte) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}
