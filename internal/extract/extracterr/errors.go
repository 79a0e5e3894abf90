// Package extracterr holds the structured extraction error type shared by
// the extract package and its provider subpackages.
package extracterr

import (
	"context"
	"errors"
	"fmt"
)

// Extraction error kinds.
const (
	KindRateLimited   = "rate_limited"
	KindTimeout       = "timeout"
	KindProviderError = "provider_error"
	KindInvalidInput  = "invalid_input"
)

// Error is a structured extraction failure. RateLimited and Timeout are
// always retryable, InvalidInput never is, and ProviderError retryability
// is whatever the provider reported.
type Error struct {
	Kind      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func RateLimited(err error) *Error {
	return &Error{Kind: KindRateLimited, Retryable: true, Err: err}
}

func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Retryable: true, Err: err}
}

func InvalidInput(err error) *Error {
	return &Error{Kind: KindInvalidInput, Retryable: false, Err: err}
}

func ProviderError(err error, retryable bool) *Error {
	return &Error{Kind: KindProviderError, Retryable: retryable, Err: err}
}

// Classify normalizes any error from an Extractor call into an *Error.
// Context deadline expiry counts as a retryable timeout; errors carrying no
// extraction kind become retryable provider errors (transient transport
// failures land here).
func Classify(err error) *Error {
	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(err)
	}
	return ProviderError(err, true)
}
