// Package extract adapts external OCR/semantic-extraction providers behind
// the models.Extractor contract. Provider selection happens once at startup
// via the factory; no provider detail crosses the orchestrator boundary.
package extract

import "github.com/docpipe/docpipe/internal/extract/extracterr"

// Extraction error kinds.
const (
	KindRateLimited   = extracterr.KindRateLimited
	KindTimeout       = extracterr.KindTimeout
	KindProviderError = extracterr.KindProviderError
	KindInvalidInput  = extracterr.KindInvalidInput
)

// Error is a structured extraction failure. RateLimited and Timeout are
// always retryable, InvalidInput never is, and ProviderError retryability
// is whatever the provider reported.
type Error = extracterr.Error

func RateLimited(err error) *Error { return extracterr.RateLimited(err) }

func Timeout(err error) *Error { return extracterr.Timeout(err) }

func InvalidInput(err error) *Error { return extracterr.InvalidInput(err) }

func ProviderError(err error, retryable bool) *Error {
	return extracterr.ProviderError(err, retryable)
}

// Classify normalizes any error from an Extractor call into an *Error.
// Context deadline expiry counts as a retryable timeout; errors carrying no
// extraction kind become retryable provider errors (transient transport
// failures land here).
func Classify(err error) *Error { return extracterr.Classify(err) }
