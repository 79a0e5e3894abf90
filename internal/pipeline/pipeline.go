// Package pipeline is the processing core: it owns job lifecycle, drives
// conversion, extraction, and aggregation, and persists every state
// transition through the store's compare-and-set operations.
package pipeline

import (
	"errors"
	"time"

	"github.com/docpipe/docpipe/internal/config"
)

var (
	// ErrNotFound is returned for operations on unknown job IDs.
	ErrNotFound = errors.New("job not found")
	// ErrNotReady is returned when a result is requested before the job
	// reached a terminal state.
	ErrNotReady = errors.New("job not in a terminal state yet")
	// ErrNoResult is returned for terminal jobs that failed before any
	// result could be produced (conversion failure, cancellation).
	ErrNoResult = errors.New("job finished without a result")
	// ErrUnsupportedMediaType is returned by Submit for content types no
	// converter recognizes.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrQueueFull is returned by Submit when the submission queue is at
	// capacity.
	ErrQueueFull = errors.New("submission queue is full")
)

// Config holds the orchestrator's tuning knobs.
type Config struct {
	// JobWorkers is the number of goroutines draining the submission queue.
	JobWorkers int
	// MaxExtractions bounds concurrent in-flight extraction calls globally.
	MaxExtractions int
	// PerJobExtractions bounds concurrent page extractions within one job,
	// so a large job cannot starve the others.
	PerJobExtractions int
	// MaxAttempts is the per-page attempt ceiling; exceeding it fails the
	// page terminally.
	MaxAttempts int
	// RetryBackoffBase and RetryBackoffCap shape the exponential backoff
	// between page retries.
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration
	// ExtractTimeout bounds each extraction call.
	ExtractTimeout time.Duration
	// QueueSize is the submission queue capacity.
	QueueSize int
	// StateCacheTTL bounds how long job states live in the cache.
	StateCacheTTL time.Duration
}

// ConfigFrom maps the service configuration onto orchestrator knobs.
func ConfigFrom(p config.PipelineConfig, e config.ExtractionConfig) Config {
	return Config{
		JobWorkers:        p.JobWorkers,
		MaxExtractions:    p.MaxExtractions,
		PerJobExtractions: p.PerJobExtractions,
		MaxAttempts:       p.MaxAttempts,
		RetryBackoffBase:  p.RetryBackoffBase,
		RetryBackoffCap:   p.RetryBackoffCap,
		ExtractTimeout:    e.Timeout,
		QueueSize:         p.SubmitQueueSize,
		StateCacheTTL:     p.JobStateCacheTTL,
	}
}

func (c *Config) applyDefaults() {
	if c.JobWorkers < 1 {
		c.JobWorkers = 1
	}
	if c.MaxExtractions < 1 {
		c.MaxExtractions = 1
	}
	if c.PerJobExtractions < 1 {
		c.PerJobExtractions = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = 500 * time.Millisecond
	}
	if c.RetryBackoffCap < c.RetryBackoffBase {
		c.RetryBackoffCap = 30 * time.Second
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 60 * time.Second
	}
	if c.QueueSize < 1 {
		c.QueueSize = 256
	}
	if c.StateCacheTTL <= 0 {
		c.StateCacheTTL = 30 * time.Minute
	}
}
