// Package models contains shared data models used across the docpipe codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a submitted document.
type JobState string

const (
	JobStateQueued      JobState = "queued"
	JobStateConverting  JobState = "converting"
	JobStateExtracting  JobState = "extracting"
	JobStateAggregating JobState = "aggregating"
	JobStateSucceeded   JobState = "succeeded"
	JobStatePartial     JobState = "partially_succeeded"
	JobStateFailed      JobState = "failed"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSucceeded, JobStatePartial, JobStateFailed:
		return true
	}
	return false
}

// Error kinds recorded on a failed job or page.
const (
	ErrKindUnsupported    = "unsupported"
	ErrKindCorrupt        = "corrupt"
	ErrKindIO             = "io"
	ErrKindRateLimited    = "rate_limited"
	ErrKindTimeout        = "timeout"
	ErrKindProviderError  = "provider_error"
	ErrKindInvalidInput   = "invalid_input"
	ErrKindCancelled      = "cancelled"
	ErrKindRetryExhausted = "retry_exhausted"
)

// JobError is the structured failure record persisted on a job.
type JobError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Job tracks one document submission through the pipeline. The API returns a
// job ID on POST /api/v1/documents; the client polls until the state is
// terminal and then fetches the result.
type Job struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	State       JobState  `db:"state"        json:"state"`
	ContentType string    `db:"content_type" json:"content_type"`
	SourceRef   string    `db:"source_ref"   json:"-"`
	PageCount   *int      `db:"page_count"   json:"page_count,omitempty"`
	ResultRef   *string   `db:"result_ref"   json:"-"`
	Error       *JobError `db:"error"        json:"error,omitempty"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}
