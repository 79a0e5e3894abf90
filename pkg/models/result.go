package models

import "github.com/google/uuid"

// Completeness of an aggregated job result.
const (
	CompletenessComplete = "complete"
	CompletenessPartial  = "partial"
)

// PageOutcome is one entry in the aggregated result, in page_index order.
// Failed pages contribute a placeholder carrying their last error rather
// than being absent, so len(JobResult.Pages) always equals the page count.
type PageOutcome struct {
	PageIndex int               `json:"page_index"`
	State     PageState         `json:"state"`
	Result    *ExtractionResult `json:"result,omitempty"`
	Error     *string           `json:"error,omitempty"`
	Attempts  int               `json:"attempts"`
}

// JobResult is the merged output of a job's per-page extractions.
type JobResult struct {
	JobID        uuid.UUID     `json:"job_id"`
	Completeness string        `json:"completeness"`
	Pages        []PageOutcome `json:"pages"`
}
