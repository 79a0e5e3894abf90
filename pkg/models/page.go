package models

import (
	"time"

	"github.com/google/uuid"
)

// PageState is the per-page extraction state. It only advances forward,
// except for the retry transition failed -> in_flight which is bounded by
// the orchestrator's maximum attempt count.
type PageState string

const (
	PageStatePending   PageState = "pending"
	PageStateInFlight  PageState = "in_flight"
	PageStateSucceeded PageState = "succeeded"
	PageStateFailed    PageState = "failed"
)

// Terminal reports whether the page has reached a per-page outcome.
func (s PageState) Terminal() bool {
	return s == PageStateSucceeded || s == PageStateFailed
}

// Page is one unit of conversion/extraction work within a job. Pages are
// created exactly once, during conversion, with a contiguous page_index
// range [0, page_count).
type Page struct {
	JobID        uuid.UUID         `db:"job_id"        json:"job_id"`
	PageIndex    int               `db:"page_index"    json:"page_index"`
	RasterRef    string            `db:"raster_ref"    json:"-"`
	State        PageState         `db:"state"         json:"state"`
	AttemptCount int               `db:"attempt_count" json:"attempt_count"`
	LastError    *string           `db:"last_error"    json:"last_error,omitempty"`
	Result       *ExtractionResult `db:"result"        json:"result,omitempty"`
	CreatedAt    time.Time         `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at"    json:"updated_at"`
}
