// Package aggregate merges per-page extraction outcomes into a single
// ordered JobResult.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/docpipe/docpipe/pkg/models"
)

// Build assembles the JobResult for a job whose pages have all reached a
// terminal per-page state. Output order is always page_index ascending,
// regardless of the order extractions completed, and the output always has
// one entry per page: failed pages contribute a placeholder carrying their
// last error.
//
// Completeness is complete only when every page succeeded; any failed page
// makes it partial (including the degenerate all-failed case — the
// orchestrator, not the aggregator, decides how the job itself terminates).
func Build(jobID uuid.UUID, pageCount int, pages []*models.Page) (*models.JobResult, error) {
	if len(pages) != pageCount {
		return nil, fmt.Errorf("job %s: have %d pages, expected %d", jobID, len(pages), pageCount)
	}

	sorted := make([]*models.Page, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PageIndex < sorted[j].PageIndex
	})

	result := &models.JobResult{
		JobID:        jobID,
		Completeness: models.CompletenessComplete,
		Pages:        make([]models.PageOutcome, 0, pageCount),
	}

	for i, p := range sorted {
		if p.PageIndex != i {
			return nil, fmt.Errorf("job %s: page indexes not contiguous at %d", jobID, p.PageIndex)
		}
		if !p.State.Terminal() {
			return nil, fmt.Errorf("job %s: page %d still %s", jobID, p.PageIndex, p.State)
		}

		outcome := models.PageOutcome{
			PageIndex: p.PageIndex,
			State:     p.State,
			Attempts:  p.AttemptCount,
		}
		switch p.State {
		case models.PageStateSucceeded:
			outcome.Result = p.Result
		case models.PageStateFailed:
			outcome.Error = p.LastError
			result.Completeness = models.CompletenessPartial
		}
		result.Pages = append(result.Pages, outcome)
	}

	return result, nil
}

// SucceededCount reports how many entries of a built result succeeded.
func SucceededCount(r *models.JobResult) int {
	n := 0
	for _, p := range r.Pages {
		if p.State == models.PageStateSucceeded {
			n++
		}
	}
	return n
}
