package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/docpipe/docpipe/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the job/page metadata interface. It is the single source of
// truth for pipeline state; workers never share raw mutable structures.
// Every state transition is a compare-and-set keyed by job_id or
// (job_id, page_index), so two workers can never both win a transition out
// of the same state.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	// TransitionJob atomically moves the job from `from` to `to`, applying
	// opts in the same update. Returns false when the job was not in `from`
	// (another worker won the race, or the job does not exist).
	TransitionJob(ctx context.Context, id uuid.UUID, from, to models.JobState, opts ...JobUpdateOption) (bool, error)
	// DeleteJob removes the job and, by cascade, its pages. Deleting an
	// unknown job is a no-op.
	DeleteJob(ctx context.Context, id uuid.UUID) error

	// CreatePages inserts one pending page per raster ref and records the
	// job's page_count, all in one transaction: either every page exists or
	// none does.
	CreatePages(ctx context.Context, jobID uuid.UUID, rasterRefs []string) error
	GetPage(ctx context.Context, jobID uuid.UUID, pageIndex int) (*models.Page, error)
	ListPages(ctx context.Context, jobID uuid.UUID) ([]*models.Page, error)
	// TransitionPage is the page-level CAS. A transition into in_flight
	// increments attempt_count atomically.
	TransitionPage(ctx context.Context, jobID uuid.UUID, pageIndex int, from, to models.PageState, opts ...PageUpdateOption) (bool, error)
}

// JobFilter selects and paginates jobs for listing.
type JobFilter struct {
	State models.JobState
	Page  int
	Limit int
}

// JobUpdate carries the extra columns a job transition writes. Exported so
// alternative Store implementations can apply the same options.
type JobUpdate struct {
	Error     *models.JobError
	ResultRef *string
}

type JobUpdateOption func(*JobUpdate)

// ApplyJobOptions folds opts into a JobUpdate.
func ApplyJobOptions(opts ...JobUpdateOption) JobUpdate {
	var u JobUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithJobError(e models.JobError) JobUpdateOption {
	return func(u *JobUpdate) {
		u.Error = &e
	}
}

func WithResultRef(ref string) JobUpdateOption {
	return func(u *JobUpdate) {
		u.ResultRef = &ref
	}
}

// PageUpdate carries the extra columns a page transition writes.
type PageUpdate struct {
	Result    *models.ExtractionResult
	LastError *string
}

type PageUpdateOption func(*PageUpdate)

// ApplyPageOptions folds opts into a PageUpdate.
func ApplyPageOptions(opts ...PageUpdateOption) PageUpdate {
	var u PageUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithPageResult(r models.ExtractionResult) PageUpdateOption {
	return func(u *PageUpdate) {
		u.Result = &r
	}
}

func WithPageError(msg string) PageUpdateOption {
	return func(u *PageUpdate) {
		u.LastError = &msg
	}
}
