package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docpipe/docpipe/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, state, content_type, source_ref, page_count, result_ref, error, created_at, updated_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	var errJSON []byte
	if job.Error != nil {
		var err error
		errJSON, err = json.Marshal(job.Error)
		if err != nil {
			return fmt.Errorf("encode job error: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, state, content_type, source_ref, page_count, result_ref, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.State, job.ContentType, job.SourceRef, job.PageCount, job.ResultRef, errJSON,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	where := ""
	args := []any{}
	if filter.State != "" {
		where = "WHERE state = $1"
		args = append(args, filter.State)
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM jobs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			jobColumns, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

func (s *PostgresStore) TransitionJob(ctx context.Context, id uuid.UUID, from, to models.JobState, opts ...JobUpdateOption) (bool, error) {
	p := ApplyJobOptions(opts...)

	set := []string{"state = $3", "updated_at = NOW()"}
	args := []any{id, from, to}
	if p.Error != nil {
		errJSON, err := json.Marshal(p.Error)
		if err != nil {
			return false, fmt.Errorf("encode job error: %w", err)
		}
		args = append(args, errJSON)
		set = append(set, fmt.Sprintf("error = $%d", len(args)))
	}
	if p.ResultRef != nil {
		args = append(args, *p.ResultRef)
		set = append(set, fmt.Sprintf("result_ref = $%d", len(args)))
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE jobs SET %s WHERE id = $1 AND state = $2`, strings.Join(set, ", ")),
		args...)
	if err != nil {
		return false, fmt.Errorf("transition job %s -> %s: %w", from, to, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// --- Pages ---

const pageColumns = `job_id, page_index, raster_ref, state, attempt_count, last_error, result, created_at, updated_at`

func (s *PostgresStore) CreatePages(ctx context.Context, jobID uuid.UUID, rasterRefs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create pages: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, ref := range rasterRefs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO pages (job_id, page_index, raster_ref, state, attempt_count, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, 0, NOW(), NOW())`,
			jobID, i, ref, models.PageStatePending); err != nil {
			return fmt.Errorf("insert page %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE jobs SET page_count = $2, updated_at = NOW() WHERE id = $1`,
		jobID, len(rasterRefs)); err != nil {
		return fmt.Errorf("set page count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create pages: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPage(ctx context.Context, jobID uuid.UUID, pageIndex int) (*models.Page, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE job_id = $1 AND page_index = $2`, jobID, pageIndex)
	page, err := scanPage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	return page, nil
}

func (s *PostgresStore) ListPages(ctx context.Context, jobID uuid.UUID) ([]*models.Page, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE job_id = $1 ORDER BY page_index ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []*models.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

func (s *PostgresStore) TransitionPage(ctx context.Context, jobID uuid.UUID, pageIndex int, from, to models.PageState, opts ...PageUpdateOption) (bool, error) {
	p := ApplyPageOptions(opts...)

	set := []string{"state = $4", "updated_at = NOW()"}
	args := []any{jobID, pageIndex, from, to}
	if to == models.PageStateInFlight {
		set = append(set, "attempt_count = attempt_count + 1")
	}
	if p.Result != nil {
		resJSON, err := json.Marshal(p.Result)
		if err != nil {
			return false, fmt.Errorf("encode page result: %w", err)
		}
		args = append(args, resJSON)
		set = append(set, fmt.Sprintf("result = $%d", len(args)))
	}
	if p.LastError != nil {
		args = append(args, *p.LastError)
		set = append(set, fmt.Sprintf("last_error = $%d", len(args)))
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE pages SET %s WHERE job_id = $1 AND page_index = $2 AND state = $3`,
			strings.Join(set, ", ")),
		args...)
	if err != nil {
		return false, fmt.Errorf("transition page %s -> %s: %w", from, to, err)
	}
	return tag.RowsAffected() == 1, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var errJSON []byte
	if err := row.Scan(&j.ID, &j.State, &j.ContentType, &j.SourceRef, &j.PageCount,
		&j.ResultRef, &errJSON, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if len(errJSON) > 0 {
		j.Error = &models.JobError{}
		if err := json.Unmarshal(errJSON, j.Error); err != nil {
			return nil, fmt.Errorf("decode job error: %w", err)
		}
	}
	return &j, nil
}

func scanPage(row rowScanner) (*models.Page, error) {
	var p models.Page
	var resJSON []byte
	if err := row.Scan(&p.JobID, &p.PageIndex, &p.RasterRef, &p.State, &p.AttemptCount,
		&p.LastError, &resJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if len(resJSON) > 0 {
		p.Result = &models.ExtractionResult{}
		if err := json.Unmarshal(resJSON, p.Result); err != nil {
			return nil, fmt.Errorf("decode page result: %w", err)
		}
	}
	return &p, nil
}
