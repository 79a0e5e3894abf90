package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/internal/pipeline"
	"github.com/docpipe/docpipe/internal/store"
	"github.com/docpipe/docpipe/pkg/models"
)

// mockPipeline implements Pipeline with configurable responses.
type mockPipeline struct {
	submitJob  *models.Job
	submitErr  error
	statusJob  *models.Job
	statusErr  error
	result     *models.JobResult
	resultErr  error
	listJobs   []*models.Job
	listTotal  int
	listErr    error
	listFilter store.JobFilter
	cancelErr  error
	deleteErr  error

	submitted   [][]byte
	submittedCT []string
	cancelled   []uuid.UUID
	deleted     []uuid.UUID
}

func (m *mockPipeline) Submit(ctx context.Context, document []byte, contentType string) (*models.Job, error) {
	m.submitted = append(m.submitted, document)
	m.submittedCT = append(m.submittedCT, contentType)
	return m.submitJob, m.submitErr
}

func (m *mockPipeline) GetStatus(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return m.statusJob, m.statusErr
}

func (m *mockPipeline) GetResult(ctx context.Context, jobID uuid.UUID) (*models.JobResult, error) {
	return m.result, m.resultErr
}

func (m *mockPipeline) ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	m.listFilter = filter
	return m.listJobs, m.listTotal, m.listErr
}

func (m *mockPipeline) Cancel(ctx context.Context, jobID uuid.UUID) error {
	m.cancelled = append(m.cancelled, jobID)
	return m.cancelErr
}

func (m *mockPipeline) Delete(ctx context.Context, jobID uuid.UUID) error {
	m.deleted = append(m.deleted, jobID)
	return m.deleteErr
}

func testJob(state models.JobState) *models.Job {
	return &models.Job{
		ID:          uuid.New(),
		State:       state,
		ContentType: "application/pdf",
	}
}

// route mounts a handler the way the router does so chi URL params resolve.
func route(method, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSubmitAcceptsDocument(t *testing.T) {
	job := testJob(models.JobStateQueued)
	mp := &mockPipeline{submitJob: job}
	h := NewSubmitHandler(mp, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte("%PDF-1.7")))
	req.Header.Set("Content-Type", "application/pdf")
	rec := route(http.MethodPost, "/documents", h, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, mp.submitted, 1)
	assert.Equal(t, []byte("%PDF-1.7"), mp.submitted[0])
	assert.Equal(t, "application/pdf", mp.submittedCT[0])

	var body struct {
		Data models.Job `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, job.ID, body.Data.ID)
	assert.Equal(t, models.JobStateQueued, body.Data.State)
}

func TestSubmitStripsContentTypeParams(t *testing.T) {
	mp := &mockPipeline{submitJob: testJob(models.JobStateQueued)}
	h := NewSubmitHandler(mp, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "image/png; charset=binary")
	route(http.MethodPost, "/documents", h, req)

	require.Len(t, mp.submittedCT, 1)
	assert.Equal(t, "image/png", mp.submittedCT[0])
}

func TestSubmitRejectsMissingContentType(t *testing.T) {
	mp := &mockPipeline{}
	h := NewSubmitHandler(mp, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte("x")))
	rec := route(http.MethodPost, "/documents", h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_CONTENT_TYPE")
	assert.Empty(t, mp.submitted)
}

func TestSubmitRejectsEmptyBody(t *testing.T) {
	mp := &mockPipeline{}
	h := NewSubmitHandler(mp, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/documents", nil)
	req.Header.Set("Content-Type", "application/pdf")
	rec := route(http.MethodPost, "/documents", h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "EMPTY_DOCUMENT")
}

func TestSubmitRejectsOversizedBody(t *testing.T) {
	mp := &mockPipeline{}
	h := NewSubmitHandler(mp, 8)

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(make([]byte, 64)))
	req.Header.Set("Content-Type", "application/pdf")
	rec := route(http.MethodPost, "/documents", h, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "DOCUMENT_TOO_LARGE")
	assert.Empty(t, mp.submitted)
}

func TestSubmitUnsupportedMediaType(t *testing.T) {
	mp := &mockPipeline{submitErr: pipeline.ErrUnsupportedMediaType}
	h := NewSubmitHandler(mp, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte("hello")))
	req.Header.Set("Content-Type", "text/plain")
	rec := route(http.MethodPost, "/documents", h, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNSUPPORTED_MEDIA_TYPE")
}

func TestSubmitQueueFull(t *testing.T) {
	mp := &mockPipeline{submitErr: pipeline.ErrQueueFull}
	h := NewSubmitHandler(mp, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte("%PDF-1.7")))
	req.Header.Set("Content-Type", "application/pdf")
	rec := route(http.MethodPost, "/documents", h, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}

func TestStatusReturnsJob(t *testing.T) {
	job := testJob(models.JobStateExtracting)
	mp := &mockPipeline{statusJob: job}
	h := NewStatusHandler(mp)

	req := httptest.NewRequest(http.MethodGet, "/documents/"+job.ID.String(), nil)
	rec := route(http.MethodGet, "/documents/{jobID}", h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data models.Job `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.JobStateExtracting, body.Data.State)
}

func TestStatusInvalidJobID(t *testing.T) {
	h := NewStatusHandler(&mockPipeline{})

	req := httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid", nil)
	rec := route(http.MethodGet, "/documents/{jobID}", h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_JOB_ID")
}

func TestStatusNotFound(t *testing.T) {
	mp := &mockPipeline{statusErr: pipeline.ErrNotFound}
	h := NewStatusHandler(mp)

	req := httptest.NewRequest(http.MethodGet, "/documents/"+uuid.NewString(), nil)
	rec := route(http.MethodGet, "/documents/{jobID}", h, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "JOB_NOT_FOUND")
}

func TestResultReturnsAggregatedResult(t *testing.T) {
	jobID := uuid.New()
	mp := &mockPipeline{result: &models.JobResult{
		JobID:        jobID,
		Completeness: models.CompletenessComplete,
		Pages: []models.PageOutcome{
			{PageIndex: 0, State: models.PageStateSucceeded, Attempts: 1},
		},
	}}
	h := NewResultHandler(mp)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/documents/%s/result", jobID), nil)
	rec := route(http.MethodGet, "/documents/{jobID}/result", h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data models.JobResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, jobID, body.Data.JobID)
	assert.Equal(t, models.CompletenessComplete, body.Data.Completeness)
	require.Len(t, body.Data.Pages, 1)
}

func TestResultNotReady(t *testing.T) {
	mp := &mockPipeline{resultErr: pipeline.ErrNotReady}
	h := NewResultHandler(mp)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/documents/%s/result", uuid.New()), nil)
	rec := route(http.MethodGet, "/documents/{jobID}/result", h, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "JOB_NOT_READY")
}

func TestResultNoResult(t *testing.T) {
	mp := &mockPipeline{resultErr: pipeline.ErrNoResult}
	h := NewResultHandler(mp)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/documents/%s/result", uuid.New()), nil)
	rec := route(http.MethodGet, "/documents/{jobID}/result", h, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "NO_RESULT")
}

func TestListDefaultsAndMeta(t *testing.T) {
	mp := &mockPipeline{
		listJobs:  []*models.Job{testJob(models.JobStateSucceeded)},
		listTotal: 41,
	}
	h := NewListHandler(mp)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := route(http.MethodGet, "/documents", h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.JobFilter{Page: 1, Limit: 20}, mp.listFilter)

	var body struct {
		Data []models.Job `json:"data"`
		Meta struct {
			Page    int  `json:"page"`
			Limit   int  `json:"limit"`
			Total   int  `json:"total"`
			HasNext bool `json:"has_next"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 41, body.Meta.Total)
	assert.True(t, body.Meta.HasNext)
}

func TestListFiltersByState(t *testing.T) {
	mp := &mockPipeline{}
	h := NewListHandler(mp)

	req := httptest.NewRequest(http.MethodGet, "/documents?state=failed&page=2&limit=10", nil)
	rec := route(http.MethodGet, "/documents", h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.JobFilter{State: models.JobStateFailed, Page: 2, Limit: 10}, mp.listFilter)
}

func TestListRejectsUnknownState(t *testing.T) {
	h := NewListHandler(&mockPipeline{})

	req := httptest.NewRequest(http.MethodGet, "/documents?state=exploded", nil)
	rec := route(http.MethodGet, "/documents", h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_STATE")
}

func TestListClampsLimit(t *testing.T) {
	mp := &mockPipeline{}
	h := NewListHandler(mp)

	req := httptest.NewRequest(http.MethodGet, "/documents?limit=5000", nil)
	route(http.MethodGet, "/documents", h, req)

	assert.Equal(t, 100, mp.listFilter.Limit)
}

func TestCancelReturnsCurrentJob(t *testing.T) {
	job := testJob(models.JobStateFailed)
	mp := &mockPipeline{statusJob: job}
	h := NewCancelHandler(mp)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/documents/%s/cancel", job.ID), nil)
	rec := route(http.MethodPost, "/documents/{jobID}/cancel", h, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, mp.cancelled, 1)
	assert.Equal(t, job.ID, mp.cancelled[0])
}

func TestCancelNotFound(t *testing.T) {
	mp := &mockPipeline{cancelErr: pipeline.ErrNotFound}
	h := NewCancelHandler(mp)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/documents/%s/cancel", uuid.New()), nil)
	rec := route(http.MethodPost, "/documents/{jobID}/cancel", h, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteIsIdempotent(t *testing.T) {
	mp := &mockPipeline{}
	h := NewDeleteHandler(mp)

	jobID := uuid.New()
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/documents/"+jobID.String(), nil)
		rec := route(http.MethodDelete, "/documents/{jobID}", h, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Len(t, mp.deleted, 2)
}
