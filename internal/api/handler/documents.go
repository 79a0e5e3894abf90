// Package handler contains the HTTP handlers for the document API. Handlers
// translate between HTTP and the pipeline; all processing semantics live
// behind the Pipeline interface.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docpipe/docpipe/internal/api/response"
	"github.com/docpipe/docpipe/internal/pipeline"
	"github.com/docpipe/docpipe/internal/store"
	"github.com/docpipe/docpipe/pkg/models"
)

// Pipeline defines the processing operations the handlers depend on.
type Pipeline interface {
	Submit(ctx context.Context, document []byte, contentType string) (*models.Job, error)
	GetStatus(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	GetResult(ctx context.Context, jobID uuid.UUID) (*models.JobResult, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error)
	Cancel(ctx context.Context, jobID uuid.UUID) error
	Delete(ctx context.Context, jobID uuid.UUID) error
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// NewSubmitHandler returns the handler for POST /api/v1/documents. The raw
// document is the request body; its media type comes from the Content-Type
// header.
func NewSubmitHandler(p Pipeline, maxUploadSize int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")
		if i := strings.IndexByte(contentType, ';'); i >= 0 {
			contentType = strings.TrimSpace(contentType[:i])
		}
		if contentType == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_CONTENT_TYPE",
				"Content-Type header is required", nil)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		document, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE",
					"Document exceeds the upload size limit", map[string]any{"limit_bytes": tooLarge.Limit})
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body", nil)
			return
		}
		if len(document) == 0 {
			response.Error(w, http.StatusBadRequest, "EMPTY_DOCUMENT", "Request body is empty", nil)
			return
		}

		job, err := p.Submit(r.Context(), document, contentType)
		switch {
		case err == nil:
			response.Accepted(w, job)
		case errors.Is(err, pipeline.ErrUnsupportedMediaType):
			response.Error(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
				"No converter accepts this media type", map[string]any{"content_type": contentType})
		case errors.Is(err, pipeline.ErrQueueFull):
			w.Header().Set("Retry-After", "5")
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_FULL",
				"The submission queue is full, retry later", nil)
		default:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
		}
	}
}

// NewStatusHandler returns the handler for GET /api/v1/documents/{jobID}.
func NewStatusHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		job, err := p.GetStatus(r.Context(), jobID)
		switch {
		case err == nil:
			response.JSON(w, job)
		case errors.Is(err, pipeline.ErrNotFound):
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No such job", nil)
		default:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
		}
	}
}

// NewResultHandler returns the handler for
// GET /api/v1/documents/{jobID}/result. Results exist only for terminal
// jobs; polling a running job yields 409.
func NewResultHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		result, err := p.GetResult(r.Context(), jobID)
		switch {
		case err == nil:
			response.JSON(w, result)
		case errors.Is(err, pipeline.ErrNotFound):
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No such job", nil)
		case errors.Is(err, pipeline.ErrNotReady):
			response.Error(w, http.StatusConflict, "JOB_NOT_READY",
				"The job has not reached a terminal state yet", nil)
		case errors.Is(err, pipeline.ErrNoResult):
			response.Error(w, http.StatusConflict, "NO_RESULT",
				"The job finished without producing a result", nil)
		default:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
		}
	}
}

// NewListHandler returns the handler for GET /api/v1/documents.
func NewListHandler(p Pipeline) http.HandlerFunc {
	validStates := map[models.JobState]bool{
		models.JobStateQueued:      true,
		models.JobStateConverting:  true,
		models.JobStateExtracting:  true,
		models.JobStateAggregating: true,
		models.JobStateSucceeded:   true,
		models.JobStatePartial:     true,
		models.JobStateFailed:      true,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := store.JobFilter{Page: 1, Limit: defaultListLimit}
		if raw := q.Get("state"); raw != "" {
			state := models.JobState(raw)
			if !validStates[state] {
				response.Error(w, http.StatusBadRequest, "INVALID_STATE",
					"Unknown job state", map[string]any{"state": raw})
				return
			}
			filter.State = state
		}
		if raw := q.Get("page"); raw != "" {
			page, err := strconv.Atoi(raw)
			if err != nil || page < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_PAGE", "page must be a positive integer", nil)
				return
			}
			filter.Page = page
		}
		if raw := q.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", nil)
				return
			}
			if limit > maxListLimit {
				limit = maxListLimit
			}
			filter.Limit = limit
		}

		jobs, total, err := p.ListJobs(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if jobs == nil {
			jobs = []*models.Job{}
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

// NewCancelHandler returns the handler for
// POST /api/v1/documents/{jobID}/cancel. Cancelling a terminal job is a
// no-op; the response always carries the job's current record.
func NewCancelHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		err := p.Cancel(r.Context(), jobID)
		if errors.Is(err, pipeline.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No such job", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		job, err := p.GetStatus(r.Context(), jobID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.Accepted(w, job)
	}
}

// NewDeleteHandler returns the handler for DELETE /api/v1/documents/{jobID}.
// Deletion is idempotent: unknown jobs also yield 204.
func NewDeleteHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		if err := p.Delete(r.Context(), jobID); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.NoContent(w)
	}
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID",
			"Job ID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return jobID, true
}
