package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docpipe/docpipe/internal/aggregate"
	"github.com/docpipe/docpipe/internal/blob"
	"github.com/docpipe/docpipe/internal/cache"
	"github.com/docpipe/docpipe/internal/convert"
	"github.com/docpipe/docpipe/internal/extract"
	"github.com/docpipe/docpipe/internal/store"
	"github.com/docpipe/docpipe/pkg/models"
)

// Orchestrator drives jobs through queued -> converting -> extracting ->
// aggregating -> terminal. All shared state lives in the store and every
// transition is a CAS, so concurrent workers can never double-process a
// page or double-aggregate a job.
type Orchestrator struct {
	store     store.Store
	blobs     blob.Store
	converter convert.Converter
	extractor models.Extractor
	cache     cache.Cache
	cfg       Config

	queue      chan uuid.UUID
	extractSem chan struct{}

	cancelMu sync.Mutex
	cancels  map[uuid.UUID]context.CancelFunc

	wg sync.WaitGroup
}

// New builds an Orchestrator. The cache may be nil (dev/test); everything
// else is required.
func New(st store.Store, blobs blob.Store, converter convert.Converter, extractor models.Extractor, ca cache.Cache, cfg Config) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		store:      st,
		blobs:      blobs,
		converter:  converter,
		extractor:  extractor,
		cache:      ca,
		cfg:        cfg,
		queue:      make(chan uuid.UUID, cfg.QueueSize),
		extractSem: make(chan struct{}, cfg.MaxExtractions),
		cancels:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.cfg.JobWorkers; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}
}

// Wait blocks until every worker has drained its current job.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Recover reconciles jobs left behind by a previous run. Queued jobs are
// re-enqueued; jobs stranded mid-processing are failed with a retryable
// error, since their in-memory progress is gone.
func (o *Orchestrator) Recover(ctx context.Context) error {
	const batch = 100

	requeued := 0
	for page := 1; ; page++ {
		jobs, _, err := o.store.ListJobs(ctx, store.JobFilter{State: models.JobStateQueued, Page: page, Limit: batch})
		if err != nil {
			return fmt.Errorf("list queued jobs: %w", err)
		}
		for _, job := range jobs {
			if err := o.Enqueue(job.ID); err != nil {
				return err
			}
			requeued++
		}
		if len(jobs) < batch {
			break
		}
	}

	stranded := 0
	for _, state := range []models.JobState{
		models.JobStateConverting,
		models.JobStateExtracting,
		models.JobStateAggregating,
	} {
		// Failing a job removes it from this filter, so page 1 is refetched
		// until the state drains.
		for {
			jobs, _, err := o.store.ListJobs(ctx, store.JobFilter{State: state, Page: 1, Limit: batch})
			if err != nil {
				return fmt.Errorf("list %s jobs: %w", state, err)
			}
			if len(jobs) == 0 {
				break
			}
			for _, job := range jobs {
				ok, err := o.store.TransitionJob(ctx, job.ID, state, models.JobStateFailed,
					store.WithJobError(models.JobError{
						Kind:      models.ErrKindIO,
						Message:   "processing interrupted by shutdown",
						Retryable: true,
					}))
				if err != nil {
					return fmt.Errorf("fail stranded job %s: %w", job.ID, err)
				}
				if ok {
					o.cacheState(ctx, job.ID, models.JobStateFailed)
					stranded++
				}
			}
			if len(jobs) < batch {
				break
			}
		}
	}

	if requeued > 0 || stranded > 0 {
		slog.Info("recovered jobs from previous run", "requeued", requeued, "stranded_failed", stranded)
	}
	return nil
}

func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.wg.Done()
	slog.Debug("pipeline worker started", "worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-o.queue:
			o.processJob(ctx, jobID)
		}
	}
}

// --- operations exposed to the API surface ---

// Submit stores the upload, creates a queued job, and enqueues it.
func (o *Orchestrator) Submit(ctx context.Context, document []byte, contentType string) (*models.Job, error) {
	if !o.converter.Supports(contentType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, contentType)
	}

	sourceRef, err := o.blobs.Put(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		State:       models.JobStateQueued,
		ContentType: contentType,
		SourceRef:   sourceRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		_ = o.blobs.Delete(ctx, sourceRef)
		return nil, fmt.Errorf("create job: %w", err)
	}
	o.cacheState(ctx, job.ID, models.JobStateQueued)

	select {
	case o.queue <- job.ID:
	default:
		_ = o.store.DeleteJob(ctx, job.ID)
		_ = o.blobs.Delete(ctx, sourceRef)
		return nil, ErrQueueFull
	}

	slog.Info("job submitted", "job_id", job.ID, "content_type", contentType, "bytes", len(document))
	return job, nil
}

// Enqueue re-queues an existing job. Re-processing a terminal job is a
// no-op in processJob, so this is safe to call at any time.
func (o *Orchestrator) Enqueue(jobID uuid.UUID) error {
	select {
	case o.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// GetStatus returns the authoritative job record. Terminal jobs are served
// from the cache when possible; a terminal snapshot can never be stale.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	if cached, ok := o.cachedTerminal(ctx, jobID); ok {
		return cached, nil
	}

	job, err := o.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		o.cacheTerminal(ctx, job)
	}
	return job, nil
}

// GetResult returns the aggregated result of a terminal job.
func (o *Orchestrator) GetResult(ctx context.Context, jobID uuid.UUID) (*models.JobResult, error) {
	job, err := o.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.State.Terminal() {
		return nil, ErrNotReady
	}
	if job.ResultRef == nil {
		return nil, ErrNoResult
	}

	raw, err := o.blobs.Get(ctx, *job.ResultRef)
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	var result models.JobResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

// ListJobs pages through jobs for the listing endpoint.
func (o *Orchestrator) ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	return o.store.ListJobs(ctx, filter)
}

// Cancel stops a non-terminal job. Queued jobs fail immediately; converting
// and extracting jobs stop scheduling new page work and fail once in-flight
// calls drain. Cancelling a terminal or already-cancelled job is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return nil
	}

	// A still-queued job has no in-flight work; fail it directly.
	ok, err := o.store.TransitionJob(ctx, jobID, models.JobStateQueued, models.JobStateFailed,
		store.WithJobError(models.JobError{Kind: models.ErrKindCancelled, Message: "cancelled before processing"}))
	if err != nil {
		return err
	}
	if ok {
		o.cacheState(ctx, jobID, models.JobStateFailed)
		slog.Info("job cancelled while queued", "job_id", jobID)
		return nil
	}

	// A worker owns it: signal its context and let the drain path finish.
	o.cancelMu.Lock()
	cancel, found := o.cancels[jobID]
	o.cancelMu.Unlock()
	if found {
		cancel()
	}
	slog.Info("job cancellation requested", "job_id", jobID)
	return nil
}

// Delete removes the job, its pages, and all owned artifacts. Unknown jobs
// are a no-op success.
func (o *Orchestrator) Delete(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	// Stop any in-flight processing before tearing artifacts down.
	o.cancelMu.Lock()
	if cancel, found := o.cancels[jobID]; found {
		cancel()
	}
	o.cancelMu.Unlock()

	pages, err := o.store.ListPages(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		_ = o.blobs.Delete(ctx, p.RasterRef)
	}
	_ = o.blobs.Delete(ctx, job.SourceRef)
	if job.ResultRef != nil {
		_ = o.blobs.Delete(ctx, *job.ResultRef)
	}

	if err := o.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	if o.cache != nil {
		_ = o.cache.Delete(ctx, cache.JobStateKey(jobID))
		_ = o.cache.Delete(ctx, terminalKey(jobID))
	}
	slog.Info("job deleted", "job_id", jobID, "pages", len(pages))
	return nil
}

// --- pipeline stages ---

func (o *Orchestrator) processJob(ctx context.Context, jobID uuid.UUID) {
	// Terminal fast path: a terminal state in the cache is immutable.
	if state, ok := o.cachedState(ctx, jobID); ok && state.Terminal() {
		return
	}

	job, err := o.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		slog.Error("load job", "job_id", jobID, "error", err)
		return
	}
	// At-most-once completion: never re-execute a terminal job.
	if job.State.Terminal() {
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancelMu.Lock()
	o.cancels[jobID] = cancel
	o.cancelMu.Unlock()
	defer func() {
		o.cancelMu.Lock()
		delete(o.cancels, jobID)
		o.cancelMu.Unlock()
	}()

	ok, err := o.store.TransitionJob(ctx, jobID, models.JobStateQueued, models.JobStateConverting)
	if err != nil {
		slog.Error("transition to converting", "job_id", jobID, "error", err)
		return
	}
	if !ok {
		// Lost the dequeue race, or the job was cancelled meanwhile.
		return
	}
	o.cacheState(ctx, jobID, models.JobStateConverting)

	refs, convErr := o.convertJob(jobCtx, job)
	if convErr != nil {
		o.failFrom(ctx, jobID, models.JobStateConverting, jobCtx, convErr)
		return
	}

	if err := o.store.CreatePages(ctx, jobID, refs); err != nil {
		slog.Error("create pages", "job_id", jobID, "error", err)
		o.failFrom(ctx, jobID, models.JobStateConverting, jobCtx,
			&models.JobError{Kind: models.ErrKindIO, Message: "persist pages: " + err.Error(), Retryable: true})
		return
	}

	ok, err = o.store.TransitionJob(ctx, jobID, models.JobStateConverting, models.JobStateExtracting)
	if err != nil || !ok {
		return
	}
	o.cacheState(ctx, jobID, models.JobStateExtracting)
	slog.Info("job converting done", "job_id", jobID, "pages", len(refs))

	o.extractJob(ctx, jobCtx, jobID, refs)

	// Barrier passed: every page is terminal and nothing is in flight.
	if jobCtx.Err() != nil {
		o.failFrom(ctx, jobID, models.JobStateExtracting, jobCtx, nil)
		return
	}

	o.aggregateJob(ctx, jobID, len(refs))
}

// convertJob rasterizes the source document. It returns the ordered page
// refs or a structured job error.
func (o *Orchestrator) convertJob(jobCtx context.Context, job *models.Job) ([]string, *models.JobError) {
	source, err := o.blobs.Get(jobCtx, job.SourceRef)
	if err != nil {
		return nil, &models.JobError{Kind: models.ErrKindIO, Message: "load source: " + err.Error(), Retryable: true}
	}

	refs, err := o.converter.Convert(jobCtx, source, job.ContentType)
	if err != nil {
		ce := convert.AsError(err)
		return nil, &models.JobError{Kind: ce.Kind, Message: ce.Error(), Retryable: ce.Retryable}
	}
	if len(refs) == 0 {
		return nil, &models.JobError{Kind: models.ErrKindCorrupt, Message: "document produced no pages"}
	}
	return refs, nil
}

// extractJob runs all page extractions under the global and per-job
// concurrency caps and returns once every page is terminal (the barrier).
func (o *Orchestrator) extractJob(ctx, jobCtx context.Context, jobID uuid.UUID, refs []string) {
	perJob := make(chan struct{}, o.cfg.PerJobExtractions)
	var wg sync.WaitGroup
	for i := range refs {
		wg.Add(1)
		go func(pageIndex int, rasterRef string) {
			defer wg.Done()
			o.processPage(ctx, jobCtx, jobID, pageIndex, rasterRef, perJob)
		}(i, refs[i])
	}
	wg.Wait()
}

// processPage drives one page to a terminal state, retrying retryable
// failures with backoff up to the attempt ceiling. Sibling pages are never
// affected by this page's outcome.
func (o *Orchestrator) processPage(ctx, jobCtx context.Context, jobID uuid.UUID, pageIndex int, rasterRef string, perJob chan struct{}) {
	from := models.PageStatePending

	for attempt := 1; ; attempt++ {
		// Cancellation stops scheduling new work; whatever state the page is
		// in stays put and the job-level drain path takes over.
		select {
		case <-jobCtx.Done():
			return
		case perJob <- struct{}{}:
		}

		select {
		case <-jobCtx.Done():
			<-perJob
			return
		case o.extractSem <- struct{}{}:
		}

		result, err := o.attemptPage(jobCtx, jobID, pageIndex, rasterRef, from)

		<-o.extractSem
		<-perJob

		if err == nil {
			if result != nil {
				slog.Debug("page extracted", "job_id", jobID, "page", pageIndex, "attempt", attempt)
			}
			return
		}

		ee := extract.Classify(err)
		msg := ee.Error()

		// A result computed for a cancelled job is discarded, not recorded.
		if jobCtx.Err() != nil {
			_, _ = o.store.TransitionPage(ctx, jobID, pageIndex, models.PageStateInFlight, models.PageStateFailed,
				store.WithPageError("job cancelled"))
			return
		}

		retryable := ee.Retryable && attempt < o.cfg.MaxAttempts
		if ok, terr := o.store.TransitionPage(ctx, jobID, pageIndex, models.PageStateInFlight, models.PageStateFailed,
			store.WithPageError(msg)); terr != nil || !ok {
			return
		}

		if !retryable {
			slog.Warn("page failed terminally",
				"job_id", jobID, "page", pageIndex, "attempt", attempt, "kind", ee.Kind, "error", msg)
			return
		}

		delay := backoffDelay(o.cfg.RetryBackoffBase, o.cfg.RetryBackoffCap, attempt)
		slog.Debug("page retry scheduled",
			"job_id", jobID, "page", pageIndex, "attempt", attempt, "delay", delay)
		select {
		case <-jobCtx.Done():
			return
		case <-time.After(delay):
		}
		from = models.PageStateFailed
	}
}

// attemptPage performs a single extraction attempt. A nil error with nil
// result means another worker already owned the page.
func (o *Orchestrator) attemptPage(jobCtx context.Context, jobID uuid.UUID, pageIndex int, rasterRef string, from models.PageState) (*models.ExtractionResult, error) {
	ok, err := o.store.TransitionPage(jobCtx, jobID, pageIndex, from, models.PageStateInFlight)
	if err != nil || !ok {
		return nil, nil
	}

	image, err := o.blobs.Get(jobCtx, rasterRef)
	if err != nil {
		return nil, extract.ProviderError(fmt.Errorf("load page raster: %w", err), true)
	}

	callCtx, cancel := context.WithTimeout(jobCtx, o.cfg.ExtractTimeout)
	defer cancel()

	result, err := o.extractor.Extract(callCtx, models.ExtractionRequest{
		Image:     image,
		PageIndex: pageIndex,
	})
	if err != nil {
		return nil, err
	}
	if jobCtx.Err() != nil {
		return nil, jobCtx.Err()
	}

	ok, err = o.store.TransitionPage(jobCtx, jobID, pageIndex, models.PageStateInFlight, models.PageStateSucceeded,
		store.WithPageResult(result))
	if err != nil || !ok {
		return nil, nil
	}
	return &result, nil
}

// aggregateJob merges page outcomes, persists the result artifact, and
// moves the job to its terminal state.
func (o *Orchestrator) aggregateJob(ctx context.Context, jobID uuid.UUID, pageCount int) {
	ok, err := o.store.TransitionJob(ctx, jobID, models.JobStateExtracting, models.JobStateAggregating)
	if err != nil || !ok {
		return
	}
	o.cacheState(ctx, jobID, models.JobStateAggregating)

	pages, err := o.store.ListPages(ctx, jobID)
	if err != nil {
		slog.Error("list pages for aggregation", "job_id", jobID, "error", err)
		return
	}

	result, err := aggregate.Build(jobID, pageCount, pages)
	if err != nil {
		slog.Error("aggregate job", "job_id", jobID, "error", err)
		o.terminate(ctx, jobID, models.JobStateFailed,
			store.WithJobError(models.JobError{Kind: models.ErrKindIO, Message: err.Error()}))
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		slog.Error("encode result", "job_id", jobID, "error", err)
		return
	}
	resultRef, err := o.blobs.Put(ctx, raw)
	if err != nil {
		slog.Error("store result", "job_id", jobID, "error", err)
		o.terminate(ctx, jobID, models.JobStateFailed,
			store.WithJobError(models.JobError{Kind: models.ErrKindIO, Message: "store result: " + err.Error(), Retryable: true}))
		return
	}

	succeeded := aggregate.SucceededCount(result)
	switch {
	case succeeded == pageCount:
		o.terminate(ctx, jobID, models.JobStateSucceeded, store.WithResultRef(resultRef))
	case succeeded > 0:
		o.terminate(ctx, jobID, models.JobStatePartial, store.WithResultRef(resultRef))
	default:
		// Zero pages succeeded: the job failed, but the result artifact is
		// still kept so callers can enumerate every page's error.
		o.terminate(ctx, jobID, models.JobStateFailed,
			store.WithResultRef(resultRef),
			store.WithJobError(models.JobError{Kind: models.ErrKindRetryExhausted, Message: "all pages failed extraction"}))
	}
	slog.Info("job finished", "job_id", jobID, "pages", pageCount, "succeeded", succeeded)
}

// failFrom marks the job failed out of the given state. When jobErr is nil
// the failure is a cancellation.
func (o *Orchestrator) failFrom(ctx context.Context, jobID uuid.UUID, from models.JobState, jobCtx context.Context, jobErr *models.JobError) {
	if jobErr == nil || jobCtx.Err() != nil {
		jobErr = &models.JobError{Kind: models.ErrKindCancelled, Message: "job cancelled"}
	}
	ok, err := o.store.TransitionJob(ctx, jobID, from, models.JobStateFailed, store.WithJobError(*jobErr))
	if err != nil {
		slog.Error("fail job", "job_id", jobID, "from", from, "error", err)
		return
	}
	if ok {
		o.cacheState(ctx, jobID, models.JobStateFailed)
		slog.Warn("job failed", "job_id", jobID, "from", from, "kind", jobErr.Kind, "error", jobErr.Message)
	}
}

func (o *Orchestrator) terminate(ctx context.Context, jobID uuid.UUID, state models.JobState, opts ...store.JobUpdateOption) {
	ok, err := o.store.TransitionJob(ctx, jobID, models.JobStateAggregating, state, opts...)
	if err != nil || !ok {
		return
	}
	o.cacheState(ctx, jobID, state)
	if job, err := o.store.GetJob(ctx, jobID); err == nil {
		o.cacheTerminal(ctx, job)
	}
}

// --- cache helpers (cache is optional and best-effort) ---

func terminalKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:terminal", jobID)
}

func (o *Orchestrator) cacheState(ctx context.Context, jobID uuid.UUID, state models.JobState) {
	if o.cache == nil {
		return
	}
	_ = o.cache.SetJobState(ctx, jobID, state, o.cfg.StateCacheTTL)
}

func (o *Orchestrator) cachedState(ctx context.Context, jobID uuid.UUID) (models.JobState, bool) {
	if o.cache == nil {
		return "", false
	}
	state, ok, err := o.cache.GetJobState(ctx, jobID)
	if err != nil {
		return "", false
	}
	return state, ok
}

// cacheTerminal stores the full terminal job record. Terminal records are
// immutable, so serving them from cache can never violate monotonicity.
func (o *Orchestrator) cacheTerminal(ctx context.Context, job *models.Job) {
	if o.cache == nil || !job.State.Terminal() {
		return
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	_ = o.cache.Set(ctx, terminalKey(job.ID), raw, o.cfg.StateCacheTTL)
}

func (o *Orchestrator) cachedTerminal(ctx context.Context, jobID uuid.UUID) (*models.Job, bool) {
	if o.cache == nil {
		return nil, false
	}
	raw, ok, err := o.cache.Get(ctx, terminalKey(jobID))
	if err != nil || !ok {
		return nil, false
	}
	var job models.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, false
	}
	return &job, true
}
