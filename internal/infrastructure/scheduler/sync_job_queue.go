package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/logger"
	"github.com/retailhub/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// SyncJobQueueConfig
// ---------------------------------------------------------------------------

// SyncJobQueueConfig holds configuration for the sync job queue
type SyncJobQueueConfig struct {
	// Workers is the number of jobs executed concurrently
	Workers int
	// QueueSize bounds the number of jobs waiting for a worker
	QueueSize int
	// MaxRetries is the number of retries after the first failed attempt
	MaxRetries int
	// InitialBackoff is the delay before the first retry; it doubles per retry
	InitialBackoff time.Duration
	// MaxBackoff caps the retry delay
	MaxBackoff time.Duration
	// JobTimeout is the maximum time one attempt can run
	JobTimeout time.Duration
	// HistorySize is the number of finished jobs kept for inspection
	HistorySize int
	// AutoInterval enqueues a full sync of every kind periodically; 0 disables it
	AutoInterval time.Duration
}

// DefaultSyncJobQueueConfig returns default configuration
func DefaultSyncJobQueueConfig() SyncJobQueueConfig {
	return SyncJobQueueConfig{
		Workers:        1,
		QueueSize:      100,
		MaxRetries:     3,
		InitialBackoff: 30 * time.Second,
		MaxBackoff:     10 * time.Minute,
		JobTimeout:     30 * time.Minute,
		HistorySize:    200,
	}
}

// Validate validates the configuration
func (c *SyncJobQueueConfig) Validate() error {
	if c.Workers <= 0 || c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxRetries < 0 {
		return ErrInvalidConfig
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 || c.HistorySize <= 0 {
		return ErrInvalidConfig
	}
	if c.AutoInterval < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Backoff returns the delay before the given retry (1-based)
func (c *SyncJobQueueConfig) Backoff(retry int) time.Duration {
	delay := c.InitialBackoff
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(delay, c.MaxBackoff)
}

// ---------------------------------------------------------------------------
// SyncJobQueue
// ---------------------------------------------------------------------------

// jobEntry is the queue's mutable state of one job; guarded by SyncJobQueue.mu
type jobEntry struct {
	job      SyncJob
	done     chan struct{}
	cancel   context.CancelFunc
	retry    *time.Timer
	canceled bool
}

// SyncJobQueue runs sync jobs on a bounded worker pool with per-job cancel
// and bounded retry with exponential backoff. Jobs live in memory only.
type SyncJobQueue struct {
	config   SyncJobQueueConfig
	executor SyncJobExecutor
	logger   *zap.Logger
	metrics  *telemetry.SyncMetrics
	now      func() time.Time

	queue     chan *jobEntry
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool

	mu       sync.Mutex
	jobs     map[uuid.UUID]*jobEntry
	finished []uuid.UUID
}

// SyncJobQueueOption is a functional option for configuring SyncJobQueue
type SyncJobQueueOption func(*SyncJobQueue)

// WithQueueMetrics records finished jobs
func WithQueueMetrics(metrics *telemetry.SyncMetrics) SyncJobQueueOption {
	return func(q *SyncJobQueue) {
		q.metrics = metrics
	}
}

// NewSyncJobQueue creates a new sync job queue
func NewSyncJobQueue(config SyncJobQueueConfig, executor SyncJobExecutor, log *zap.Logger, opts ...SyncJobQueueOption) (*SyncJobQueue, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	q := &SyncJobQueue{
		config:   config,
		executor: executor,
		logger:   log,
		now:      time.Now,
		queue:    make(chan *jobEntry, config.QueueSize),
		jobs:     make(map[uuid.UUID]*jobEntry),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Start starts the worker pool and, if configured, the periodic full sync
func (q *SyncJobQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.mu.Unlock()

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	if q.config.AutoInterval > 0 {
		q.wg.Add(1)
		go q.autoSync(ctx)
	}

	q.logger.Info("Sync job queue started",
		zap.Int("workers", q.config.Workers),
		zap.Int("queue_size", q.config.QueueSize),
		zap.Int("max_retries", q.config.MaxRetries),
		zap.Duration("auto_interval", q.config.AutoInterval),
	)
	return nil
}

// Stop stops the workers and waits for running jobs to return.
// Running jobs see their context canceled; pending jobs stay pending.
func (q *SyncJobQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	for _, e := range q.jobs {
		if e.retry != nil {
			e.retry.Stop()
		}
	}
	cancel := q.cancel
	q.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Sync job queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.logger.Warn("Sync job queue stop timed out")
		return ctx.Err()
	}
}

// Enqueue submits a job. A bulk job for a kind that already has a bulk job
// waiting or running returns the handle of that job instead.
func (q *SyncJobQueue) Enqueue(req SyncJobRequest) (JobHandle, error) {
	if !req.Kind.IsValid() {
		return JobHandle{}, ErrInvalidJob
	}
	if req.LocalID != nil && *req.LocalID == uuid.Nil {
		return JobHandle{}, ErrInvalidJob
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return JobHandle{}, ErrSchedulerNotRunning
	}

	if req.Mode() == SyncJobModeBulk {
		for _, e := range q.jobs {
			if e.job.Mode == SyncJobModeBulk && e.job.Kind == req.Kind && !e.job.Status.IsTerminal() {
				return q.handle(e), nil
			}
		}
	}

	job := SyncJob{
		ID:          uuid.New(),
		Kind:        req.Kind,
		Mode:        req.Mode(),
		Status:      SyncJobStatusPending,
		MaxAttempts: q.config.MaxRetries + 1,
		CreatedAt:   q.now(),
	}
	if req.LocalID != nil {
		id := *req.LocalID
		job.LocalID = &id
	}
	e := &jobEntry{job: job, done: make(chan struct{})}

	select {
	case q.queue <- e:
	default:
		return JobHandle{}, ErrJobQueueFull
	}
	q.jobs[job.ID] = e

	q.logger.Debug("Sync job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", job.Kind.String()),
		zap.String("mode", string(job.Mode)),
	)
	return q.handle(e), nil
}

func (q *SyncJobQueue) handle(e *jobEntry) JobHandle {
	return JobHandle{ID: e.job.ID, done: e.done, q: q}
}

// Cancel cancels a pending or running job
func (q *SyncJobQueue) Cancel(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if e.job.Status.IsTerminal() {
		return ErrJobFinished
	}

	e.canceled = true
	switch e.job.Status {
	case SyncJobStatusRunning:
		// The worker finishes the job once the executor returns.
		e.cancel()
	default:
		if e.retry != nil {
			e.retry.Stop()
		}
		q.finishLocked(e, SyncJobStatusCanceled, ErrJobCanceled.Error())
	}

	q.logger.Info("Sync job canceled", zap.String("job_id", id.String()))
	return nil
}

// Get returns a snapshot of a job
func (q *SyncJobQueue) Get(id uuid.UUID) (SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[id]
	if !ok {
		return SyncJob{}, ErrJobNotFound
	}
	return e.job.clone(), nil
}

// List returns up to limit jobs, newest first. A limit <= 0 returns all.
func (q *SyncJobQueue) List(limit int) []SyncJob {
	q.mu.Lock()
	out := make([]SyncJob, 0, len(q.jobs))
	for _, e := range q.jobs {
		out = append(out, e.job.clone())
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// worker processes jobs from the queue
func (q *SyncJobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	q.logger.Debug("Sync worker started", zap.Int("worker_id", workerID))
	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("Sync worker stopping", zap.Int("worker_id", workerID))
			return
		case e := <-q.queue:
			q.process(ctx, e, workerID)
		}
	}
}

// process runs one attempt of a job
func (q *SyncJobQueue) process(ctx context.Context, e *jobEntry, workerID int) {
	q.mu.Lock()
	if e.job.Status != SyncJobStatusPending {
		// Canceled while waiting in the queue.
		q.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithTimeout(ctx, q.config.JobTimeout)
	defer cancel()
	now := q.now()
	e.cancel = cancel
	e.job.Status = SyncJobStatusRunning
	e.job.Attempts++
	e.job.StartedAt = &now
	e.job.NextRetryAt = nil
	job := e.job.clone()
	q.mu.Unlock()

	log := q.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("kind", job.Kind.String()),
		zap.String("mode", string(job.Mode)),
		zap.Int("attempt", job.Attempts),
	)
	log.Info("Processing sync job", zap.Int("worker_id", workerID))

	jobCtx = logger.WithJobID(jobCtx, q.logger, job.ID.String())
	result, err := q.executor.Execute(jobCtx, job.Request())

	q.mu.Lock()
	defer q.mu.Unlock()

	e.job.Result = &result
	switch {
	case e.canceled:
		q.finishLocked(e, SyncJobStatusCanceled, ErrJobCanceled.Error())
		log.Info("Sync job canceled while running")

	case err == nil:
		q.finishLocked(e, SyncJobStatusSucceeded, "")
		log.Info("Sync job succeeded",
			zap.Int("total", result.Total),
			zap.Int("synced", result.Synced),
		)

	case ctx.Err() != nil:
		// Queue stopping; the job is left for inspection as failed.
		q.finishLocked(e, SyncJobStatusFailed, err.Error())
		log.Warn("Sync job interrupted by shutdown", zap.Error(err))

	case !IsPermanent(err) && !errors.Is(err, accounting.ErrInvalidEntityKind) && e.job.Attempts < e.job.MaxAttempts:
		delay := q.config.Backoff(e.job.Attempts)
		next := q.now().Add(delay)
		e.job.Status = SyncJobStatusPending
		e.job.LastError = err.Error()
		e.job.NextRetryAt = &next
		e.cancel = nil
		e.retry = time.AfterFunc(delay, func() { q.requeue(e) })
		log.Warn("Sync job failed, retry scheduled",
			zap.Duration("delay", delay),
			zap.Int("max_attempts", e.job.MaxAttempts),
			zap.Error(err),
		)

	default:
		q.finishLocked(e, SyncJobStatusFailed, err.Error())
		log.Error("Sync job failed", zap.Error(err))
	}
}

// requeue puts a job waiting for retry back on the queue
func (q *SyncJobQueue) requeue(e *jobEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e.retry = nil
	if !q.isRunning || e.job.Status != SyncJobStatusPending {
		return
	}
	select {
	case q.queue <- e:
	default:
		q.finishLocked(e, SyncJobStatusFailed, ErrJobQueueFull.Error())
		q.logger.Warn("Failed to re-queue sync job for retry", zap.String("job_id", e.job.ID.String()))
	}
}

// finishLocked moves a job to a terminal status and trims the history
func (q *SyncJobQueue) finishLocked(e *jobEntry, status SyncJobStatus, lastError string) {
	now := q.now()
	e.job.Status = status
	e.job.FinishedAt = &now
	e.job.NextRetryAt = nil
	if lastError != "" {
		e.job.LastError = lastError
	}
	e.cancel = nil
	close(e.done)

	q.metrics.RecordJob(context.Background(), e.job.Kind.String(), string(e.job.Mode), string(status))

	q.finished = append(q.finished, e.job.ID)
	for len(q.finished) > q.config.HistorySize {
		delete(q.jobs, q.finished[0])
		q.finished = q.finished[1:]
	}
}

// autoSync enqueues a full sync of every kind on every tick
func (q *SyncJobQueue) autoSync(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.AutoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, kind := range accounting.AllEntityKinds() {
				if _, err := q.Enqueue(SyncJobRequest{Kind: kind}); err != nil {
					q.logger.Warn("Periodic sync not enqueued",
						zap.String("kind", kind.String()),
						zap.Error(err),
					)
				}
			}
		}
	}
}
