package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/retailhub/backend/internal/domain/accounting"
)

// ---------------------------------------------------------------------------
// Sync Job Types
// ---------------------------------------------------------------------------

// SyncJobStatus represents the status of a sync job
type SyncJobStatus string

const (
	SyncJobStatusPending   SyncJobStatus = "pending"
	SyncJobStatusRunning   SyncJobStatus = "running"
	SyncJobStatusSucceeded SyncJobStatus = "succeeded"
	SyncJobStatusFailed    SyncJobStatus = "failed"
	SyncJobStatusCanceled  SyncJobStatus = "canceled"
)

// IsTerminal reports whether the job will not run again
func (s SyncJobStatus) IsTerminal() bool {
	switch s {
	case SyncJobStatusSucceeded, SyncJobStatusFailed, SyncJobStatusCanceled:
		return true
	}
	return false
}

// SyncJobMode tells whether a job syncs one entity or all entities of a kind
type SyncJobMode string

const (
	SyncJobModeSingle SyncJobMode = "single"
	SyncJobModeBulk   SyncJobMode = "bulk"
)

// SyncJobRequest describes the work of a job
type SyncJobRequest struct {
	Kind accounting.EntityKind
	// LocalID selects one entity; nil syncs every entity of Kind
	LocalID *uuid.UUID
}

// Mode returns the job mode of the request
func (r SyncJobRequest) Mode() SyncJobMode {
	if r.LocalID == nil {
		return SyncJobModeBulk
	}
	return SyncJobModeSingle
}

// SyncJobResult holds the counters reported by the executor
type SyncJobResult struct {
	Total    int    `json:"total"`
	Synced   int    `json:"synced"`
	Errors   int    `json:"errors"`
	RemoteID string `json:"remote_id,omitempty"`
}

// SyncJob is a snapshot of a queued sync job
type SyncJob struct {
	ID          uuid.UUID             `json:"id"`
	Kind        accounting.EntityKind `json:"kind"`
	LocalID     *uuid.UUID            `json:"local_id,omitempty"`
	Mode        SyncJobMode           `json:"mode"`
	Status      SyncJobStatus         `json:"status"`
	Attempts    int                   `json:"attempts"`
	MaxAttempts int                   `json:"max_attempts"`
	LastError   string                `json:"last_error,omitempty"`
	Result      *SyncJobResult        `json:"result,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	FinishedAt  *time.Time            `json:"finished_at,omitempty"`
	NextRetryAt *time.Time            `json:"next_retry_at,omitempty"`
}

// Request returns the work description of the job
func (j *SyncJob) Request() SyncJobRequest {
	return SyncJobRequest{Kind: j.Kind, LocalID: j.LocalID}
}

// clone returns a deep copy safe to hand out
func (j *SyncJob) clone() SyncJob {
	cp := *j
	if j.LocalID != nil {
		id := *j.LocalID
		cp.LocalID = &id
	}
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.FinishedAt = cloneTime(j.FinishedAt)
	cp.NextRetryAt = cloneTime(j.NextRetryAt)
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ---------------------------------------------------------------------------
// SyncJobExecutor Interface
// ---------------------------------------------------------------------------

// SyncJobExecutor runs the work of a sync job. A returned error fails the
// attempt; wrap it with Permanent to prevent retries.
type SyncJobExecutor interface {
	Execute(ctx context.Context, req SyncJobRequest) (SyncJobResult, error)
}

// SyncJobExecutorFunc adapts a function to SyncJobExecutor
type SyncJobExecutorFunc func(ctx context.Context, req SyncJobRequest) (SyncJobResult, error)

// Execute implements SyncJobExecutor
func (f SyncJobExecutorFunc) Execute(ctx context.Context, req SyncJobRequest) (SyncJobResult, error) {
	return f(ctx, req)
}

// ---------------------------------------------------------------------------
// JobHandle
// ---------------------------------------------------------------------------

// JobHandle refers to an enqueued job
type JobHandle struct {
	ID   uuid.UUID
	done <-chan struct{}
	q    *SyncJobQueue
}

// Done is closed when the job reaches a terminal status
func (h JobHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job is finished or ctx is done and returns its last snapshot
func (h JobHandle) Wait(ctx context.Context) (SyncJob, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return SyncJob{}, ctx.Err()
	}
	return h.q.Get(h.ID)
}
