package accounting

import (
	"context"
	"errors"
	"fmt"

	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/scheduler"
)

// JobExecutor runs queued sync jobs against the SyncService
type JobExecutor struct {
	sync *SyncService
}

// NewJobExecutor creates a new JobExecutor
func NewJobExecutor(sync *SyncService) *JobExecutor {
	return &JobExecutor{sync: sync}
}

var _ scheduler.SyncJobExecutor = (*JobExecutor)(nil)

// Execute implements scheduler.SyncJobExecutor. Losing the connection fails
// the job without retries; any other failure is retried by the queue.
func (e *JobExecutor) Execute(ctx context.Context, req scheduler.SyncJobRequest) (scheduler.SyncJobResult, error) {
	if req.LocalID != nil {
		res := e.sync.SyncOne(ctx, req.Kind, *req.LocalID)
		out := scheduler.SyncJobResult{Total: 1, RemoteID: res.RemoteID}
		switch {
		case res.Success:
			out.Synced = 1
			return out, nil
		case res.NotConnected():
			out.Errors = 1
			return out, scheduler.Permanent(fmt.Errorf("%w: %s", accounting.ErrNotConnected, res.Error))
		default:
			out.Errors = 1
			return out, errors.New(res.Error)
		}
	}

	res := e.sync.SyncAll(ctx, req.Kind)
	out := scheduler.SyncJobResult{Total: res.Total, Synced: res.Synced, Errors: res.Errors}
	switch {
	case res.Success:
		return out, nil
	case res.NotConnected():
		return out, scheduler.Permanent(fmt.Errorf("%w: %s", accounting.ErrNotConnected, res.Error))
	case res.Errors > 0:
		return out, fmt.Errorf("%d of %d failed", res.Errors, res.Total)
	default:
		return out, errors.New(res.Error)
	}
}
