package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Sync metric attribute keys
var (
	AttrSyncKind   = attribute.Key("kind")
	AttrSyncStatus = attribute.Key("status")
	AttrSyncMode   = attribute.Key("mode")
)

// Sync outcome labels
const (
	SyncStatusSuccess       = "success"
	SyncStatusError         = "error"
	SyncStatusAlreadySynced = "already_synced"
	SyncStatusNotConnected  = "not_connected"
)

// SyncMetrics tracks accounting sync outcomes and token refreshes.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	logger *zap.Logger

	syncTotal    *Counter
	syncDuration *Histogram
	bulkTotal    *Counter
	tokenRefresh *Counter
	jobTotal     *Counter
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewSyncMetrics creates the sync instruments on the given meter.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{logger: logger}

	var err error
	sm.syncTotal, err = NewCounter(
		cfg.Meter,
		"accounting_sync_total",
		"Total number of single entity sync attempts",
		"{syncs}",
	)
	if err != nil {
		return nil, err
	}

	sm.syncDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "accounting_sync_duration_seconds",
		Description: "Duration of single entity syncs",
		Unit:        "s",
		Boundaries:  []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	if err != nil {
		return nil, err
	}

	sm.bulkTotal, err = NewCounter(
		cfg.Meter,
		"accounting_bulk_sync_total",
		"Total number of bulk sync runs",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	sm.tokenRefresh, err = NewCounter(
		cfg.Meter,
		"accounting_token_refresh_total",
		"Total number of access token refreshes",
		"{refreshes}",
	)
	if err != nil {
		return nil, err
	}

	sm.jobTotal, err = NewCounter(
		cfg.Meter,
		"accounting_sync_job_total",
		"Total number of finished sync jobs",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordSync records the outcome of one entity sync.
func (sm *SyncMetrics) RecordSync(ctx context.Context, kind, status string, elapsed time.Duration) {
	if sm == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrSyncKind.String(kind), AttrSyncStatus.String(status)}
	sm.syncTotal.Inc(ctx, attrs...)
	sm.syncDuration.Record(ctx, elapsed.Seconds(), attrs...)
}

// RecordBulkSync records the outcome of a bulk sync run.
func (sm *SyncMetrics) RecordBulkSync(ctx context.Context, kind, status string) {
	if sm == nil {
		return
	}
	sm.bulkTotal.Inc(ctx, AttrSyncKind.String(kind), AttrSyncStatus.String(status))
}

// RecordTokenRefresh records a token refresh attempt.
func (sm *SyncMetrics) RecordTokenRefresh(ctx context.Context, success bool) {
	if sm == nil {
		return
	}
	status := SyncStatusSuccess
	if !success {
		status = SyncStatusError
	}
	sm.tokenRefresh.Inc(ctx, AttrSyncStatus.String(status))
}

// RecordJob records a finished sync job.
func (sm *SyncMetrics) RecordJob(ctx context.Context, kind, mode, status string) {
	if sm == nil {
		return
	}
	sm.jobTotal.Inc(ctx, AttrSyncKind.String(kind), AttrSyncMode.String(mode), AttrSyncStatus.String(status))
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
