package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/domain/catalog"
	"github.com/retailhub/backend/internal/domain/partner"
	"github.com/retailhub/backend/internal/domain/trade"
	"github.com/retailhub/backend/internal/infrastructure/telemetry"
)

// ConnectionState exposes the stored accounting connection
type ConnectionState interface {
	CurrentConnection(ctx context.Context) (*accounting.TokenRecord, error)
	IsConnected(ctx context.Context) bool
}

// EntitySyncCounts counts the local entities of a kind and how many are mapped
type EntitySyncCounts struct {
	Total   int64 `json:"total"`
	Synced  int64 `json:"synced"`
	Pending int64 `json:"pending"`
}

// SyncStatus summarizes the connection and the sync progress of every kind
type SyncStatus struct {
	Connected      bool             `json:"connected"`
	RealmID        string           `json:"realm_id,omitempty"`
	Environment    string           `json:"environment,omitempty"`
	TokenExpiresAt *time.Time       `json:"token_expires_at,omitempty"`
	Products       EntitySyncCounts `json:"products"`
	Customers      EntitySyncCounts `json:"customers"`
	Invoices       EntitySyncCounts `json:"invoices"`
	LastSyncAt     *time.Time       `json:"last_sync_at,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
	LastErrorAt    *time.Time       `json:"last_error_at,omitempty"`
}

// StatusService reports sync progress and browses the sync log
type StatusService struct {
	connection ConnectionState
	products   catalog.ProductReader
	customers  partner.CustomerReader
	sales      trade.SaleReader
	mapper     *EntityMapper
	logs       accounting.SyncLogRepository
	gateway    accounting.Gateway
}

// NewStatusService creates a new StatusService
func NewStatusService(
	connection ConnectionState,
	products catalog.ProductReader,
	customers partner.CustomerReader,
	sales trade.SaleReader,
	mapper *EntityMapper,
	logs accounting.SyncLogRepository,
	gateway accounting.Gateway,
) *StatusService {
	return &StatusService{
		connection: connection,
		products:   products,
		customers:  customers,
		sales:      sales,
		mapper:     mapper,
		logs:       logs,
		gateway:    gateway,
	}
}

// GetSyncStatus aggregates connection state, per-kind counts and the latest log outcomes
func (s *StatusService) GetSyncStatus(ctx context.Context) (*SyncStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, "accounting.status")
	defer span.End()

	status := &SyncStatus{Connected: s.connection.IsConnected(ctx)}

	record, err := s.connection.CurrentConnection(ctx)
	switch {
	case err == nil:
		status.RealmID = record.RealmID
		status.Environment = record.Environment.String()
		expiresAt := record.ExpiresAt
		status.TokenExpiresAt = &expiresAt
	case !errors.Is(err, accounting.ErrNotConnected):
		telemetry.RecordError(span, err)
		return nil, err
	}

	if status.Products, err = s.counts(ctx, accounting.EntityKindProduct, s.products.Count); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if status.Customers, err = s.counts(ctx, accounting.EntityKindCustomer, s.customers.Count); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if status.Invoices, err = s.counts(ctx, accounting.EntityKindInvoice, s.sales.Count); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	lastSuccess, err := s.logs.FindLatestByStatus(ctx, accounting.SyncLogStatusSuccess)
	switch {
	case err == nil:
		at := lastSuccess.CreatedAt
		status.LastSyncAt = &at
	case !errors.Is(err, accounting.ErrSyncLogNotFound):
		telemetry.RecordError(span, err)
		return nil, err
	}

	lastError, err := s.logs.FindLatestByStatus(ctx, accounting.SyncLogStatusError)
	switch {
	case err == nil:
		at := lastError.CreatedAt
		status.LastError = lastError.ErrorMessage
		status.LastErrorAt = &at
	case !errors.Is(err, accounting.ErrSyncLogNotFound):
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetOK(span)
	return status, nil
}

func (s *StatusService) counts(
	ctx context.Context,
	kind accounting.EntityKind,
	countLocal func(context.Context) (int64, error),
) (EntitySyncCounts, error) {
	total, err := countLocal(ctx)
	if err != nil {
		return EntitySyncCounts{}, fmt.Errorf("count local %s: %w", kind, err)
	}
	synced, err := s.mapper.Count(ctx, kind)
	if err != nil {
		return EntitySyncCounts{}, fmt.Errorf("count %s mappings: %w", kind, err)
	}
	return EntitySyncCounts{
		Total:   total,
		Synced:  synced,
		Pending: max(total-synced, 0),
	}, nil
}

// ListSyncLogs returns a page of sync log entries, newest first
func (s *StatusService) ListSyncLogs(ctx context.Context, filter accounting.SyncLogFilter) ([]accounting.SyncLogEntry, int64, error) {
	if filter.EntityType != nil && !filter.EntityType.IsValid() {
		return nil, 0, accounting.ErrInvalidEntityKind
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	return s.logs.FindAll(ctx, filter)
}

// TestConnection reads the connected company through the accounting API
func (s *StatusService) TestConnection(ctx context.Context) (*accounting.CompanyInfo, error) {
	return s.gateway.GetCompanyInfo(ctx)
}
