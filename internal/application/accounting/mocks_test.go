package accounting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/domain/catalog"
	"github.com/retailhub/backend/internal/domain/partner"
	"github.com/retailhub/backend/internal/domain/shared"
	"github.com/retailhub/backend/internal/domain/trade"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Local entity readers
// =============================================================================

type MockProductReader struct {
	mock.Mock
}

func (m *MockProductReader) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductReader) FindAll(ctx context.Context, filter shared.Filter) ([]catalog.Product, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockProductReader) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockCustomerReader struct {
	mock.Mock
}

func (m *MockCustomerReader) FindByID(ctx context.Context, id uuid.UUID) (*partner.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partner.Customer), args.Error(1)
}

func (m *MockCustomerReader) FindAll(ctx context.Context, filter shared.Filter) ([]partner.Customer, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]partner.Customer), args.Error(1)
}

func (m *MockCustomerReader) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockSaleReader struct {
	mock.Mock
}

func (m *MockSaleReader) FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*trade.Sale, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trade.Sale), args.Error(1)
}

func (m *MockSaleReader) FindAll(ctx context.Context, filter shared.Filter) ([]trade.Sale, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]trade.Sale), args.Error(1)
}

func (m *MockSaleReader) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// =============================================================================
// Gateway
// =============================================================================

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCustomer(ctx context.Context, customer *accounting.RemoteCustomer) (*accounting.RemoteCustomer, error) {
	args := m.Called(ctx, customer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.RemoteCustomer), args.Error(1)
}

func (m *MockGateway) UpdateCustomer(ctx context.Context, customer *accounting.RemoteCustomer) (*accounting.RemoteCustomer, error) {
	args := m.Called(ctx, customer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.RemoteCustomer), args.Error(1)
}

func (m *MockGateway) GetCustomer(ctx context.Context, id string) (*accounting.RemoteCustomer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.RemoteCustomer), args.Error(1)
}

func (m *MockGateway) CreateItem(ctx context.Context, item *accounting.RemoteItem) (*accounting.RemoteItem, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.RemoteItem), args.Error(1)
}

func (m *MockGateway) UpdateItem(ctx context.Context, item *accounting.RemoteItem) (*accounting.RemoteItem, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.RemoteItem), args.Error(1)
}

func (m *MockGateway) GetItem(ctx context.Context, id string) (*accounting.RemoteItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.RemoteItem), args.Error(1)
}

func (m *MockGateway) CreateInvoice(ctx context.Context, invoice *accounting.RemoteInvoice) (*accounting.RemoteInvoice, error) {
	args := m.Called(ctx, invoice)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.RemoteInvoice), args.Error(1)
}

func (m *MockGateway) GetInvoice(ctx context.Context, id string) (*accounting.RemoteInvoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.RemoteInvoice), args.Error(1)
}

func (m *MockGateway) SendInvoice(ctx context.Context, id string, email string) (*accounting.RemoteInvoice, error) {
	args := m.Called(ctx, id, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.RemoteInvoice), args.Error(1)
}

func (m *MockGateway) GetReport(ctx context.Context, kind accounting.ReportKind, start, end time.Time) (*accounting.Report, error) {
	args := m.Called(ctx, kind, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.Report), args.Error(1)
}

func (m *MockGateway) GetCompanyInfo(ctx context.Context) (*accounting.CompanyInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.CompanyInfo), args.Error(1)
}

// =============================================================================
// OAuth client
// =============================================================================

type MockOAuthClient struct {
	mock.Mock
}

func (m *MockOAuthClient) AuthorizationURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockOAuthClient) ExchangeCode(ctx context.Context, code string) (*accounting.TokenGrant, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.TokenGrant), args.Error(1)
}

func (m *MockOAuthClient) Refresh(ctx context.Context, refreshToken string) (*accounting.TokenGrant, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.TokenGrant), args.Error(1)
}

// =============================================================================
// In-memory stores
// =============================================================================

// memTokenRepository keeps token records keyed by realm
type memTokenRepository struct {
	mu      sync.Mutex
	records map[string]accounting.TokenRecord
	saves   int
}

func newMemTokenRepository(records ...*accounting.TokenRecord) *memTokenRepository {
	r := &memTokenRepository{records: make(map[string]accounting.TokenRecord)}
	for _, rec := range records {
		r.records[rec.RealmID] = *rec
	}
	return r
}

func (r *memTokenRepository) FindCurrent(_ context.Context) (*accounting.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var current *accounting.TokenRecord
	for _, rec := range r.records {
		if current == nil || rec.UpdatedAt.After(current.UpdatedAt) {
			cp := rec
			current = &cp
		}
	}
	if current == nil {
		return nil, accounting.ErrNotConnected
	}
	return current, nil
}

func (r *memTokenRepository) FindByRealm(_ context.Context, realmID string) (*accounting.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[realmID]
	if !ok {
		return nil, accounting.ErrNotConnected
	}
	return &rec, nil
}

func (r *memTokenRepository) Save(_ context.Context, token *accounting.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[token.RealmID] = *token
	r.saves++
	return nil
}

func (r *memTokenRepository) Delete(_ context.Context, realmID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, realmID)
	return nil
}

func (r *memTokenRepository) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// memMappingRepository keeps mappings per kind with first-writer-wins inserts
type memMappingRepository struct {
	mu       sync.Mutex
	mappings map[accounting.EntityKind]map[uuid.UUID]accounting.EntityMapping
}

func newMemMappingRepository() *memMappingRepository {
	return &memMappingRepository{mappings: make(map[accounting.EntityKind]map[uuid.UUID]accounting.EntityMapping)}
}

func (r *memMappingRepository) FindByLocalID(_ context.Context, kind accounting.EntityKind, localID uuid.UUID) (*accounting.EntityMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mappings[kind][localID]
	if !ok {
		return nil, accounting.ErrMappingNotFound
	}
	return &m, nil
}

func (r *memMappingRepository) FindByRemoteID(_ context.Context, kind accounting.EntityKind, remoteID string) (*accounting.EntityMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mappings[kind] {
		if m.RemoteID == remoteID {
			return &m, nil
		}
	}
	return nil, accounting.ErrMappingNotFound
}

func (r *memMappingRepository) FindByLocalIDs(_ context.Context, kind accounting.EntityKind, localIDs []uuid.UUID) ([]accounting.EntityMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]accounting.EntityMapping, 0, len(localIDs))
	for _, id := range localIDs {
		if m, ok := r.mappings[kind][id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMappingRepository) Count(_ context.Context, kind accounting.EntityKind) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.mappings[kind])), nil
}

// Insert fails on a done context, as a database driver would.
func (r *memMappingRepository) Insert(ctx context.Context, mapping *accounting.EntityMapping) (*accounting.EntityMapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mappings[mapping.Kind] == nil {
		r.mappings[mapping.Kind] = make(map[uuid.UUID]accounting.EntityMapping)
	}
	if existing, ok := r.mappings[mapping.Kind][mapping.LocalID]; ok {
		return &existing, nil
	}
	r.mappings[mapping.Kind][mapping.LocalID] = *mapping
	stored := *mapping
	return &stored, nil
}

func (r *memMappingRepository) put(kind accounting.EntityKind, localID uuid.UUID, remoteID string) {
	m, err := accounting.NewEntityMapping(kind, localID, remoteID)
	if err != nil {
		panic(err)
	}
	_, _ = r.Insert(context.Background(), m)
}

func (r *memMappingRepository) count(kind accounting.EntityKind) int {
	n, _ := r.Count(context.Background(), kind)
	return int(n)
}

// memSyncLogRepository records appended entries
type memSyncLogRepository struct {
	mu      sync.Mutex
	entries []accounting.SyncLogEntry
}

func (r *memSyncLogRepository) Append(_ context.Context, entry *accounting.SyncLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memSyncLogRepository) FindLatestByStatus(_ context.Context, status accounting.SyncLogStatus) (*accounting.SyncLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Status == status {
			e := r.entries[i]
			return &e, nil
		}
	}
	return nil, accounting.ErrSyncLogNotFound
}

func (r *memSyncLogRepository) FindAll(_ context.Context, filter accounting.SyncLogFilter) ([]accounting.SyncLogEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]accounting.SyncLogEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if filter.EntityType != nil && e.EntityType != *filter.EntityType {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (r *memSyncLogRepository) all() []accounting.SyncLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]accounting.SyncLogEntry(nil), r.entries...)
}

// staticTokens hands out a fixed token or error
type staticTokens struct {
	err error
}

func (s staticTokens) GetValidAccessToken(_ context.Context) (*accounting.TokenRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &accounting.TokenRecord{
		RealmID:     "realm-1",
		AccessToken: "access",
		ExpiresAt:   time.Now().Add(time.Hour),
		Environment: accounting.EnvironmentSandbox,
	}, nil
}
