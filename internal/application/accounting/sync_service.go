package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/domain/catalog"
	"github.com/retailhub/backend/internal/domain/partner"
	"github.com/retailhub/backend/internal/domain/shared"
	"github.com/retailhub/backend/internal/domain/trade"
	"github.com/retailhub/backend/internal/infrastructure/logger"
	"github.com/retailhub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultInvoiceDueDays is the payment term of created invoices
	DefaultInvoiceDueDays = 30
	// DefaultBatchSize is the page size used to walk local entities
	DefaultBatchSize = 100
	// MaxBatchSize is the largest page the local repositories return. A bulk
	// walk ends on the first short page, so larger batches would stop early.
	MaxBatchSize = 1000
)

// SyncConfig holds the company-specific values used to build remote payloads
type SyncConfig struct {
	ItemType          accounting.ItemType
	IncomeAccountRef  string
	AssetAccountRef   string
	ExpenseAccountRef string

	// DefaultCustomerRef is set on invoices whose sale has no synced customer
	DefaultCustomerRef string
	InvoiceDueDays     int
	BatchSize          int
}

// SyncResult is the outcome of syncing one local entity
type SyncResult struct {
	Success       bool   `json:"success"`
	RemoteID      string `json:"remote_id,omitempty"`
	Error         string `json:"error,omitempty"`
	AlreadySynced bool   `json:"already_synced"`

	// authFailed marks results that failed for lack of a usable token
	authFailed bool
}

// NotConnected reports whether the sync failed because no valid token was available
func (r SyncResult) NotConnected() bool {
	return r.authFailed
}

// FailedSyncResult returns the result of a sync that failed with err
func FailedSyncResult(err error) SyncResult {
	return SyncResult{Error: err.Error(), authFailed: accounting.IsAuthError(err)}
}

// BulkSyncResult is the outcome of syncing every local entity of a kind
type BulkSyncResult struct {
	Success  bool                  `json:"success"`
	Kind     accounting.EntityKind `json:"kind"`
	Total    int                   `json:"total"`
	Synced   int                   `json:"synced"`
	Errors   int                   `json:"errors"`
	Canceled bool                  `json:"canceled"`
	Error    string                `json:"error,omitempty"`

	authFailed bool
}

// NotConnected reports whether the run was aborted for lack of a usable token
func (r BulkSyncResult) NotConnected() bool {
	return r.authFailed
}

// FailedBulkSyncResult returns the result of a bulk run that could not start
func FailedBulkSyncResult(kind accounting.EntityKind, err error) BulkSyncResult {
	return BulkSyncResult{Kind: kind, Error: err.Error(), authFailed: accounting.IsAuthError(err)}
}

// SyncServiceDeps holds the collaborators of SyncService
type SyncServiceDeps struct {
	Products  catalog.ProductReader
	Customers partner.CustomerReader
	Sales     trade.SaleReader
	Mapper    *EntityMapper
	Tokens    accounting.AccessTokenProvider
	Gateway   accounting.Gateway
	Logs      accounting.SyncLogRepository
	Metrics   *telemetry.SyncMetrics
	Logger    *zap.Logger
	Clock     func() time.Time
}

// SyncService pushes local products, customers and sales to the accounting
// platform. Every entity is created remotely at most once; its mapping is
// stored on success and short-circuits every later sync of the same entity.
// Exported sync methods never return errors: failures are reported in the
// result and, except for missing connections, in the sync log.
type SyncService struct {
	products  catalog.ProductReader
	customers partner.CustomerReader
	sales     trade.SaleReader
	mapper    *EntityMapper
	tokens    accounting.AccessTokenProvider
	gateway   accounting.Gateway
	logs      accounting.SyncLogRepository
	metrics   *telemetry.SyncMetrics
	logger    *zap.Logger
	now       func() time.Time
	cfg       SyncConfig
}

// NewSyncService creates a new SyncService
func NewSyncService(deps SyncServiceDeps, cfg SyncConfig) *SyncService {
	if cfg.ItemType == "" {
		cfg.ItemType = accounting.ItemTypeNonInventory
	}
	if cfg.InvoiceDueDays <= 0 {
		cfg.InvoiceDueDays = DefaultInvoiceDueDays
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	cfg.BatchSize = min(cfg.BatchSize, MaxBatchSize)

	s := &SyncService{
		products:  deps.Products,
		customers: deps.Customers,
		sales:     deps.Sales,
		mapper:    deps.Mapper,
		tokens:    deps.Tokens,
		gateway:   deps.Gateway,
		logs:      deps.Logs,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Clock,
		cfg:       cfg,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ---------------------------------------------------------------------------
// Single entity sync
// ---------------------------------------------------------------------------

// SyncProduct creates the remote item of a product
func (s *SyncService) SyncProduct(ctx context.Context, productID uuid.UUID) SyncResult {
	return s.syncOne(ctx, accounting.EntityKindProduct, productID, true)
}

// SyncCustomer creates the remote customer of a customer
func (s *SyncService) SyncCustomer(ctx context.Context, customerID uuid.UUID) SyncResult {
	return s.syncOne(ctx, accounting.EntityKindCustomer, customerID, true)
}

// SyncSale creates the remote invoice of a sale. Its customer and products
// are synced first on a best-effort basis.
func (s *SyncService) SyncSale(ctx context.Context, saleID uuid.UUID) SyncResult {
	return s.syncOne(ctx, accounting.EntityKindInvoice, saleID, true)
}

// SyncOne syncs one local entity of the given kind
func (s *SyncService) SyncOne(ctx context.Context, kind accounting.EntityKind, localID uuid.UUID) SyncResult {
	if !kind.IsValid() {
		return SyncResult{Error: accounting.ErrInvalidEntityKind.Error()}
	}
	return s.syncOne(ctx, kind, localID, true)
}

func (s *SyncService) syncOne(ctx context.Context, kind accounting.EntityKind, localID uuid.UUID, logOutcome bool) SyncResult {
	start := s.now()
	ctx, span := telemetry.StartSpan(ctx, "accounting.sync."+kind.String(),
		telemetry.WithAttribute(telemetry.SpanAttrKind, kind.String()),
		telemetry.WithAttribute(telemetry.SpanAttrLocalID, localID.String()),
	)
	defer span.End()

	result := s.doSyncOne(ctx, kind, localID, logOutcome)

	status := telemetry.SyncStatusSuccess
	switch {
	case result.AlreadySynced:
		status = telemetry.SyncStatusAlreadySynced
		telemetry.AddEvent(span, "mapping_found", telemetry.SpanAttrRemoteID, result.RemoteID)
	case result.authFailed:
		status = telemetry.SyncStatusNotConnected
	case !result.Success:
		status = telemetry.SyncStatusError
	}
	s.metrics.RecordSync(ctx, kind.String(), status, s.now().Sub(start))

	if result.Success {
		telemetry.SetAttribute(span, telemetry.SpanAttrRemoteID, result.RemoteID)
		telemetry.SetOK(span)
	} else {
		telemetry.RecordError(span, errors.New(result.Error))
	}
	return result
}

func (s *SyncService) doSyncOne(ctx context.Context, kind accounting.EntityKind, localID uuid.UUID, logOutcome bool) SyncResult {
	log := logger.FromContextOr(ctx, s.logger).With(
		zap.String("kind", kind.String()),
		zap.String("local_id", localID.String()),
	)

	remoteID, found, err := s.mapper.Lookup(ctx, kind, localID)
	if err != nil {
		return s.fail(ctx, log, kind, err, logOutcome)
	}
	if found {
		return SyncResult{Success: true, RemoteID: remoteID, AlreadySynced: true}
	}

	if _, err := s.tokens.GetValidAccessToken(ctx); err != nil {
		return s.fail(ctx, log, kind, err, logOutcome)
	}

	unlock, err := s.mapper.Lock(ctx, kind, localID)
	if err != nil {
		return s.fail(ctx, log, kind, err, logOutcome)
	}
	defer unlock()

	// A concurrent sync may have stored the mapping while we waited for the lock.
	remoteID, found, err = s.mapper.Lookup(ctx, kind, localID)
	if err != nil {
		return s.fail(ctx, log, kind, err, logOutcome)
	}
	if found {
		return SyncResult{Success: true, RemoteID: remoteID, AlreadySynced: true}
	}

	remoteID, syncToken, err := s.createRemote(ctx, kind, localID)
	if err != nil {
		return s.fail(ctx, log, kind, err, logOutcome)
	}

	// The remote record exists now; the mapping must be stored even if ctx is canceled.
	stored, err := s.mapper.Store(context.WithoutCancel(ctx), kind, localID, remoteID, syncToken)
	if err != nil {
		log.Error("Remote entity created but mapping not stored",
			zap.String("remote_id", remoteID),
			zap.Error(err),
		)
		return s.fail(ctx, log, kind, err, logOutcome)
	}

	if logOutcome {
		s.appendLog(ctx, accounting.NewSuccessLogEntry(kind, 1))
	}
	log.Info("Entity synced", zap.String("remote_id", stored))
	return SyncResult{Success: true, RemoteID: stored}
}

// fail converts err into a failed result. Auth errors are not logged to the
// sync log since no sync was attempted.
func (s *SyncService) fail(ctx context.Context, log *zap.Logger, kind accounting.EntityKind, err error, logOutcome bool) SyncResult {
	if accounting.IsAuthError(err) {
		log.Warn("Sync skipped, accounting platform not connected", zap.Error(err))
		return FailedSyncResult(err)
	}

	log.Error("Sync failed", zap.Error(err))
	if logOutcome {
		s.appendLog(ctx, accounting.NewErrorLogEntry(kind, 0, err.Error()))
	}
	return FailedSyncResult(err)
}

func (s *SyncService) appendLog(ctx context.Context, entry *accounting.SyncLogEntry) {
	entry.CreatedAt = s.now()
	if err := s.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		logger.FromContextOr(ctx, s.logger).Error("Failed to append sync log entry",
			zap.String("kind", entry.EntityType.String()),
			zap.String("status", entry.Status.String()),
			zap.Error(err),
		)
	}
}

// ---------------------------------------------------------------------------
// Remote creation
// ---------------------------------------------------------------------------

// createRemote creates the remote counterpart of a local entity and returns
// its remote ID and sync token.
func (s *SyncService) createRemote(ctx context.Context, kind accounting.EntityKind, localID uuid.UUID) (string, string, error) {
	switch kind {
	case accounting.EntityKindProduct:
		product, err := s.products.FindByID(ctx, localID)
		if err != nil {
			return "", "", localLoadError(kind, localID, err)
		}
		item, err := s.gateway.CreateItem(ctx, s.buildItem(product))
		if err != nil {
			return "", "", err
		}
		return item.ID, item.SyncToken, nil

	case accounting.EntityKindCustomer:
		customer, err := s.customers.FindByID(ctx, localID)
		if err != nil {
			return "", "", localLoadError(kind, localID, err)
		}
		created, err := s.gateway.CreateCustomer(ctx, buildCustomer(customer))
		if err != nil {
			return "", "", err
		}
		return created.ID, created.SyncToken, nil

	case accounting.EntityKindInvoice:
		sale, err := s.sales.FindByIDWithDetails(ctx, localID)
		if err != nil {
			return "", "", localLoadError(kind, localID, err)
		}
		invoice, err := s.gateway.CreateInvoice(ctx, s.buildInvoice(ctx, sale))
		if err != nil {
			return "", "", err
		}
		return invoice.ID, invoice.SyncToken, nil
	}
	return "", "", accounting.ErrInvalidEntityKind
}

func localLoadError(kind accounting.EntityKind, localID uuid.UUID, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", accounting.ErrLocalEntityNotFound, kind, localID)
	}
	return fmt.Errorf("load %s %s: %w", kind, localID, err)
}

func (s *SyncService) buildItem(p *catalog.Product) *accounting.RemoteItem {
	item := &accounting.RemoteItem{
		Name:              p.DisplayName(),
		SKU:               p.SKU,
		Description:       p.Description,
		Type:              s.cfg.ItemType,
		UnitPrice:         p.UnitPrice,
		PurchaseCost:      p.CostPrice,
		IncomeAccountRef:  s.cfg.IncomeAccountRef,
		AssetAccountRef:   s.cfg.AssetAccountRef,
		ExpenseAccountRef: s.cfg.ExpenseAccountRef,
		Active:            p.IsActive,
	}
	if item.Type == accounting.ItemTypeInventory {
		startAt := p.CreatedAt
		if startAt.IsZero() {
			startAt = s.now()
		}
		item.TrackQtyOnHand = true
		item.QtyOnHand = p.StockQuantity
		item.InventoryStartAt = &startAt
	}
	return item
}

func buildCustomer(c *partner.Customer) *accounting.RemoteCustomer {
	remote := &accounting.RemoteCustomer{
		DisplayName: strings.TrimSpace(c.Name),
		Email:       c.Email,
		Phone:       c.Phone,
		Notes:       c.Notes,
		Active:      true,
	}
	if c.HasAddress() {
		remote.BillAddress = &accounting.RemoteAddress{
			Line1:      c.Address,
			City:       c.City,
			Region:     c.Province,
			PostalCode: c.PostalCode,
			Country:    c.Country,
		}
	}
	return remote
}

// buildInvoice syncs the sale's customer and products, then builds the invoice.
// Dependencies that cannot be synced are left out of the invoice: the customer
// falls back to the configured default and lines carry no item reference.
func (s *SyncService) buildInvoice(ctx context.Context, sale *trade.Sale) *accounting.RemoteInvoice {
	invoice := &accounting.RemoteInvoice{
		DocNumber:   sale.ReceiptNumber,
		TxnDate:     sale.CreatedAt,
		DueDate:     sale.CreatedAt.AddDate(0, 0, s.cfg.InvoiceDueDays),
		PrivateNote: "POS receipt " + sale.ReceiptNumber,
		TotalAmount: sale.TotalAmount,
	}

	if sale.HasCustomer() {
		if res := s.syncOne(ctx, accounting.EntityKindCustomer, *sale.CustomerID, true); res.Success {
			invoice.CustomerRef = res.RemoteID
		}
		if sale.Customer != nil {
			invoice.BillEmail = sale.Customer.Email
		}
	}
	if invoice.CustomerRef == "" {
		invoice.CustomerRef = s.cfg.DefaultCustomerRef
	}

	itemRefs := make(map[uuid.UUID]string)
	for _, productID := range sale.DistinctProductIDs() {
		if res := s.syncOne(ctx, accounting.EntityKindProduct, productID, true); res.Success {
			itemRefs[productID] = res.RemoteID
		}
	}

	invoice.Lines = make([]accounting.InvoiceLine, 0, len(sale.Items))
	for i := range sale.Items {
		item := &sale.Items[i]
		line := accounting.InvoiceLine{
			ItemRef:   itemRefs[item.ProductID],
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Amount:    item.LineAmount(),
		}
		if item.Product != nil {
			line.ItemName = item.Product.DisplayName()
			line.Description = item.Product.Description
		}
		if line.Description == "" {
			line.Description = line.ItemName
		}
		if line.Description == "" {
			line.Description = "Product " + item.ProductID.String()
		}
		invoice.Lines = append(invoice.Lines, line)
	}
	return invoice
}

// ---------------------------------------------------------------------------
// Bulk sync
// ---------------------------------------------------------------------------

// SyncAllProducts syncs every product
func (s *SyncService) SyncAllProducts(ctx context.Context) BulkSyncResult {
	return s.SyncAll(ctx, accounting.EntityKindProduct)
}

// SyncAllCustomers syncs every customer
func (s *SyncService) SyncAllCustomers(ctx context.Context) BulkSyncResult {
	return s.SyncAll(ctx, accounting.EntityKindCustomer)
}

// SyncAllSales syncs every sale
func (s *SyncService) SyncAllSales(ctx context.Context) BulkSyncResult {
	return s.SyncAll(ctx, accounting.EntityKindInvoice)
}

// SyncAll syncs every local entity of a kind, one after the other. Already
// mapped entities count as synced. A single aggregate entry is written to
// the sync log. The run stops early when ctx is done or the connection is lost.
func (s *SyncService) SyncAll(ctx context.Context, kind accounting.EntityKind) BulkSyncResult {
	result := BulkSyncResult{Kind: kind}
	if !kind.IsValid() {
		result.Error = accounting.ErrInvalidEntityKind.Error()
		return result
	}

	log := logger.FromContextOr(ctx, s.logger).With(zap.String("kind", kind.String()))
	ctx, span := telemetry.StartSpan(ctx, "accounting.sync_all."+kind.String(),
		telemetry.WithAttribute(telemetry.SpanAttrKind, kind.String()),
	)
	defer span.End()

	if _, err := s.tokens.GetValidAccessToken(ctx); err != nil {
		result = FailedBulkSyncResult(kind, err)
		if !result.authFailed {
			s.appendLog(ctx, accounting.NewErrorLogEntry(kind, 0, err.Error()))
		}
		log.Warn("Bulk sync not started", zap.Error(err))
		telemetry.RecordError(span, err)
		s.metrics.RecordBulkSync(ctx, kind.String(), bulkStatus(result))
		return result
	}

	var lastError string
	page := 1
walk:
	for {
		ids, err := s.listIDs(ctx, kind, page)
		if err != nil {
			if ctx.Err() != nil {
				result.Canceled = true
				break
			}
			result.Error = err.Error()
			break
		}

		for _, id := range ids {
			if ctx.Err() != nil {
				result.Canceled = true
				break walk
			}

			res := s.syncOne(ctx, kind, id, false)
			if res.authFailed {
				result.authFailed = true
				result.Error = res.Error
				break walk
			}
			result.Total++
			if res.Success {
				result.Synced++
			} else {
				result.Errors++
				lastError = res.Error
			}
		}

		if len(ids) < s.cfg.BatchSize {
			break
		}
		page++
	}

	if result.Canceled {
		result.Error = context.Cause(ctx).Error()
	}
	result.Success = result.Errors == 0 && result.Error == "" && !result.Canceled

	switch {
	case result.Success:
		s.appendLog(ctx, accounting.NewSuccessLogEntry(kind, result.Synced))
	case result.Errors > 0:
		msg := fmt.Sprintf("%d of %d failed", result.Errors, result.Total)
		if lastError != "" {
			msg += ": " + lastError
		}
		if result.Error != "" {
			msg += "; " + result.Error
		}
		s.appendLog(ctx, accounting.NewErrorLogEntry(kind, result.Synced, msg))
	default:
		s.appendLog(ctx, accounting.NewErrorLogEntry(kind, result.Synced, result.Error))
	}

	log.Info("Bulk sync finished",
		zap.Int("total", result.Total),
		zap.Int("synced", result.Synced),
		zap.Int("errors", result.Errors),
		zap.Bool("canceled", result.Canceled),
	)
	telemetry.SetAttributes(span,
		"accounting.total", result.Total,
		"accounting.synced", result.Synced,
		"accounting.errors", result.Errors,
	)
	if result.Success {
		telemetry.SetOK(span)
	} else {
		telemetry.RecordError(span, errors.New(bulkStatus(result)))
	}
	s.metrics.RecordBulkSync(ctx, kind.String(), bulkStatus(result))
	return result
}

func bulkStatus(r BulkSyncResult) string {
	switch {
	case r.Success:
		return telemetry.SyncStatusSuccess
	case r.authFailed:
		return telemetry.SyncStatusNotConnected
	}
	return telemetry.SyncStatusError
}

// listIDs returns one page of local entity IDs, oldest first
func (s *SyncService) listIDs(ctx context.Context, kind accounting.EntityKind, page int) ([]uuid.UUID, error) {
	filter := shared.Filter{
		Page:     page,
		PageSize: s.cfg.BatchSize,
		OrderBy:  "created_at",
		OrderDir: "asc",
	}

	switch kind {
	case accounting.EntityKindProduct:
		products, err := s.products.FindAll(ctx, filter)
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, len(products))
		for i := range products {
			ids[i] = products[i].ID
		}
		return ids, nil

	case accounting.EntityKindCustomer:
		customers, err := s.customers.FindAll(ctx, filter)
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, len(customers))
		for i := range customers {
			ids[i] = customers[i].ID
		}
		return ids, nil

	case accounting.EntityKindInvoice:
		sales, err := s.sales.FindAll(ctx, filter)
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, len(sales))
		for i := range sales {
			ids[i] = sales[i].ID
		}
		return ids, nil
	}
	return nil, accounting.ErrInvalidEntityKind
}

// ---------------------------------------------------------------------------
// Invoices
// ---------------------------------------------------------------------------

// SendInvoice emails the invoice of a synced sale. An empty email sends it
// to the invoice's bill email. Returns ErrInvoiceNotSynced when the sale has
// no invoice yet.
func (s *SyncService) SendInvoice(ctx context.Context, saleID uuid.UUID, email string) (*accounting.RemoteInvoice, error) {
	remoteID, found, err := s.mapper.Lookup(ctx, accounting.EntityKindInvoice, saleID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, accounting.ErrInvoiceNotSynced
	}

	invoice, err := s.gateway.SendInvoice(ctx, remoteID, strings.TrimSpace(email))
	if err != nil {
		logger.FromContextOr(ctx, s.logger).Error("Failed to send invoice",
			zap.String("sale_id", saleID.String()),
			zap.String("invoice_id", remoteID),
			zap.Error(err),
		)
		return nil, err
	}
	return invoice, nil
}
