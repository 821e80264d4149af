package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appaccounting "github.com/retailhub/backend/internal/application/accounting"
	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/logger"
	"github.com/retailhub/backend/internal/infrastructure/scheduler"
	"github.com/retailhub/backend/internal/interfaces/http/dto"
	"github.com/retailhub/backend/internal/interfaces/http/middleware"
)

const (
	defaultLogPageSize = 20
	defaultJobLimit    = 50
	reportDateLayout   = "2006-01-02"
)

// ConnectionService runs the OAuth connect flow
type ConnectionService interface {
	AuthorizationURL(ctx context.Context) (string, string, error)
	VerifyState(state string) error
	ExchangeCodeForTokens(ctx context.Context, code, realmID string) (*accounting.TokenRecord, error)
	Disconnect(ctx context.Context) error
}

// SyncRunner syncs local entities to the accounting platform
type SyncRunner interface {
	SyncOne(ctx context.Context, kind accounting.EntityKind, localID uuid.UUID) appaccounting.SyncResult
	SyncAll(ctx context.Context, kind accounting.EntityKind) appaccounting.BulkSyncResult
	SendInvoice(ctx context.Context, saleID uuid.UUID, email string) (*accounting.RemoteInvoice, error)
}

// StatusReader reports sync progress
type StatusReader interface {
	GetSyncStatus(ctx context.Context) (*appaccounting.SyncStatus, error)
	ListSyncLogs(ctx context.Context, filter accounting.SyncLogFilter) ([]accounting.SyncLogEntry, int64, error)
	TestConnection(ctx context.Context) (*accounting.CompanyInfo, error)
}

// ReportReader reads financial reports
type ReportReader interface {
	GetReport(ctx context.Context, kind accounting.ReportKind, start, end time.Time) (*accounting.Report, error)
}

// JobQueue runs sync jobs in the background
type JobQueue interface {
	Enqueue(req scheduler.SyncJobRequest) (scheduler.JobHandle, error)
	Get(id uuid.UUID) (scheduler.SyncJob, error)
	List(limit int) []scheduler.SyncJob
	Cancel(id uuid.UUID) error
}

// AccountingHandlerDeps holds the services used by AccountingHandler
type AccountingHandlerDeps struct {
	Connection ConnectionService
	Sync       SyncRunner
	Status     StatusReader
	Reports    ReportReader
	Jobs       JobQueue
	// CallbackRedirectURL, when set, receives the browser after the OAuth
	// callback instead of a JSON body
	CallbackRedirectURL string
}

// AccountingHandler handles the accounting integration API
type AccountingHandler struct {
	BaseHandler
	connection  ConnectionService
	sync        SyncRunner
	status      StatusReader
	reports     ReportReader
	jobs        JobQueue
	redirectURL string
}

// NewAccountingHandler creates a new AccountingHandler
func NewAccountingHandler(deps AccountingHandlerDeps) *AccountingHandler {
	return &AccountingHandler{
		connection:  deps.Connection,
		sync:        deps.Sync,
		status:      deps.Status,
		reports:     deps.Reports,
		jobs:        deps.Jobs,
		redirectURL: deps.CallbackRedirectURL,
	}
}

// Connect godoc
// @ID           connectAccounting
// @Summary      Start the accounting connection
// @Description  Returns the authorization URL and the signed state of a new connect flow
// @Tags         accounting
// @Produce      json
// @Success      200 {object} APIResponse[ConnectResponse]
// @Failure      500 {object} ErrorResponse
// @Router       /accounting/connect [get]
func (h *AccountingHandler) Connect(c *gin.Context) {
	authURL, state, err := h.connection.AuthorizationURL(c.Request.Context())
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}
	h.Success(c, ConnectResponse{AuthorizationURL: authURL, State: state})
}

// Callback godoc
// @ID           accountingCallback
// @Summary      Complete the accounting connection
// @Description  Verifies the state and exchanges the authorization code for tokens
// @Tags         accounting
// @Produce      json
// @Param        code     query string true "Authorization code"
// @Param        state    query string true "State returned by connect"
// @Param        realmId  query string true "Company ID"
// @Success      200 {object} APIResponse[ConnectionResponse]
// @Success      302
// @Failure      400 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /accounting/callback [get]
func (h *AccountingHandler) Callback(c *gin.Context) {
	var req CallbackRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if err := h.connection.VerifyState(req.State); err != nil {
		h.handleAccountingError(c, err)
		return
	}

	if req.Error != "" {
		msg := "Authorization was not granted: " + req.Error
		if req.ErrorDescription != "" {
			msg += " (" + req.ErrorDescription + ")"
		}
		h.callbackFailed(c, dto.ErrCodeBadRequest, msg)
		return
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.RealmID) == "" {
		h.callbackFailed(c, dto.ErrCodeBadRequest, "code and realmId are required")
		return
	}

	record, err := h.connection.ExchangeCodeForTokens(c.Request.Context(), req.Code, req.RealmID)
	if err != nil {
		logger.GetGinLogger(c).Warn("Accounting code exchange failed", zap.Error(err))
		code := accountingErrorCode(err)
		if code == "" {
			code = dto.ErrCodeInternal
		}
		h.callbackFailed(c, code, err.Error())
		return
	}

	if h.redirectURL != "" {
		c.Redirect(http.StatusFound, h.callbackRedirect(url.Values{
			"accounting": {"connected"},
			"realm_id":   {record.RealmID},
		}))
		return
	}
	h.Success(c, toConnectionResponse(record))
}

func (h *AccountingHandler) callbackFailed(c *gin.Context, code, msg string) {
	if h.redirectURL != "" {
		c.Redirect(http.StatusFound, h.callbackRedirect(url.Values{
			"accounting": {"error"},
			"message":    {msg},
		}))
		return
	}
	h.ErrorWithCode(c, code, msg)
}

func (h *AccountingHandler) callbackRedirect(q url.Values) string {
	sep := "?"
	if strings.Contains(h.redirectURL, "?") {
		sep = "&"
	}
	return h.redirectURL + sep + q.Encode()
}

// Disconnect godoc
// @ID           disconnectAccounting
// @Summary      Disconnect the accounting platform
// @Description  Deletes the stored tokens; mappings and the sync log are kept
// @Tags         accounting
// @Produce      json
// @Success      200 {object} SuccessResponse
// @Failure      500 {object} ErrorResponse
// @Router       /accounting/disconnect [post]
func (h *AccountingHandler) Disconnect(c *gin.Context) {
	if err := h.connection.Disconnect(c.Request.Context()); err != nil {
		h.handleAccountingError(c, err)
		return
	}
	h.Success(c, gin.H{"connected": false})
}

// GetStatus godoc
// @ID           getAccountingStatus
// @Summary      Get sync status
// @Description  Returns the connection state and per-kind sync counts
// @Tags         accounting
// @Produce      json
// @Success      200 {object} APIResponse[appaccounting.SyncStatus]
// @Failure      500 {object} ErrorResponse
// @Router       /accounting/status [get]
func (h *AccountingHandler) GetStatus(c *gin.Context) {
	status, err := h.status.GetSyncStatus(c.Request.Context())
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}
	h.Success(c, status)
}

// TestConnection godoc
// @ID           testAccountingConnection
// @Summary      Probe the accounting connection
// @Description  Reads the company info with the stored token
// @Tags         accounting
// @Produce      json
// @Success      200 {object} APIResponse[CompanyInfoResponse]
// @Failure      409 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /accounting/connection/test [get]
func (h *AccountingHandler) TestConnection(c *gin.Context) {
	info, err := h.status.TestConnection(c.Request.Context())
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}
	h.Success(c, toCompanyInfoResponse(info))
}

// ListLogs godoc
// @ID           listAccountingSyncLogs
// @Summary      List sync log entries
// @Description  Newest first, optionally filtered by entity type and status
// @Tags         accounting
// @Produce      json
// @Param        entity_type query string false "product, customer or invoice"
// @Param        status      query string false "success, error or pending"
// @Param        page        query int    false "Page number"
// @Param        page_size   query int    false "Page size"
// @Success      200 {object} APIResponse[[]SyncLogResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /accounting/logs [get]
func (h *AccountingHandler) ListLogs(c *gin.Context) {
	var req SyncLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = defaultLogPageSize
	}

	filter := accounting.SyncLogFilter{Page: req.Page, PageSize: req.PageSize}
	if req.EntityType != "" {
		kind, err := accounting.ParseEntityKind(req.EntityType)
		if err != nil {
			h.handleAccountingError(c, err)
			return
		}
		filter.EntityType = &kind
	}
	if req.Status != "" {
		status := accounting.SyncLogStatus(req.Status)
		filter.Status = &status
	}

	entries, total, err := h.status.ListSyncLogs(c.Request.Context(), filter)
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}
	h.SuccessWithMeta(c, toSyncLogResponses(entries), total, req.Page, req.PageSize)
}

// SyncAll godoc
// @ID           syncAllAccountingEntities
// @Summary      Sync every entity of a kind
// @Description  Runs synchronously; failures of single entities are counted in the result
// @Tags         accounting
// @Produce      json
// @Param        kind path string true "products, customers or sales"
// @Success      200 {object} APIResponse[appaccounting.BulkSyncResult]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /accounting/sync/{kind} [post]
func (h *AccountingHandler) SyncAll(c *gin.Context) {
	kind, err := accounting.ParseEntityKind(c.Param("kind"))
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}

	result := h.sync.SyncAll(c.Request.Context(), kind)
	if result.NotConnected() {
		h.ErrorWithCode(c, dto.ErrCodeNotConnected, result.Error)
		return
	}
	h.Success(c, result)
}

// SyncOne godoc
// @ID           syncAccountingEntity
// @Summary      Sync one entity
// @Description  Creates the remote record unless the entity is already mapped
// @Tags         accounting
// @Produce      json
// @Param        kind path string true "products, customers or sales"
// @Param        id   path string true "Local entity ID" format(uuid)
// @Success      200 {object} APIResponse[appaccounting.SyncResult]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /accounting/sync/{kind}/{id} [post]
func (h *AccountingHandler) SyncOne(c *gin.Context) {
	kind, err := accounting.ParseEntityKind(c.Param("kind"))
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}
	localID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidInput, "Invalid entity ID")
		return
	}

	result := h.sync.SyncOne(c.Request.Context(), kind, localID)
	switch {
	case result.NotConnected():
		h.ErrorWithCode(c, dto.ErrCodeNotConnected, result.Error)
	case !result.Success:
		h.ErrorWithCode(c, dto.ErrCodeSyncFailed, result.Error)
	default:
		h.Success(c, result)
	}
}

// SendInvoice godoc
// @ID           sendAccountingInvoice
// @Summary      Email the invoice of a sale
// @Description  The sale must have been synced; an empty email uses the invoice's bill email
// @Tags         accounting
// @Accept       json
// @Produce      json
// @Param        saleId  path string             true  "Sale ID" format(uuid)
// @Param        request body SendInvoiceRequest false "Recipient override"
// @Success      200 {object} APIResponse[InvoiceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /accounting/invoices/{saleId}/send [post]
func (h *AccountingHandler) SendInvoice(c *gin.Context) {
	saleID, err := uuid.Parse(c.Param("saleId"))
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidInput, "Invalid sale ID")
		return
	}

	var req SendInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}

	invoice, err := h.sync.SendInvoice(c.Request.Context(), saleID, req.Email)
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}
	h.Success(c, toInvoiceResponse(invoice))
}

// GetReport godoc
// @ID           getAccountingReport
// @Summary      Get a financial report
// @Description  Profit and loss, balance sheet or cash flow; defaults to year to date
// @Tags         accounting
// @Produce      json
// @Param        report     path  string true  "ProfitAndLoss, BalanceSheet or CashFlow"
// @Param        start_date query string false "YYYY-MM-DD"
// @Param        end_date   query string false "YYYY-MM-DD"
// @Success      200 {object} APIResponse[ReportResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /accounting/reports/{report} [get]
func (h *AccountingHandler) GetReport(c *gin.Context) {
	kind, ok := parseReportKind(c.Param("report"))
	if !ok {
		h.handleAccountingError(c, accounting.ErrInvalidReportKind)
		return
	}

	var req ReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	var start, end time.Time
	if req.StartDate != "" {
		start, _ = time.Parse(reportDateLayout, req.StartDate)
	}
	if req.EndDate != "" {
		end, _ = time.Parse(reportDateLayout, req.EndDate)
	}

	report, err := h.reports.GetReport(c.Request.Context(), kind, start, end)
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}
	h.Success(c, toReportResponse(report))
}

// parseReportKind accepts the platform's report name or a snake_case alias
func parseReportKind(s string) (accounting.ReportKind, bool) {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(s)))
	switch normalized {
	case "profitandloss", "pnl":
		return accounting.ReportProfitAndLoss, true
	case "balancesheet":
		return accounting.ReportBalanceSheet, true
	case "cashflow":
		return accounting.ReportCashFlow, true
	}
	return "", false
}

// EnqueueJob godoc
// @ID           enqueueAccountingJob
// @Summary      Queue a background sync
// @Description  Without local_id every entity of the kind is synced
// @Tags         accounting
// @Accept       json
// @Produce      json
// @Param        request body EnqueueJobRequest true "Job"
// @Success      202 {object} APIResponse[scheduler.SyncJob]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /accounting/jobs [post]
func (h *AccountingHandler) EnqueueJob(c *gin.Context) {
	var req EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	kind, err := accounting.ParseEntityKind(req.Kind)
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}

	jobReq := scheduler.SyncJobRequest{Kind: kind}
	if req.LocalID != "" {
		id := uuid.MustParse(req.LocalID)
		jobReq.LocalID = &id
	}

	handle, err := h.jobs.Enqueue(jobReq)
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}
	job, err := h.jobs.Get(handle.ID)
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}
	h.Accepted(c, job)
}

// ListJobs godoc
// @ID           listAccountingJobs
// @Summary      List background sync jobs
// @Tags         accounting
// @Produce      json
// @Param        limit query int false "Maximum number of jobs"
// @Success      200 {object} APIResponse[[]scheduler.SyncJob]
// @Router       /accounting/jobs [get]
func (h *AccountingHandler) ListJobs(c *gin.Context) {
	var req JobListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultJobLimit
	}
	h.Success(c, h.jobs.List(req.Limit))
}

// GetJob godoc
// @ID           getAccountingJob
// @Summary      Get a background sync job
// @Tags         accounting
// @Produce      json
// @Param        id path string true "Job ID" format(uuid)
// @Success      200 {object} APIResponse[scheduler.SyncJob]
// @Failure      404 {object} ErrorResponse
// @Router       /accounting/jobs/{id} [get]
func (h *AccountingHandler) GetJob(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	job, err := h.jobs.Get(id)
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}
	h.Success(c, job)
}

// CancelJob godoc
// @ID           cancelAccountingJob
// @Summary      Cancel a background sync job
// @Description  Pending jobs never run; running jobs stop at the next entity
// @Tags         accounting
// @Produce      json
// @Param        id path string true "Job ID" format(uuid)
// @Success      200 {object} APIResponse[scheduler.SyncJob]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /accounting/jobs/{id} [delete]
func (h *AccountingHandler) CancelJob(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	if err := h.jobs.Cancel(id); err != nil {
		h.handleAccountingError(c, err)
		return
	}
	job, err := h.jobs.Get(id)
	if err != nil {
		h.handleAccountingError(c, err)
		return
	}
	h.Success(c, job)
}

func (h *AccountingHandler) jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidInput, "Invalid job ID")
		return uuid.Nil, false
	}
	return id, true
}

// handleAccountingError maps accounting and job errors to HTTP responses
func (h *AccountingHandler) handleAccountingError(c *gin.Context, err error) {
	code := accountingErrorCode(err)
	if code == "" {
		logger.GetGinLogger(c).Error("Accounting request failed", zap.Error(err))
		h.HandleError(c, err)
		return
	}
	_ = c.Error(err)
	h.ErrorWithCode(c, code, err.Error())
}

// accountingErrorCode returns an empty code for errors it does not know
func accountingErrorCode(err error) string {
	switch {
	case accounting.IsAuthError(err):
		return dto.ErrCodeNotConnected
	case errors.Is(err, accounting.ErrInvalidState):
		return dto.ErrCodeOAuthState
	case errors.Is(err, accounting.ErrInvalidEntityKind),
		errors.Is(err, accounting.ErrInvalidReportKind),
		errors.Is(err, accounting.ErrInvalidDateRange),
		errors.Is(err, accounting.ErrInvalidRealmID),
		errors.Is(err, accounting.ErrInvalidLocalID),
		errors.Is(err, scheduler.ErrInvalidJob):
		return dto.ErrCodeInvalidInput
	case errors.Is(err, accounting.ErrInvoiceNotSynced):
		return dto.ErrCodeInvalidState
	case errors.Is(err, accounting.ErrLocalEntityNotFound),
		errors.Is(err, accounting.ErrMappingNotFound),
		errors.Is(err, scheduler.ErrJobNotFound):
		return dto.ErrCodeNotFound
	case errors.Is(err, scheduler.ErrJobFinished):
		return dto.ErrCodeConflict
	case errors.Is(err, scheduler.ErrJobQueueFull):
		return dto.ErrCodeQueueFull
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		return dto.ErrCodeServiceUnavailable
	case errors.Is(err, accounting.ErrGatewayUnavailable):
		return dto.ErrCodeUpstreamUnavailable
	case errors.Is(err, accounting.ErrTokenExchangeFailed):
		return dto.ErrCodeUpstream
	}
	if _, ok := accounting.AsRemoteAPIError(err); ok {
		return dto.ErrCodeUpstream
	}
	return ""
}
