package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retailhub/backend/internal/domain/accounting"
)

// ConnectResponse carries the URL the user is sent to for authorization
// @name HandlerConnectResponse
type ConnectResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// CallbackRequest is the query of the OAuth redirect
type CallbackRequest struct {
	Code             string `form:"code"`
	State            string `form:"state" binding:"required"`
	RealmID          string `form:"realmId"`
	Error            string `form:"error"`
	ErrorDescription string `form:"error_description"`
}

// ConnectionResponse describes a stored connection without its secrets
// @name HandlerConnectionResponse
type ConnectionResponse struct {
	RealmID               string     `json:"realm_id"`
	Environment           string     `json:"environment"`
	ExpiresAt             time.Time  `json:"expires_at"`
	RefreshTokenExpiresAt *time.Time `json:"refresh_token_expires_at,omitempty"`
	ConnectedAt           time.Time  `json:"connected_at"`
}

func toConnectionResponse(r *accounting.TokenRecord) ConnectionResponse {
	return ConnectionResponse{
		RealmID:               r.RealmID,
		Environment:           r.Environment.String(),
		ExpiresAt:             r.ExpiresAt,
		RefreshTokenExpiresAt: r.RefreshTokenExpiresAt,
		ConnectedAt:           r.CreatedAt,
	}
}

// CompanyInfoResponse is the connection probe result
// @name HandlerCompanyInfoResponse
type CompanyInfoResponse struct {
	ID          string `json:"id"`
	CompanyName string `json:"company_name"`
	LegalName   string `json:"legal_name,omitempty"`
	Country     string `json:"country,omitempty"`
	Email       string `json:"email,omitempty"`
}

func toCompanyInfoResponse(info *accounting.CompanyInfo) CompanyInfoResponse {
	return CompanyInfoResponse{
		ID:          info.ID,
		CompanyName: info.CompanyName,
		LegalName:   info.LegalName,
		Country:     info.Country,
		Email:       info.Email,
	}
}

// SyncLogListRequest filters the sync log
type SyncLogListRequest struct {
	EntityType string `form:"entity_type"`
	Status     string `form:"status" binding:"omitempty,oneof=success error pending"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// SyncLogResponse is one sync log entry
// @name HandlerSyncLogResponse
type SyncLogResponse struct {
	ID               uuid.UUID `json:"id"`
	EntityType       string    `json:"entity_type"`
	Status           string    `json:"status"`
	RecordsProcessed int       `json:"records_processed"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toSyncLogResponses(entries []accounting.SyncLogEntry) []SyncLogResponse {
	out := make([]SyncLogResponse, len(entries))
	for i, e := range entries {
		out[i] = SyncLogResponse{
			ID:               e.ID,
			EntityType:       e.EntityType.String(),
			Status:           e.Status.String(),
			RecordsProcessed: e.RecordsProcessed,
			ErrorMessage:     e.ErrorMessage,
			CreatedAt:        e.CreatedAt,
		}
	}
	return out
}

// SendInvoiceRequest optionally overrides the invoice's bill email
type SendInvoiceRequest struct {
	Email string `json:"email" binding:"omitempty,email"`
}

// InvoiceResponse describes a remote invoice
// @name HandlerInvoiceResponse
type InvoiceResponse struct {
	ID          string          `json:"id"`
	DocNumber   string          `json:"doc_number"`
	TxnDate     time.Time       `json:"txn_date"`
	DueDate     time.Time       `json:"due_date"`
	CustomerRef string          `json:"customer_ref"`
	BillEmail   string          `json:"bill_email,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Balance     decimal.Decimal `json:"balance"`
	EmailStatus string          `json:"email_status,omitempty"`
}

func toInvoiceResponse(inv *accounting.RemoteInvoice) InvoiceResponse {
	return InvoiceResponse{
		ID:          inv.ID,
		DocNumber:   inv.DocNumber,
		TxnDate:     inv.TxnDate,
		DueDate:     inv.DueDate,
		CustomerRef: inv.CustomerRef,
		BillEmail:   inv.BillEmail,
		TotalAmount: inv.TotalAmount,
		Balance:     inv.Balance,
		EmailStatus: inv.EmailStatus,
	}
}

// ReportRequest selects the report period; dates are YYYY-MM-DD
type ReportRequest struct {
	StartDate string `form:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate   string `form:"end_date" binding:"omitempty,datetime=2006-01-02"`
}

// ReportResponse is a financial report with the platform's row structure
// @name HandlerReportResponse
type ReportResponse struct {
	Kind        string          `json:"kind"`
	Name        string          `json:"name"`
	StartPeriod string          `json:"start_period"`
	EndPeriod   string          `json:"end_period"`
	Currency    string          `json:"currency,omitempty"`
	GeneratedAt string          `json:"generated_at,omitempty"`
	Columns     json.RawMessage `json:"columns,omitempty"`
	Rows        json.RawMessage `json:"rows,omitempty"`
}

func toReportResponse(r *accounting.Report) ReportResponse {
	return ReportResponse{
		Kind:        r.Kind.String(),
		Name:        r.Name,
		StartPeriod: r.StartPeriod,
		EndPeriod:   r.EndPeriod,
		Currency:    r.Currency,
		GeneratedAt: r.GeneratedAt,
		Columns:     r.Columns,
		Rows:        r.Rows,
	}
}

// EnqueueJobRequest submits a background sync job; without local_id every
// entity of the kind is synced
type EnqueueJobRequest struct {
	Kind    string `json:"kind" binding:"required"`
	LocalID string `json:"local_id" binding:"omitempty,uuid"`
}

// JobListRequest limits the job listing
type JobListRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}
