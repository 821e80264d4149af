package accounting

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Remote entities
// ---------------------------------------------------------------------------

// RemoteAddress is a postal address on the accounting platform
type RemoteAddress struct {
	Line1      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// RemoteCustomer is a customer record on the accounting platform
type RemoteCustomer struct {
	ID          string
	SyncToken   string
	DisplayName string
	CompanyName string
	Email       string
	Phone       string
	BillAddress *RemoteAddress
	Notes       string
	Active      bool
}

// ItemType is the accounting platform's item classification
type ItemType string

const (
	ItemTypeInventory    ItemType = "Inventory"
	ItemTypeNonInventory ItemType = "NonInventory"
	ItemTypeService      ItemType = "Service"
)

// IsValid checks if the item type is valid
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeInventory, ItemTypeNonInventory, ItemTypeService:
		return true
	}
	return false
}

// RemoteItem is a product/service record on the accounting platform
type RemoteItem struct {
	ID                string
	SyncToken         string
	Name              string
	SKU               string
	Description       string
	Type              ItemType
	UnitPrice         decimal.Decimal
	PurchaseCost      decimal.Decimal
	QtyOnHand         decimal.Decimal
	TrackQtyOnHand    bool
	InventoryStartAt  *time.Time
	IncomeAccountRef  string
	AssetAccountRef   string
	ExpenseAccountRef string
	Active            bool
}

// InvoiceLine is one sales line of a remote invoice.
// ItemRef is empty when the line's product could not be synced.
type InvoiceLine struct {
	ItemRef     string
	ItemName    string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
}

// RemoteInvoice is an invoice on the accounting platform
type RemoteInvoice struct {
	ID          string
	SyncToken   string
	DocNumber   string
	TxnDate     time.Time
	DueDate     time.Time
	CustomerRef string
	Lines       []InvoiceLine
	PrivateNote string
	BillEmail   string
	TotalAmount decimal.Decimal
	Balance     decimal.Decimal
	EmailStatus string
}

// CompanyInfo describes the connected accounting company
type CompanyInfo struct {
	ID          string
	CompanyName string
	LegalName   string
	Country     string
	Email       string
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

// ReportKind names a financial report of the accounting platform
type ReportKind string

const (
	ReportProfitAndLoss ReportKind = "ProfitAndLoss"
	ReportBalanceSheet  ReportKind = "BalanceSheet"
	ReportCashFlow      ReportKind = "CashFlow"
)

// IsValid checks if the report kind is valid
func (k ReportKind) IsValid() bool {
	switch k {
	case ReportProfitAndLoss, ReportBalanceSheet, ReportCashFlow:
		return true
	}
	return false
}

// String returns the string representation
func (k ReportKind) String() string {
	return string(k)
}

// Report is a financial report as returned by the platform.
// Rows keeps the platform's nested row structure untouched.
type Report struct {
	Kind        ReportKind
	Name        string
	StartPeriod string
	EndPeriod   string
	Currency    string
	GeneratedAt string
	Columns     json.RawMessage
	Rows        json.RawMessage
}

// ---------------------------------------------------------------------------
// Gateway Port
// ---------------------------------------------------------------------------

// CustomerGateway manages customers on the accounting platform
type CustomerGateway interface {
	CreateCustomer(ctx context.Context, customer *RemoteCustomer) (*RemoteCustomer, error)
	UpdateCustomer(ctx context.Context, customer *RemoteCustomer) (*RemoteCustomer, error)
	GetCustomer(ctx context.Context, id string) (*RemoteCustomer, error)
}

// ItemGateway manages items on the accounting platform
type ItemGateway interface {
	CreateItem(ctx context.Context, item *RemoteItem) (*RemoteItem, error)
	UpdateItem(ctx context.Context, item *RemoteItem) (*RemoteItem, error)
	GetItem(ctx context.Context, id string) (*RemoteItem, error)
}

// InvoiceGateway manages invoices on the accounting platform
type InvoiceGateway interface {
	CreateInvoice(ctx context.Context, invoice *RemoteInvoice) (*RemoteInvoice, error)
	GetInvoice(ctx context.Context, id string) (*RemoteInvoice, error)
	// SendInvoice emails the invoice; an empty email uses the invoice's bill email
	SendInvoice(ctx context.Context, id string, email string) (*RemoteInvoice, error)
}

// ReportGateway reads financial reports
type ReportGateway interface {
	GetReport(ctx context.Context, kind ReportKind, start, end time.Time) (*Report, error)
}

// Gateway is the authenticated accounting platform API.
// Every call obtains its bearer token from an AccessTokenProvider and fails with
// ErrNotConnected when there is none. Non-2xx answers return *RemoteAPIError.
// Calls are never retried.
type Gateway interface {
	CustomerGateway
	ItemGateway
	InvoiceGateway
	ReportGateway

	// GetCompanyInfo reads the connected company; used as a connectivity probe
	GetCompanyInfo(ctx context.Context) (*CompanyInfo, error)
}
