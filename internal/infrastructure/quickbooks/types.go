package quickbooks

import (
	"encoding/json"
	"time"

	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/shopspring/decimal"
)

// dateLayout is the platform's date format for TxnDate, DueDate and report periods
const dateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Common wire types
// ---------------------------------------------------------------------------

type refValue struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type emailAddress struct {
	Address string `json:"Address"`
}

type telephoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber"`
}

type physicalAddress struct {
	Line1                  string `json:"Line1,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
	Country                string `json:"Country,omitempty"`
}

// faultResponse is the error body of a non-2xx answer
type faultResponse struct {
	Fault struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
		Type string `json:"type"`
	} `json:"Fault"`
}

func ref(value string) *refValue {
	if value == "" {
		return nil
	}
	return &refValue{Value: value}
}

func refString(r *refValue) string {
	if r == nil {
		return ""
	}
	return r.Value
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func toDecimal(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolPtr(b bool) *bool {
	return &b
}

func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ---------------------------------------------------------------------------
// Customer
// ---------------------------------------------------------------------------

type customerPayload struct {
	ID               string           `json:"Id,omitempty"`
	SyncToken        string           `json:"SyncToken,omitempty"`
	Sparse           bool             `json:"sparse,omitempty"`
	DisplayName      string           `json:"DisplayName,omitempty"`
	CompanyName      string           `json:"CompanyName,omitempty"`
	PrimaryEmailAddr *emailAddress    `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *telephoneNumber `json:"PrimaryPhone,omitempty"`
	BillAddr         *physicalAddress `json:"BillAddr,omitempty"`
	Notes            string           `json:"Notes,omitempty"`
	Active           *bool            `json:"Active,omitempty"`
}

type customerResponse struct {
	Customer customerPayload `json:"Customer"`
}

func customerToWire(c *accounting.RemoteCustomer) *customerPayload {
	p := &customerPayload{
		ID:          c.ID,
		SyncToken:   c.SyncToken,
		DisplayName: c.DisplayName,
		CompanyName: c.CompanyName,
		Notes:       c.Notes,
		Active:      boolPtr(c.Active),
	}
	if c.Email != "" {
		p.PrimaryEmailAddr = &emailAddress{Address: c.Email}
	}
	if c.Phone != "" {
		p.PrimaryPhone = &telephoneNumber{FreeFormNumber: c.Phone}
	}
	if a := c.BillAddress; a != nil {
		p.BillAddr = &physicalAddress{
			Line1:                  a.Line1,
			City:                   a.City,
			CountrySubDivisionCode: a.Region,
			PostalCode:             a.PostalCode,
			Country:                a.Country,
		}
	}
	return p
}

func (p *customerPayload) toDomain() *accounting.RemoteCustomer {
	c := &accounting.RemoteCustomer{
		ID:          p.ID,
		SyncToken:   p.SyncToken,
		DisplayName: p.DisplayName,
		CompanyName: p.CompanyName,
		Notes:       p.Notes,
		Active:      p.Active == nil || *p.Active,
	}
	if p.PrimaryEmailAddr != nil {
		c.Email = p.PrimaryEmailAddr.Address
	}
	if p.PrimaryPhone != nil {
		c.Phone = p.PrimaryPhone.FreeFormNumber
	}
	if a := p.BillAddr; a != nil {
		c.BillAddress = &accounting.RemoteAddress{
			Line1:      a.Line1,
			City:       a.City,
			Region:     a.CountrySubDivisionCode,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		}
	}
	return c
}

// ---------------------------------------------------------------------------
// Item
// ---------------------------------------------------------------------------

type itemPayload struct {
	ID                string      `json:"Id,omitempty"`
	SyncToken         string      `json:"SyncToken,omitempty"`
	Sparse            bool        `json:"sparse,omitempty"`
	Name              string      `json:"Name,omitempty"`
	Sku               string      `json:"Sku,omitempty"`
	Description       string      `json:"Description,omitempty"`
	Type              string      `json:"Type,omitempty"`
	UnitPrice         json.Number `json:"UnitPrice,omitempty"`
	PurchaseCost      json.Number `json:"PurchaseCost,omitempty"`
	QtyOnHand         json.Number `json:"QtyOnHand,omitempty"`
	TrackQtyOnHand    bool        `json:"TrackQtyOnHand,omitempty"`
	InvStartDate      string      `json:"InvStartDate,omitempty"`
	IncomeAccountRef  *refValue   `json:"IncomeAccountRef,omitempty"`
	AssetAccountRef   *refValue   `json:"AssetAccountRef,omitempty"`
	ExpenseAccountRef *refValue   `json:"ExpenseAccountRef,omitempty"`
	Active            *bool       `json:"Active,omitempty"`
}

type itemResponse struct {
	Item itemPayload `json:"Item"`
}

func itemToWire(i *accounting.RemoteItem) *itemPayload {
	p := &itemPayload{
		ID:                i.ID,
		SyncToken:         i.SyncToken,
		Name:              i.Name,
		Sku:               i.SKU,
		Description:       i.Description,
		Type:              string(i.Type),
		UnitPrice:         number(i.UnitPrice),
		PurchaseCost:      number(i.PurchaseCost),
		TrackQtyOnHand:    i.TrackQtyOnHand,
		IncomeAccountRef:  ref(i.IncomeAccountRef),
		AssetAccountRef:   ref(i.AssetAccountRef),
		ExpenseAccountRef: ref(i.ExpenseAccountRef),
		Active:            boolPtr(i.Active),
	}
	if i.TrackQtyOnHand {
		p.QtyOnHand = number(i.QtyOnHand)
		if i.InventoryStartAt != nil {
			p.InvStartDate = i.InventoryStartAt.Format(dateLayout)
		}
	}
	return p
}

func (p *itemPayload) toDomain() *accounting.RemoteItem {
	item := &accounting.RemoteItem{
		ID:                p.ID,
		SyncToken:         p.SyncToken,
		Name:              p.Name,
		SKU:               p.Sku,
		Description:       p.Description,
		Type:              accounting.ItemType(p.Type),
		UnitPrice:         toDecimal(p.UnitPrice),
		PurchaseCost:      toDecimal(p.PurchaseCost),
		QtyOnHand:         toDecimal(p.QtyOnHand),
		TrackQtyOnHand:    p.TrackQtyOnHand,
		IncomeAccountRef:  refString(p.IncomeAccountRef),
		AssetAccountRef:   refString(p.AssetAccountRef),
		ExpenseAccountRef: refString(p.ExpenseAccountRef),
		Active:            p.Active == nil || *p.Active,
	}
	if p.InvStartDate != "" {
		start := parseDate(p.InvStartDate)
		item.InventoryStartAt = &start
	}
	return item
}

// ---------------------------------------------------------------------------
// Invoice
// ---------------------------------------------------------------------------

const salesItemLineDetail = "SalesItemLineDetail"

type salesItemDetail struct {
	ItemRef   *refValue   `json:"ItemRef,omitempty"`
	Qty       json.Number `json:"Qty,omitempty"`
	UnitPrice json.Number `json:"UnitPrice,omitempty"`
}

type invoiceLinePayload struct {
	ID                  string           `json:"Id,omitempty"`
	LineNum             int              `json:"LineNum,omitempty"`
	Description         string           `json:"Description,omitempty"`
	Amount              json.Number      `json:"Amount"`
	DetailType          string           `json:"DetailType"`
	SalesItemLineDetail *salesItemDetail `json:"SalesItemLineDetail,omitempty"`
}

type invoicePayload struct {
	ID          string               `json:"Id,omitempty"`
	SyncToken   string               `json:"SyncToken,omitempty"`
	DocNumber   string               `json:"DocNumber,omitempty"`
	TxnDate     string               `json:"TxnDate,omitempty"`
	DueDate     string               `json:"DueDate,omitempty"`
	CustomerRef *refValue            `json:"CustomerRef,omitempty"`
	Line        []invoiceLinePayload `json:"Line"`
	PrivateNote string               `json:"PrivateNote,omitempty"`
	BillEmail   *emailAddress        `json:"BillEmail,omitempty"`
	TotalAmt    json.Number          `json:"TotalAmt,omitempty"`
	Balance     json.Number          `json:"Balance,omitempty"`
	EmailStatus string               `json:"EmailStatus,omitempty"`
}

type invoiceResponse struct {
	Invoice invoicePayload `json:"Invoice"`
}

func invoiceToWire(inv *accounting.RemoteInvoice) *invoicePayload {
	p := &invoicePayload{
		ID:          inv.ID,
		SyncToken:   inv.SyncToken,
		DocNumber:   inv.DocNumber,
		CustomerRef: ref(inv.CustomerRef),
		PrivateNote: inv.PrivateNote,
		Line:        make([]invoiceLinePayload, 0, len(inv.Lines)),
	}
	if !inv.TxnDate.IsZero() {
		p.TxnDate = inv.TxnDate.Format(dateLayout)
	}
	if !inv.DueDate.IsZero() {
		p.DueDate = inv.DueDate.Format(dateLayout)
	}
	if inv.BillEmail != "" {
		p.BillEmail = &emailAddress{Address: inv.BillEmail}
	}
	for i, line := range inv.Lines {
		var itemRef *refValue
		if line.ItemRef != "" {
			itemRef = &refValue{Value: line.ItemRef, Name: line.ItemName}
		}
		p.Line = append(p.Line, invoiceLinePayload{
			LineNum:     i + 1,
			Description: line.Description,
			Amount:      number(line.Amount),
			DetailType:  salesItemLineDetail,
			SalesItemLineDetail: &salesItemDetail{
				ItemRef:   itemRef,
				Qty:       number(line.Quantity),
				UnitPrice: number(line.UnitPrice),
			},
		})
	}
	return p
}

func (p *invoicePayload) toDomain() *accounting.RemoteInvoice {
	inv := &accounting.RemoteInvoice{
		ID:          p.ID,
		SyncToken:   p.SyncToken,
		DocNumber:   p.DocNumber,
		TxnDate:     parseDate(p.TxnDate),
		DueDate:     parseDate(p.DueDate),
		CustomerRef: refString(p.CustomerRef),
		PrivateNote: p.PrivateNote,
		TotalAmount: toDecimal(p.TotalAmt),
		Balance:     toDecimal(p.Balance),
		EmailStatus: p.EmailStatus,
	}
	if p.BillEmail != nil {
		inv.BillEmail = p.BillEmail.Address
	}
	for _, l := range p.Line {
		if l.DetailType != salesItemLineDetail || l.SalesItemLineDetail == nil {
			continue
		}
		inv.Lines = append(inv.Lines, accounting.InvoiceLine{
			ItemRef:     refString(l.SalesItemLineDetail.ItemRef),
			Description: l.Description,
			Quantity:    toDecimal(l.SalesItemLineDetail.Qty),
			UnitPrice:   toDecimal(l.SalesItemLineDetail.UnitPrice),
			Amount:      toDecimal(l.Amount),
		})
		if r := l.SalesItemLineDetail.ItemRef; r != nil {
			inv.Lines[len(inv.Lines)-1].ItemName = r.Name
		}
	}
	return inv
}

// ---------------------------------------------------------------------------
// Company info and reports
// ---------------------------------------------------------------------------

type companyInfoResponse struct {
	CompanyInfo struct {
		ID          string        `json:"Id"`
		CompanyName string        `json:"CompanyName"`
		LegalName   string        `json:"LegalName"`
		Country     string        `json:"Country"`
		Email       *emailAddress `json:"Email,omitempty"`
	} `json:"CompanyInfo"`
}

type reportResponse struct {
	Header struct {
		ReportName  string `json:"ReportName"`
		StartPeriod string `json:"StartPeriod"`
		EndPeriod   string `json:"EndPeriod"`
		Currency    string `json:"Currency"`
		Time        string `json:"Time"`
	} `json:"Header"`
	Columns json.RawMessage `json:"Columns"`
	Rows    json.RawMessage `json:"Rows"`
}

// ---------------------------------------------------------------------------
// OAuth
// ---------------------------------------------------------------------------

// tokenResponse is the token endpoint answer; lifetimes are in seconds
type tokenResponse struct {
	AccessToken            string `json:"access_token"`
	RefreshToken           string `json:"refresh_token"`
	TokenType              string `json:"token_type"`
	ExpiresIn              int64  `json:"expires_in"`
	XRefreshTokenExpiresIn int64  `json:"x_refresh_token_expires_in"`
}

func (r *tokenResponse) toGrant() *accounting.TokenGrant {
	return &accounting.TokenGrant{
		AccessToken:           r.AccessToken,
		RefreshToken:          r.RefreshToken,
		TokenType:             r.TokenType,
		ExpiresIn:             time.Duration(r.ExpiresIn) * time.Second,
		RefreshTokenExpiresIn: time.Duration(r.XRefreshTokenExpiresIn) * time.Second,
	}
}

// oauthErrorResponse is the token endpoint's error body
type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
