package quickbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Client implements accounting.Gateway over the accounting platform's REST API.
// Every call asks the token provider for a valid access token; calls are never retried.
type Client struct {
	config     *Config
	httpClient *resty.Client
	tokens     accounting.AccessTokenProvider
	logger     *zap.Logger
}

// NewClient creates a new accounting API client
func NewClient(config *Config, tokens accounting.AccessTokenProvider, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, errors.New("quickbooks: token provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetQueryParam("minorversion", MinorVersion)

	return &Client{
		config:     config,
		httpClient: client,
		tokens:     tokens,
		logger:     logger.With(zap.String("component", "quickbooks_gateway")),
	}, nil
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

// CreateCustomer creates a customer
func (c *Client) CreateCustomer(ctx context.Context, customer *accounting.RemoteCustomer) (*accounting.RemoteCustomer, error) {
	var out customerResponse
	if err := c.request(ctx, http.MethodPost, "/customer", nil, customerToWire(customer), &out); err != nil {
		return nil, err
	}
	return out.Customer.toDomain(), nil
}

// UpdateCustomer sparse-updates a customer; ID and SyncToken are required
func (c *Client) UpdateCustomer(ctx context.Context, customer *accounting.RemoteCustomer) (*accounting.RemoteCustomer, error) {
	if customer.ID == "" {
		return nil, accounting.ErrInvalidRemoteID
	}
	payload := customerToWire(customer)
	payload.Sparse = true

	var out customerResponse
	if err := c.request(ctx, http.MethodPost, "/customer", nil, payload, &out); err != nil {
		return nil, err
	}
	return out.Customer.toDomain(), nil
}

// GetCustomer reads a customer
func (c *Client) GetCustomer(ctx context.Context, id string) (*accounting.RemoteCustomer, error) {
	var out customerResponse
	if err := c.request(ctx, http.MethodGet, "/customer/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Customer.toDomain(), nil
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// CreateItem creates an item
func (c *Client) CreateItem(ctx context.Context, item *accounting.RemoteItem) (*accounting.RemoteItem, error) {
	var out itemResponse
	if err := c.request(ctx, http.MethodPost, "/item", nil, itemToWire(item), &out); err != nil {
		return nil, err
	}
	return out.Item.toDomain(), nil
}

// UpdateItem sparse-updates an item; ID and SyncToken are required
func (c *Client) UpdateItem(ctx context.Context, item *accounting.RemoteItem) (*accounting.RemoteItem, error) {
	if item.ID == "" {
		return nil, accounting.ErrInvalidRemoteID
	}
	payload := itemToWire(item)
	payload.Sparse = true

	var out itemResponse
	if err := c.request(ctx, http.MethodPost, "/item", nil, payload, &out); err != nil {
		return nil, err
	}
	return out.Item.toDomain(), nil
}

// GetItem reads an item
func (c *Client) GetItem(ctx context.Context, id string) (*accounting.RemoteItem, error) {
	var out itemResponse
	if err := c.request(ctx, http.MethodGet, "/item/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Item.toDomain(), nil
}

// ---------------------------------------------------------------------------
// Invoices
// ---------------------------------------------------------------------------

// CreateInvoice creates an invoice
func (c *Client) CreateInvoice(ctx context.Context, invoice *accounting.RemoteInvoice) (*accounting.RemoteInvoice, error) {
	var out invoiceResponse
	if err := c.request(ctx, http.MethodPost, "/invoice", nil, invoiceToWire(invoice), &out); err != nil {
		return nil, err
	}
	return out.Invoice.toDomain(), nil
}

// GetInvoice reads an invoice
func (c *Client) GetInvoice(ctx context.Context, id string) (*accounting.RemoteInvoice, error) {
	var out invoiceResponse
	if err := c.request(ctx, http.MethodGet, "/invoice/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Invoice.toDomain(), nil
}

// SendInvoice emails an invoice, to email when given or to its bill email otherwise
func (c *Client) SendInvoice(ctx context.Context, id string, email string) (*accounting.RemoteInvoice, error) {
	var query map[string]string
	if email != "" {
		query = map[string]string{"sendTo": email}
	}
	var out invoiceResponse
	if err := c.request(ctx, http.MethodPost, "/invoice/"+url.PathEscape(id)+"/send", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Invoice.toDomain(), nil
}

// ---------------------------------------------------------------------------
// Reports and company
// ---------------------------------------------------------------------------

// GetReport reads a financial report for the inclusive date range
func (c *Client) GetReport(ctx context.Context, kind accounting.ReportKind, start, end time.Time) (*accounting.Report, error) {
	if !kind.IsValid() {
		return nil, accounting.ErrInvalidReportKind
	}
	if end.Before(start) {
		return nil, accounting.ErrInvalidDateRange
	}

	query := map[string]string{
		"start_date": start.Format(dateLayout),
		"end_date":   end.Format(dateLayout),
	}
	var out reportResponse
	if err := c.request(ctx, http.MethodGet, "/reports/"+kind.String(), query, nil, &out); err != nil {
		return nil, err
	}
	return &accounting.Report{
		Kind:        kind,
		Name:        out.Header.ReportName,
		StartPeriod: out.Header.StartPeriod,
		EndPeriod:   out.Header.EndPeriod,
		Currency:    out.Header.Currency,
		GeneratedAt: out.Header.Time,
		Columns:     out.Columns,
		Rows:        out.Rows,
	}, nil
}

// GetCompanyInfo reads the connected company
func (c *Client) GetCompanyInfo(ctx context.Context) (*accounting.CompanyInfo, error) {
	token, err := c.tokens.GetValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	var out companyInfoResponse
	if err := c.requestWithToken(ctx, token, http.MethodGet, "/companyinfo/"+url.PathEscape(token.RealmID), nil, nil, &out); err != nil {
		return nil, err
	}
	info := &accounting.CompanyInfo{
		ID:          out.CompanyInfo.ID,
		CompanyName: out.CompanyInfo.CompanyName,
		LegalName:   out.CompanyInfo.LegalName,
		Country:     out.CompanyInfo.Country,
	}
	if out.CompanyInfo.Email != nil {
		info.Email = out.CompanyInfo.Email.Address
	}
	return info, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) request(ctx context.Context, method, endpoint string, query map[string]string, body, out any) error {
	token, err := c.tokens.GetValidAccessToken(ctx)
	if err != nil {
		return err
	}
	return c.requestWithToken(ctx, token, method, endpoint, query, body, out)
}

// requestWithToken calls {base}/v3/company/{realm}{endpoint} with the bearer token
// and decodes a 2xx JSON answer into out.
func (c *Client) requestWithToken(ctx context.Context, token *accounting.TokenRecord, method, endpoint string, query map[string]string, body, out any) error {
	ctx, span := telemetry.StartSpan(ctx, "quickbooks.api "+method,
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("http.method", method),
		telemetry.WithAttribute(telemetry.SpanAttrEndpoint, endpoint),
	)
	defer span.End()

	fullURL := c.config.BaseURL() + "/v3/company/" + url.PathEscape(token.RealmID) + endpoint

	req := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetQueryParams(query)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, fullURL)
	if err != nil {
		telemetry.RecordError(span, err)
		c.logger.Warn("Accounting API unreachable",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s %s: %v", accounting.ErrGatewayUnavailable, method, endpoint, err)
	}
	telemetry.SetAttribute(span, "http.status_code", resp.StatusCode())

	if !resp.IsSuccess() {
		apiErr := newRemoteAPIError(endpoint, resp)
		telemetry.RecordError(span, apiErr)
		c.logger.Warn("Accounting API returned error",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status_code", apiErr.StatusCode),
			zap.String("fault_code", apiErr.Code),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}

	c.logger.Debug("Accounting API call",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("latency", time.Since(start)),
	)

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("%w: %s: %v", accounting.ErrInvalidRemoteResponse, endpoint, err)
	}
	telemetry.SetOK(span)
	return nil
}

// newRemoteAPIError builds the error of a non-2xx answer, preferring the
// first fault message of the body over the status text.
func newRemoteAPIError(endpoint string, resp *resty.Response) *accounting.RemoteAPIError {
	apiErr := &accounting.RemoteAPIError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Endpoint:   endpoint,
		Message:    http.StatusText(resp.StatusCode()),
	}
	if apiErr.Status == "" {
		apiErr.Status = fmt.Sprintf("%d %s", resp.StatusCode(), apiErr.Message)
	}

	var fault faultResponse
	if err := json.Unmarshal(resp.Body(), &fault); err == nil && len(fault.Fault.Error) > 0 {
		first := fault.Fault.Error[0]
		apiErr.Code = first.Code
		if first.Message != "" {
			apiErr.Message = first.Message
		}
		if first.Detail != "" && first.Detail != first.Message {
			apiErr.Message += ": " + first.Detail
		}
	}
	return apiErr
}

// Ensure Client implements accounting.Gateway
var _ accounting.Gateway = (*Client)(nil)
