package quickbooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OAuthClient implements accounting.OAuthClient against the provider's
// authorization page and token endpoint.
type OAuthClient struct {
	config     *Config
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewOAuthClient creates a new OAuth client
func NewOAuthClient(config *Config, logger *zap.Logger) (*OAuthClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(0).
		SetBasicAuth(config.ClientID, config.ClientSecret).
		SetHeader("Accept", "application/json")

	return &OAuthClient{
		config:     config,
		httpClient: client,
		logger:     logger.With(zap.String("component", "quickbooks_oauth")),
	}, nil
}

// AuthorizationURL builds the consent URL carrying the given state
func (c *OAuthClient) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.config.ClientID)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(c.config.Scopes, " "))
	q.Set("redirect_uri", c.config.RedirectURI)
	q.Set("state", state)

	endpoint := c.config.AuthorizationEndpoint()
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + q.Encode()
}

// ExchangeCode performs the authorization_code grant
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*accounting.TokenGrant, error) {
	grant, err := c.requestToken(ctx, map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": c.config.RedirectURI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", accounting.ErrTokenExchangeFailed, err)
	}
	return grant, nil
}

// Refresh performs the refresh_token grant
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*accounting.TokenGrant, error) {
	grant, err := c.requestToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", accounting.ErrTokenRefreshFailed, err)
	}
	return grant, nil
}

func (c *OAuthClient) requestToken(ctx context.Context, form map[string]string) (*accounting.TokenGrant, error) {
	grantType := form["grant_type"]
	ctx, span := telemetry.StartSpan(ctx, "quickbooks.oauth.token",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrGrantType, grantType),
	)
	defer span.End()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(form).
		Post(c.config.TokenEndpoint())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("token endpoint unreachable: %w", err)
	}
	telemetry.SetAttribute(span, "http.status_code", resp.StatusCode())

	if !resp.IsSuccess() {
		var oauthErr oauthErrorResponse
		msg := resp.Status()
		if json.Unmarshal(resp.Body(), &oauthErr) == nil && oauthErr.Error != "" {
			msg = oauthErr.Error
			if oauthErr.ErrorDescription != "" {
				msg += ": " + oauthErr.ErrorDescription
			}
		}
		err := &accounting.RemoteAPIError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Endpoint:   TokenPath,
			Code:       oauthErr.Error,
			Message:    msg,
		}
		telemetry.RecordError(span, err)
		c.logger.Warn("Token request rejected",
			zap.String("grant_type", grantType),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", msg),
		)
		return nil, err
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: %v", accounting.ErrInvalidRemoteResponse, err)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", accounting.ErrInvalidRemoteResponse)
	}

	telemetry.SetOK(span)
	return body.toGrant(), nil
}

// Ensure OAuthClient implements accounting.OAuthClient
var _ accounting.OAuthClient = (*OAuthClient)(nil)
