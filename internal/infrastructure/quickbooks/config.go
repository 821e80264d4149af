package quickbooks

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/retailhub/backend/internal/domain/accounting"
)

const (
	// SandboxAPIBaseURL is the accounting API host of the sandbox environment
	SandboxAPIBaseURL = "https://sandbox-quickbooks.api.intuit.com"
	// ProductionAPIBaseURL is the accounting API host of the production environment
	ProductionAPIBaseURL = "https://quickbooks.api.intuit.com"
	// DefaultAuthorizeURL is the consent page of the OAuth provider
	DefaultAuthorizeURL = "https://appcenter.intuit.com/connect/oauth2"
	// DefaultTokenBaseURL is the host serving the token endpoint
	DefaultTokenBaseURL = "https://oauth.platform.intuit.com"
	// TokenPath is the token endpoint path for both grant types
	TokenPath = "/oauth2/v1/tokens/bearer"
	// MinorVersion pins the API minor version sent with every call
	MinorVersion = "65"
	// DefaultScope grants access to the accounting API
	DefaultScope = "com.intuit.quickbooks.accounting"
)

// ErrInvalidConfig is returned when the client configuration does not validate
var ErrInvalidConfig = errors.New("quickbooks: invalid configuration")

// Config holds the settings of the OAuth and accounting API clients
type Config struct {
	// ClientID and ClientSecret identify the app at the OAuth provider
	ClientID     string
	ClientSecret string
	// RedirectURI receives the authorization callback
	RedirectURI string `validate:"omitempty,url"`
	// Scopes requested at authorization time
	Scopes []string `validate:"min=1,dive,required"`
	// Environment selects the API host
	Environment accounting.Environment `validate:"oneof=sandbox production"`
	// APIBaseURL overrides the host selected by Environment
	APIBaseURL string `validate:"omitempty,url"`
	// AuthorizeURL overrides DefaultAuthorizeURL
	AuthorizeURL string `validate:"omitempty,url"`
	// TokenURL overrides DefaultTokenBaseURL + TokenPath
	TokenURL string `validate:"omitempty,url"`
	// Timeout bounds each HTTP call
	Timeout time.Duration `validate:"gt=0"`
}

// NewSandboxConfig creates a sandbox configuration with defaults
func NewSandboxConfig(clientID, clientSecret, redirectURI string) *Config {
	return &Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Scopes:       []string{DefaultScope},
		Environment:  accounting.EnvironmentSandbox,
		Timeout:      30 * time.Second,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// BaseURL returns the API host for the configured environment
func (c *Config) BaseURL() string {
	if c.APIBaseURL != "" {
		return strings.TrimRight(c.APIBaseURL, "/")
	}
	if c.Environment == accounting.EnvironmentProduction {
		return ProductionAPIBaseURL
	}
	return SandboxAPIBaseURL
}

// AuthorizationEndpoint returns the consent page URL
func (c *Config) AuthorizationEndpoint() string {
	if c.AuthorizeURL != "" {
		return c.AuthorizeURL
	}
	return DefaultAuthorizeURL
}

// TokenEndpoint returns the token endpoint URL
func (c *Config) TokenEndpoint() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return DefaultTokenBaseURL + TokenPath
}
