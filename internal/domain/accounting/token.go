package accounting

import (
	"context"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

// Environment selects the sandbox or production accounting API
type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvironmentSandbox, EnvironmentProduction:
		return true
	}
	return false
}

// String returns the string representation
func (e Environment) String() string {
	return string(e)
}

// ---------------------------------------------------------------------------
// TokenRecord Entity
// ---------------------------------------------------------------------------

// TokenGrant is the credential set returned by the provider token endpoint
type TokenGrant struct {
	AccessToken           string
	RefreshToken          string
	TokenType             string
	ExpiresIn             time.Duration
	RefreshTokenExpiresIn time.Duration
}

// TokenRecord holds the OAuth credentials of one connected accounting company.
// It is owned by the token manager: created on the OAuth callback, mutated on
// every refresh and removed only on disconnect.
type TokenRecord struct {
	// RealmID is the accounting platform's company identifier
	RealmID string
	// AccessToken is the bearer token sent with every API call
	AccessToken string
	// RefreshToken is exchanged for a new access token once it expires
	RefreshToken string
	// ExpiresAt is when the access token stops being valid
	ExpiresAt time.Time
	// RefreshTokenExpiresAt is when the refresh token stops being valid, if known
	RefreshTokenExpiresAt *time.Time
	// Environment is the API environment the tokens were issued for
	Environment Environment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTokenRecord creates a token record from an authorization code grant
func NewTokenRecord(realmID string, env Environment, grant *TokenGrant, now time.Time) (*TokenRecord, error) {
	realmID = strings.TrimSpace(realmID)
	if realmID == "" {
		return nil, ErrInvalidRealmID
	}
	if !env.IsValid() {
		return nil, ErrInvalidEnvironment
	}
	if err := validateGrant(grant); err != nil {
		return nil, err
	}

	t := &TokenRecord{
		RealmID:     realmID,
		Environment: env,
		CreatedAt:   now,
	}
	t.apply(grant, now)
	return t, nil
}

// IsExpired reports whether the access token must be refreshed at now.
// A token expiring exactly at now counts as expired.
func (t *TokenRecord) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// ApplyRefresh stores the credentials of a refresh_token grant.
// The previous refresh token is kept when the provider does not rotate it.
func (t *TokenRecord) ApplyRefresh(grant *TokenGrant, now time.Time) error {
	if err := validateGrant(grant); err != nil {
		return err
	}
	t.apply(grant, now)
	return nil
}

func (t *TokenRecord) apply(grant *TokenGrant, now time.Time) {
	t.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		t.RefreshToken = grant.RefreshToken
	}
	t.ExpiresAt = now.Add(grant.ExpiresIn)
	if grant.RefreshTokenExpiresIn > 0 {
		exp := now.Add(grant.RefreshTokenExpiresIn)
		t.RefreshTokenExpiresAt = &exp
	}
	t.UpdatedAt = now
}

func validateGrant(grant *TokenGrant) error {
	if grant == nil || grant.AccessToken == "" {
		return ErrInvalidToken
	}
	return nil
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// TokenRepository persists TokenRecords, one per realm
type TokenRepository interface {
	// FindCurrent returns the most recently updated record.
	// Returns ErrNotConnected when no record exists.
	FindCurrent(ctx context.Context) (*TokenRecord, error)

	// FindByRealm returns the record of a realm.
	// Returns ErrNotConnected when no record exists.
	FindByRealm(ctx context.Context, realmID string) (*TokenRecord, error)

	// Save inserts or updates the record keyed by realm
	Save(ctx context.Context, token *TokenRecord) error

	// Delete removes the record of a realm
	Delete(ctx context.Context, realmID string) error
}

// OAuthClient talks to the provider's authorization and token endpoints
type OAuthClient interface {
	// AuthorizationURL builds the consent URL carrying the given state
	AuthorizationURL(state string) string

	// ExchangeCode performs the authorization_code grant
	ExchangeCode(ctx context.Context, code string) (*TokenGrant, error)

	// Refresh performs the refresh_token grant
	Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error)
}

// AccessTokenProvider hands out a valid bearer token for API calls
type AccessTokenProvider interface {
	GetValidAccessToken(ctx context.Context) (*TokenRecord, error)
}
