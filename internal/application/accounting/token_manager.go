package accounting

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// stateSubject marks state tokens issued for the connect flow
	stateSubject = "accounting_connect"

	// DefaultStateTTL bounds how long a user may take on the consent screen
	DefaultStateTTL = 10 * time.Minute

	// maxDisconnectRealms bounds the delete loop of Disconnect
	maxDisconnectRealms = 100
)

// TokenManagerConfig holds token manager settings
type TokenManagerConfig struct {
	// Environment is stored on new token records
	Environment accounting.Environment
	// StateSecret signs OAuth state tokens. A random secret is generated
	// when empty, which invalidates pending states on restart.
	StateSecret string
	// StateTTL is the lifetime of an OAuth state token
	StateTTL time.Duration
}

// TokenManagerOption is a functional option for configuring TokenManager
type TokenManagerOption func(*TokenManager)

// WithClock overrides the time source used for expiry decisions
func WithClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger *zap.Logger) TokenManagerOption {
	return func(m *TokenManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTokenMetrics records token refreshes
func WithTokenMetrics(metrics *telemetry.SyncMetrics) TokenManagerOption {
	return func(m *TokenManager) {
		m.metrics = metrics
	}
}

// TokenManager owns the OAuth token lifecycle of the accounting connection.
// It hands out valid access tokens and refreshes them on demand; concurrent
// refreshes of one realm share a single token endpoint call.
type TokenManager struct {
	repo        accounting.TokenRepository
	oauth       accounting.OAuthClient
	environment accounting.Environment
	stateSecret []byte
	stateTTL    time.Duration
	now         func() time.Time
	logger      *zap.Logger
	metrics     *telemetry.SyncMetrics

	refreshGroup singleflight.Group
}

var _ accounting.AccessTokenProvider = (*TokenManager)(nil)

// NewTokenManager creates a new TokenManager
func NewTokenManager(
	repo accounting.TokenRepository,
	oauth accounting.OAuthClient,
	cfg TokenManagerConfig,
	opts ...TokenManagerOption,
) (*TokenManager, error) {
	if !cfg.Environment.IsValid() {
		return nil, accounting.ErrInvalidEnvironment
	}

	secret := []byte(cfg.StateSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate state secret: %w", err)
		}
	}

	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	m := &TokenManager{
		repo:        repo,
		oauth:       oauth,
		environment: cfg.Environment,
		stateSecret: secret,
		stateTTL:    ttl,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Access tokens
// ---------------------------------------------------------------------------

// GetValidAccessToken returns the current token record, refreshing it first
// when the access token has expired. It returns ErrNotConnected when no
// connection exists and ErrTokenRefreshFailed when the refresh fails.
func (m *TokenManager) GetValidAccessToken(ctx context.Context) (*accounting.TokenRecord, error) {
	record, err := m.repo.FindCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if !record.IsExpired(m.now()) {
		return record, nil
	}
	return m.refresh(ctx, record.RealmID)
}

// CurrentConnection returns the stored token record without refreshing it
func (m *TokenManager) CurrentConnection(ctx context.Context) (*accounting.TokenRecord, error) {
	return m.repo.FindCurrent(ctx)
}

// IsConnected reports whether a valid access token can be obtained
func (m *TokenManager) IsConnected(ctx context.Context) bool {
	_, err := m.GetValidAccessToken(ctx)
	return err == nil
}

// refresh runs at most one refresh per realm at a time. Callers that arrive
// while a refresh is in flight wait for its result. The refresh itself is
// detached from the caller's cancellation so that a caller giving up does not
// abort a refresh other callers are waiting for.
func (m *TokenManager) refresh(ctx context.Context, realmID string) (*accounting.TokenRecord, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.refreshGroup.DoChan(realmID, func() (any, error) {
		return m.doRefresh(detached, realmID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		record := *res.Val.(*accounting.TokenRecord)
		return &record, nil
	}
}

func (m *TokenManager) doRefresh(ctx context.Context, realmID string) (*accounting.TokenRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "accounting.token.refresh",
		telemetry.WithAttribute(telemetry.SpanAttrRealmID, realmID),
	)
	defer span.End()

	// Another caller may have refreshed between our read and acquiring the group.
	record, err := m.repo.FindByRealm(ctx, realmID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !record.IsExpired(m.now()) {
		telemetry.SetOK(span)
		return record, nil
	}

	if record.RefreshToken == "" {
		err := fmt.Errorf("%w: no refresh token stored", accounting.ErrTokenRefreshFailed)
		telemetry.RecordError(span, err)
		m.metrics.RecordTokenRefresh(ctx, false)
		return nil, err
	}

	grant, err := m.oauth.Refresh(ctx, record.RefreshToken)
	if err == nil {
		err = record.ApplyRefresh(grant, m.now())
	}
	if err != nil {
		if !errors.Is(err, accounting.ErrTokenRefreshFailed) {
			err = fmt.Errorf("%w: %w", accounting.ErrTokenRefreshFailed, err)
		}
		m.logger.Warn("Access token refresh failed",
			zap.String("realm_id", realmID),
			zap.Error(err),
		)
		telemetry.RecordError(span, err)
		m.metrics.RecordTokenRefresh(ctx, false)
		return nil, err
	}

	if err := m.repo.Save(ctx, record); err != nil {
		err = fmt.Errorf("persist refreshed token: %w", err)
		telemetry.RecordError(span, err)
		m.metrics.RecordTokenRefresh(ctx, false)
		return nil, err
	}

	m.logger.Info("Access token refreshed",
		zap.String("realm_id", realmID),
		zap.Time("expires_at", record.ExpiresAt),
	)
	m.metrics.RecordTokenRefresh(ctx, true)
	telemetry.SetOK(span)
	return record, nil
}

// ---------------------------------------------------------------------------
// Connect / disconnect
// ---------------------------------------------------------------------------

// AuthorizationURL returns the consent URL together with the signed state it carries
func (m *TokenManager) AuthorizationURL(_ context.Context) (string, string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   stateSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.stateTTL)),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.stateSecret)
	if err != nil {
		return "", "", fmt.Errorf("sign oauth state: %w", err)
	}
	return m.oauth.AuthorizationURL(state), state, nil
}

// VerifyState checks a state returned to the OAuth callback.
// Returns ErrInvalidState when it is malformed, forged or expired.
func (m *TokenManager) VerifyState(state string) error {
	if strings.TrimSpace(state) == "" {
		return accounting.ErrInvalidState
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(state, claims,
		func(*jwt.Token) (any, error) { return m.stateSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithSubject(stateSubject),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", accounting.ErrInvalidState, err)
	}
	return nil
}

// ExchangeCodeForTokens completes the connect flow: it trades the
// authorization code for tokens and stores them for the realm.
func (m *TokenManager) ExchangeCodeForTokens(ctx context.Context, code, realmID string) (*accounting.TokenRecord, error) {
	code = strings.TrimSpace(code)
	realmID = strings.TrimSpace(realmID)
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", accounting.ErrTokenExchangeFailed)
	}
	if realmID == "" {
		return nil, accounting.ErrInvalidRealmID
	}

	grant, err := m.oauth.ExchangeCode(ctx, code)
	if err != nil {
		if !errors.Is(err, accounting.ErrTokenExchangeFailed) {
			err = fmt.Errorf("%w: %w", accounting.ErrTokenExchangeFailed, err)
		}
		return nil, err
	}

	record, err := accounting.NewTokenRecord(realmID, m.environment, grant, m.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", accounting.ErrTokenExchangeFailed, err)
	}

	existing, err := m.repo.FindByRealm(ctx, realmID)
	switch {
	case err == nil:
		record.CreatedAt = existing.CreatedAt
	case !errors.Is(err, accounting.ErrNotConnected):
		return nil, err
	}

	if err := m.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("persist tokens: %w", err)
	}

	m.logger.Info("Accounting platform connected",
		zap.String("realm_id", realmID),
		zap.String("environment", m.environment.String()),
	)
	return record, nil
}

// Disconnect deletes every stored connection. Tokens are not revoked remotely.
func (m *TokenManager) Disconnect(ctx context.Context) error {
	for range maxDisconnectRealms {
		record, err := m.repo.FindCurrent(ctx)
		if errors.Is(err, accounting.ErrNotConnected) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.repo.Delete(ctx, record.RealmID); err != nil {
			return err
		}
		m.logger.Info("Accounting platform disconnected", zap.String("realm_id", record.RealmID))
	}
	return fmt.Errorf("disconnect: more than %d connections stored", maxDisconnectRealms)
}
