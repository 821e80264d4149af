package accounting

import (
	"errors"
	"fmt"
)

// Connection errors
var (
	ErrNotConnected        = errors.New("accounting: not connected to accounting platform")
	ErrTokenRefreshFailed  = errors.New("accounting: token refresh failed")
	ErrTokenExchangeFailed = errors.New("accounting: authorization code exchange failed")
	ErrInvalidState        = errors.New("accounting: invalid oauth state")
	ErrInvalidRealmID      = errors.New("accounting: invalid realm ID")
	ErrInvalidEnvironment  = errors.New("accounting: invalid environment")
	ErrInvalidToken        = errors.New("accounting: invalid token")
)

// Mapping errors
var (
	ErrInvalidEntityKind = errors.New("accounting: invalid entity kind")
	ErrInvalidLocalID    = errors.New("accounting: invalid local ID")
	ErrInvalidRemoteID   = errors.New("accounting: invalid remote ID")
	ErrMappingNotFound   = errors.New("accounting: mapping not found")
	ErrLockNotObtained   = errors.New("accounting: entity lock not obtained")
)

// Sync errors
var (
	ErrLocalEntityNotFound   = errors.New("accounting: local entity not found")
	ErrGatewayUnavailable    = errors.New("accounting: accounting platform unavailable")
	ErrInvalidRemoteResponse = errors.New("accounting: invalid response from accounting platform")
	ErrInvalidReportKind     = errors.New("accounting: invalid report kind")
	ErrInvalidDateRange      = errors.New("accounting: invalid date range")
	ErrSyncLogNotFound       = errors.New("accounting: sync log entry not found")
	ErrInvoiceNotSynced      = errors.New("accounting: sale has not been synced to an invoice")
)

// IsAuthError reports whether err means no usable access token is available.
// Sync operations abort on auth errors and do not retry them.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrTokenRefreshFailed)
}

// RemoteAPIError is returned by the Gateway when the accounting platform
// answers with a non-2xx status.
type RemoteAPIError struct {
	// StatusCode is the HTTP status code
	StatusCode int
	// Status is the HTTP status text, e.g. "400 Bad Request"
	Status string
	// Endpoint is the resource path that was called
	Endpoint string
	// Code is the platform fault code, if any
	Code string
	// Message is the platform fault message, or the status text
	Message string
}

// Error implements the error interface
func (e *RemoteAPIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("accounting api %s: %s (code %s): %s", e.Endpoint, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("accounting api %s: %s: %s", e.Endpoint, e.Status, e.Message)
}

// IsUnauthorized reports whether the platform rejected the bearer token
func (e *RemoteAPIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsRetryable reports whether repeating the call may succeed
func (e *RemoteAPIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// AsRemoteAPIError extracts a *RemoteAPIError from err
func AsRemoteAPIError(err error) (*RemoteAPIError, bool) {
	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
