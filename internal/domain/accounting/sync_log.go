package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncLogStatus is the outcome recorded by a sync log entry
type SyncLogStatus string

const (
	SyncLogStatusSuccess SyncLogStatus = "success"
	SyncLogStatusError   SyncLogStatus = "error"
	SyncLogStatusPending SyncLogStatus = "pending"
)

// IsValid checks if the status is valid
func (s SyncLogStatus) IsValid() bool {
	switch s {
	case SyncLogStatusSuccess, SyncLogStatusError, SyncLogStatusPending:
		return true
	}
	return false
}

// String returns the string representation
func (s SyncLogStatus) String() string {
	return string(s)
}

// SyncLogEntry is an append-only record of one sync attempt, single or bulk
type SyncLogEntry struct {
	ID               uuid.UUID
	EntityType       EntityKind
	Status           SyncLogStatus
	RecordsProcessed int
	ErrorMessage     string
	CreatedAt        time.Time
}

// NewSuccessLogEntry records a successful attempt
func NewSuccessLogEntry(kind EntityKind, processed int) *SyncLogEntry {
	return newSyncLogEntry(kind, SyncLogStatusSuccess, processed, "")
}

// NewErrorLogEntry records a failed attempt
func NewErrorLogEntry(kind EntityKind, processed int, message string) *SyncLogEntry {
	return newSyncLogEntry(kind, SyncLogStatusError, processed, message)
}

func newSyncLogEntry(kind EntityKind, status SyncLogStatus, processed int, message string) *SyncLogEntry {
	return &SyncLogEntry{
		ID:               uuid.New(),
		EntityType:       kind,
		Status:           status,
		RecordsProcessed: processed,
		ErrorMessage:     message,
		CreatedAt:        time.Now(),
	}
}

// SyncLogFilter defines filter criteria for sync log queries
type SyncLogFilter struct {
	// EntityType filters by entity kind (optional)
	EntityType *EntityKind
	// Status filters by outcome (optional)
	Status *SyncLogStatus
	// Page number (1-indexed)
	Page int
	// Page size
	PageSize int
}

// SyncLogRepository persists sync log entries
type SyncLogRepository interface {
	// Append stores a new entry
	Append(ctx context.Context, entry *SyncLogEntry) error

	// FindLatestByStatus returns the newest entry with the given status.
	// Returns ErrSyncLogNotFound when there is none.
	FindLatestByStatus(ctx context.Context, status SyncLogStatus) (*SyncLogEntry, error)

	// FindAll returns entries newest first together with the total count
	FindAll(ctx context.Context, filter SyncLogFilter) ([]SyncLogEntry, int64, error)
}
