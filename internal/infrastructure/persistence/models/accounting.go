package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/accounting"
)

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// QuickBooksTokenModel is the persistence model for TokenRecord.
type QuickBooksTokenModel struct {
	RealmID               string     `gorm:"type:varchar(64);primary_key"`
	AccessToken           string     `gorm:"type:text;not null"`
	RefreshToken          string     `gorm:"type:text;not null"`
	ExpiresAt             time.Time  `gorm:"not null"`
	RefreshTokenExpiresAt *time.Time `gorm:""`
	Environment           string     `gorm:"type:varchar(20);not null"`
	CreatedAt             time.Time  `gorm:"not null"`
	UpdatedAt             time.Time  `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (QuickBooksTokenModel) TableName() string {
	return "quickbooks_tokens"
}

// ToDomain converts the persistence model to a domain TokenRecord.
func (m *QuickBooksTokenModel) ToDomain() *accounting.TokenRecord {
	return &accounting.TokenRecord{
		RealmID:               m.RealmID,
		AccessToken:           m.AccessToken,
		RefreshToken:          m.RefreshToken,
		ExpiresAt:             m.ExpiresAt,
		RefreshTokenExpiresAt: m.RefreshTokenExpiresAt,
		Environment:           accounting.Environment(m.Environment),
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

// QuickBooksTokenModelFromDomain creates a persistence model from a domain TokenRecord.
func QuickBooksTokenModelFromDomain(t *accounting.TokenRecord) *QuickBooksTokenModel {
	return &QuickBooksTokenModel{
		RealmID:               t.RealmID,
		AccessToken:           t.AccessToken,
		RefreshToken:          t.RefreshToken,
		ExpiresAt:             t.ExpiresAt,
		RefreshTokenExpiresAt: t.RefreshTokenExpiresAt,
		Environment:           t.Environment.String(),
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Entity mappings
// ---------------------------------------------------------------------------

// EntityMappingModel holds the columns shared by the three mapping tables.
// Queries address a table explicitly through MappingTableName.
type EntityMappingModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	LocalID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	RemoteID        string    `gorm:"type:varchar(64);not null;index"`
	RemoteSyncToken string    `gorm:"type:varchar(32)"`
	CreatedAt       time.Time `gorm:"not null"`
}

// ToDomain converts the persistence model to a domain EntityMapping.
func (m *EntityMappingModel) ToDomain(kind accounting.EntityKind) *accounting.EntityMapping {
	return &accounting.EntityMapping{
		ID:              m.ID,
		Kind:            kind,
		LocalID:         m.LocalID,
		RemoteID:        m.RemoteID,
		RemoteSyncToken: m.RemoteSyncToken,
		CreatedAt:       m.CreatedAt,
	}
}

// EntityMappingModelFromDomain creates a persistence model from a domain EntityMapping.
func EntityMappingModelFromDomain(m *accounting.EntityMapping) *EntityMappingModel {
	return &EntityMappingModel{
		ID:              m.ID,
		LocalID:         m.LocalID,
		RemoteID:        m.RemoteID,
		RemoteSyncToken: m.RemoteSyncToken,
		CreatedAt:       m.CreatedAt,
	}
}

// QuickBooksProductMappingModel maps products to remote items.
type QuickBooksProductMappingModel struct{ EntityMappingModel }

// TableName returns the table name for GORM
func (QuickBooksProductMappingModel) TableName() string { return "quickbooks_product_mapping" }

// QuickBooksCustomerMappingModel maps customers to remote customers.
type QuickBooksCustomerMappingModel struct{ EntityMappingModel }

// TableName returns the table name for GORM
func (QuickBooksCustomerMappingModel) TableName() string { return "quickbooks_customer_mapping" }

// QuickBooksInvoiceMappingModel maps sales to remote invoices.
type QuickBooksInvoiceMappingModel struct{ EntityMappingModel }

// TableName returns the table name for GORM
func (QuickBooksInvoiceMappingModel) TableName() string { return "quickbooks_invoice_mapping" }

// MappingTableName returns the mapping table of an entity kind, or "" for an invalid kind.
func MappingTableName(kind accounting.EntityKind) string {
	switch kind {
	case accounting.EntityKindProduct:
		return QuickBooksProductMappingModel{}.TableName()
	case accounting.EntityKindCustomer:
		return QuickBooksCustomerMappingModel{}.TableName()
	case accounting.EntityKindInvoice:
		return QuickBooksInvoiceMappingModel{}.TableName()
	}
	return ""
}

// ---------------------------------------------------------------------------
// Sync log
// ---------------------------------------------------------------------------

// QuickBooksSyncLogModel is the persistence model for SyncLogEntry.
type QuickBooksSyncLogModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key"`
	EntityType       string    `gorm:"type:varchar(20);not null;index"`
	Status           string    `gorm:"type:varchar(20);not null;index"`
	RecordsProcessed int       `gorm:"not null;default:0"`
	ErrorMessage     string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (QuickBooksSyncLogModel) TableName() string {
	return "quickbooks_sync_log"
}

// ToDomain converts the persistence model to a domain SyncLogEntry.
func (m *QuickBooksSyncLogModel) ToDomain() *accounting.SyncLogEntry {
	return &accounting.SyncLogEntry{
		ID:               m.ID,
		EntityType:       accounting.EntityKind(m.EntityType),
		Status:           accounting.SyncLogStatus(m.Status),
		RecordsProcessed: m.RecordsProcessed,
		ErrorMessage:     m.ErrorMessage,
		CreatedAt:        m.CreatedAt,
	}
}

// QuickBooksSyncLogModelFromDomain creates a persistence model from a domain SyncLogEntry.
func QuickBooksSyncLogModelFromDomain(e *accounting.SyncLogEntry) *QuickBooksSyncLogModel {
	return &QuickBooksSyncLogModel{
		ID:               e.ID,
		EntityType:       e.EntityType.String(),
		Status:           e.Status.String(),
		RecordsProcessed: e.RecordsProcessed,
		ErrorMessage:     e.ErrorMessage,
		CreatedAt:        e.CreatedAt,
	}
}

// AccountingModels returns every model owned by the accounting sync, for auto-migration in tests
func AccountingModels() []any {
	return []any{
		&QuickBooksTokenModel{},
		&QuickBooksProductMappingModel{},
		&QuickBooksCustomerMappingModel{},
		&QuickBooksInvoiceMappingModel{},
		&QuickBooksSyncLogModel{},
	}
}

// RetailModels returns the local retail models read by the sync
func RetailModels() []any {
	return []any{&ProductModel{}, &CustomerModel{}, &SaleModel{}, &SaleItemModel{}}
}
