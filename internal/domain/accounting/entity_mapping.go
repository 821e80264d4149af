package accounting

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// EntityKind
// ---------------------------------------------------------------------------

// EntityKind identifies which local entity kind a mapping or log entry is about
type EntityKind string

const (
	// EntityKindProduct maps a local product to a remote item
	EntityKindProduct EntityKind = "product"
	// EntityKindCustomer maps a local customer to a remote customer
	EntityKindCustomer EntityKind = "customer"
	// EntityKindInvoice maps a local sale to a remote invoice
	EntityKindInvoice EntityKind = "invoice"
)

// AllEntityKinds returns every kind in dependency order
func AllEntityKinds() []EntityKind {
	return []EntityKind{EntityKindProduct, EntityKindCustomer, EntityKindInvoice}
}

// IsValid checks if the kind is valid
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityKindProduct, EntityKindCustomer, EntityKindInvoice:
		return true
	}
	return false
}

// String returns the string representation
func (k EntityKind) String() string {
	return string(k)
}

// RemoteName returns the accounting platform's name for the mapped entity
func (k EntityKind) RemoteName() string {
	switch k {
	case EntityKindProduct:
		return "Item"
	case EntityKindCustomer:
		return "Customer"
	case EntityKindInvoice:
		return "Invoice"
	}
	return ""
}

// ParseEntityKind accepts both the local and the remote vocabulary, singular or plural
// (product, products, item, items, customer, sale, sales, invoice, ...).
func ParseEntityKind(s string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "product", "products", "item", "items":
		return EntityKindProduct, nil
	case "customer", "customers":
		return EntityKindCustomer, nil
	case "sale", "sales", "invoice", "invoices":
		return EntityKindInvoice, nil
	}
	return "", ErrInvalidEntityKind
}

// ---------------------------------------------------------------------------
// EntityMapping Entity
// ---------------------------------------------------------------------------

// EntityMapping associates a local entity with the remote record created for it.
// It is written once, on the first successful sync, and never updated.
type EntityMapping struct {
	// ID is the unique identifier of this mapping
	ID uuid.UUID
	// Kind selects the mapping table
	Kind EntityKind
	// LocalID is our internal entity ID, unique per kind
	LocalID uuid.UUID
	// RemoteID is the accounting platform's entity ID
	RemoteID string
	// RemoteSyncToken is the platform's version token at creation time
	RemoteSyncToken string
	// CreatedAt is when the remote entity was created
	CreatedAt time.Time
}

// NewEntityMapping creates a new entity mapping
func NewEntityMapping(kind EntityKind, localID uuid.UUID, remoteID string) (*EntityMapping, error) {
	if !kind.IsValid() {
		return nil, ErrInvalidEntityKind
	}
	if localID == uuid.Nil {
		return nil, ErrInvalidLocalID
	}
	if strings.TrimSpace(remoteID) == "" {
		return nil, ErrInvalidRemoteID
	}
	return &EntityMapping{
		ID:        uuid.New(),
		Kind:      kind,
		LocalID:   localID,
		RemoteID:  remoteID,
		CreatedAt: time.Now(),
	}, nil
}

// MappingLockKey returns the lock key guarding the mapping of one local entity
func MappingLockKey(kind EntityKind, localID uuid.UUID) string {
	return "accounting:mapping:" + kind.String() + ":" + localID.String()
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// EntityMappingReader defines the interface for reading entity mappings
type EntityMappingReader interface {
	// FindByLocalID finds the mapping of a local entity.
	// Returns ErrMappingNotFound when the entity has not been synced.
	FindByLocalID(ctx context.Context, kind EntityKind, localID uuid.UUID) (*EntityMapping, error)

	// FindByRemoteID finds the mapping pointing at a remote entity
	FindByRemoteID(ctx context.Context, kind EntityKind, remoteID string) (*EntityMapping, error)

	// FindByLocalIDs returns the mappings of the given local entities that exist
	FindByLocalIDs(ctx context.Context, kind EntityKind, localIDs []uuid.UUID) ([]EntityMapping, error)

	// Count counts the mappings of a kind
	Count(ctx context.Context, kind EntityKind) (int64, error)
}

// EntityMappingWriter defines the interface for persisting entity mappings
type EntityMappingWriter interface {
	// Insert stores the mapping unless one already exists for its local ID.
	// It returns the mapping that is stored after the call, which is the
	// existing row when another writer got there first.
	Insert(ctx context.Context, mapping *EntityMapping) (*EntityMapping, error)
}

// EntityMappingRepository defines the full interface for entity mapping persistence
type EntityMappingRepository interface {
	EntityMappingReader
	EntityMappingWriter
}

// EntityLocker serializes work on one key across goroutines (and processes,
// for distributed implementations).
type EntityLocker interface {
	// Lock blocks until the key is held or ctx is done. The returned func
	// releases the key and is safe to call once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
