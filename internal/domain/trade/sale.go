package trade

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/catalog"
	"github.com/retailhub/backend/internal/domain/partner"
	"github.com/retailhub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Sale is a completed POS sale with its line items
type Sale struct {
	ID             uuid.UUID
	ReceiptNumber  string
	CustomerID     *uuid.UUID
	Customer       *partner.Customer // Loaded by FindByIDWithDetails
	Items          []SaleItem
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	PaymentMethod  string
	Notes          string
	CreatedAt      time.Time
}

// SaleItem is one line of a sale
type SaleItem struct {
	ID         uuid.UUID
	SaleID     uuid.UUID
	ProductID  uuid.UUID
	Product    *catalog.Product // Loaded by FindByIDWithDetails
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

// LineAmount returns the stored line total, or quantity x unit price when it is not set
func (i *SaleItem) LineAmount() decimal.Decimal {
	if !i.TotalPrice.IsZero() {
		return i.TotalPrice
	}
	return i.Quantity.Mul(i.UnitPrice)
}

// HasCustomer reports whether a customer is attached to the sale
func (s *Sale) HasCustomer() bool {
	return s.CustomerID != nil && *s.CustomerID != uuid.Nil
}

// DistinctProductIDs returns the product IDs referenced by the line items,
// each once, in line order.
func (s *Sale) DistinctProductIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(s.Items))
	ids := make([]uuid.UUID, 0, len(s.Items))
	for _, item := range s.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// SaleReader defines read access to sales
type SaleReader interface {
	// FindByIDWithDetails loads a sale with its items, their products and the customer.
	// Returns shared.ErrNotFound when it does not exist.
	FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*Sale, error)

	// FindAll returns a page of sales (without details) ordered by creation time
	FindAll(ctx context.Context, filter shared.Filter) ([]Sale, error)

	// Count counts all sales
	Count(ctx context.Context) (int64, error)
}
