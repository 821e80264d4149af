package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Product is a sellable product of the store catalog.
// The accounting sync reads products; it never writes them.
type Product struct {
	ID            uuid.UUID
	Name          string
	SKU           string
	Barcode       string
	Description   string
	UnitPrice     decimal.Decimal // Selling price
	CostPrice     decimal.Decimal // Purchase cost
	StockQuantity decimal.Decimal
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DisplayName returns the name shown on remote items and invoice lines
func (p *Product) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.SKU
}

// IsStockTracked reports whether the product carries an on-hand quantity
func (p *Product) IsStockTracked() bool {
	return p.StockQuantity.IsPositive()
}

// ProductReader defines read access to products
type ProductReader interface {
	// FindByID finds a product by its ID.
	// Returns shared.ErrNotFound when it does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindAll returns a page of products ordered by creation time
	FindAll(ctx context.Context, filter shared.Filter) ([]Product, error)

	// Count counts all products
	Count(ctx context.Context) (int64, error)
}
