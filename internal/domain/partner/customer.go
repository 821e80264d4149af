package partner

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/shared"
)

// Customer is a store customer
type Customer struct {
	ID         uuid.UUID
	Name       string
	Email      string
	Phone      string
	Address    string
	City       string
	Province   string
	PostalCode string
	Country    string
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasAddress reports whether any address field is set
func (c *Customer) HasAddress() bool {
	return strings.TrimSpace(c.Address+c.City+c.Province+c.PostalCode+c.Country) != ""
}

// GetFullAddress returns the address on one line
func (c *Customer) GetFullAddress() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{c.Address, c.City, c.Province, c.PostalCode, c.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// CustomerReader defines read access to customers
type CustomerReader interface {
	// FindByID finds a customer by its ID.
	// Returns shared.ErrNotFound when it does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)

	// FindAll returns a page of customers ordered by creation time
	FindAll(ctx context.Context, filter shared.Filter) ([]Customer, error)

	// Count counts all customers
	Count(ctx context.Context) (int64, error)
}
