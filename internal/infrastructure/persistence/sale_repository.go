package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/shared"
	"github.com/retailhub/backend/internal/domain/trade"
	"github.com/retailhub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSaleRepository implements SaleReader using GORM
type GormSaleRepository struct {
	db *gorm.DB
}

// NewGormSaleRepository creates a new GormSaleRepository
func NewGormSaleRepository(db *gorm.DB) *GormSaleRepository {
	return &GormSaleRepository{db: db}
}

// FindByIDWithDetails loads a sale with its customer, items and the items' products.
// Items whose product no longer exists come back with a nil Product.
func (r *GormSaleRepository) FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*trade.Sale, error) {
	var model models.SaleModel
	err := r.db.WithContext(ctx).
		Preload("Customer").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Product").
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns a page of sales without their details.
// The "customer_id" filter restricts to one customer.
func (r *GormSaleRepository) FindAll(ctx context.Context, filter shared.Filter) ([]trade.Sale, error) {
	var rows []models.SaleModel
	query := r.db.WithContext(ctx).Model(&models.SaleModel{})
	if filter.Search != "" {
		query = query.Where("LOWER(receipt_number) LIKE ?", likePattern(filter.Search))
	}
	if v, ok := filter.Filters["customer_id"]; ok {
		query = query.Where("customer_id = ?", v)
	}

	if err := applyListFilter(query, filter, SaleSortFields).Find(&rows).Error; err != nil {
		return nil, err
	}

	sales := make([]trade.Sale, len(rows))
	for i := range rows {
		sales[i] = *rows[i].ToDomain()
	}
	return sales, nil
}

// Count counts all sales
func (r *GormSaleRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.SaleModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormSaleRepository implements SaleReader
var _ trade.SaleReader = (*GormSaleRepository)(nil)
