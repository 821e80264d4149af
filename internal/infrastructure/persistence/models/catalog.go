package models

import (
	"github.com/retailhub/backend/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// ProductModel is the persistence model for the Product domain entity.
type ProductModel struct {
	BaseModel
	Name          string          `gorm:"type:varchar(200);not null"`
	SKU           string          `gorm:"column:sku;type:varchar(50);index"`
	Barcode       string          `gorm:"type:varchar(50);index"`
	Description   string          `gorm:"type:text"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	CostPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	StockQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	IsActive      bool            `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product entity.
func (m *ProductModel) ToDomain() *catalog.Product {
	return &catalog.Product{
		ID:            m.ID,
		Name:          m.Name,
		SKU:           m.SKU,
		Barcode:       m.Barcode,
		Description:   m.Description,
		UnitPrice:     m.UnitPrice,
		CostPrice:     m.CostPrice,
		StockQuantity: m.StockQuantity,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// ProductModelFromDomain creates a persistence model from a domain Product entity.
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	return &ProductModel{
		BaseModel:     BaseModel{ID: p.ID, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt},
		Name:          p.Name,
		SKU:           p.SKU,
		Barcode:       p.Barcode,
		Description:   p.Description,
		UnitPrice:     p.UnitPrice,
		CostPrice:     p.CostPrice,
		StockQuantity: p.StockQuantity,
		IsActive:      p.IsActive,
	}
}
