package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/trade"
	"github.com/shopspring/decimal"
)

// SaleModel is the persistence model for the Sale domain entity.
type SaleModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	ReceiptNumber  string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	CustomerID     *uuid.UUID      `gorm:"type:uuid;index"`
	Customer       *CustomerModel  `gorm:"foreignKey:CustomerID"`
	Items          []SaleItemModel `gorm:"foreignKey:SaleID"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PaymentMethod  string          `gorm:"type:varchar(30)"`
	Notes          string          `gorm:"type:text"`
	CreatedAt      time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (SaleModel) TableName() string {
	return "sales"
}

// ToDomain converts the persistence model, with whatever associations were
// preloaded, to a domain Sale entity.
func (m *SaleModel) ToDomain() *trade.Sale {
	sale := &trade.Sale{
		ID:             m.ID,
		ReceiptNumber:  m.ReceiptNumber,
		CustomerID:     m.CustomerID,
		Subtotal:       m.Subtotal,
		TaxAmount:      m.TaxAmount,
		DiscountAmount: m.DiscountAmount,
		TotalAmount:    m.TotalAmount,
		PaymentMethod:  m.PaymentMethod,
		Notes:          m.Notes,
		CreatedAt:      m.CreatedAt,
		Items:          make([]trade.SaleItem, len(m.Items)),
	}
	if m.Customer != nil {
		sale.Customer = m.Customer.ToDomain()
	}
	for i := range m.Items {
		sale.Items[i] = *m.Items[i].ToDomain()
	}
	return sale
}

// SaleModelFromDomain creates a persistence model, items included, from a domain Sale.
func SaleModelFromDomain(s *trade.Sale) *SaleModel {
	m := &SaleModel{
		ID:             s.ID,
		ReceiptNumber:  s.ReceiptNumber,
		CustomerID:     s.CustomerID,
		Subtotal:       s.Subtotal,
		TaxAmount:      s.TaxAmount,
		DiscountAmount: s.DiscountAmount,
		TotalAmount:    s.TotalAmount,
		PaymentMethod:  s.PaymentMethod,
		Notes:          s.Notes,
		CreatedAt:      s.CreatedAt,
		Items:          make([]SaleItemModel, len(s.Items)),
	}
	for i, item := range s.Items {
		m.Items[i] = SaleItemModel{
			ID:         item.ID,
			SaleID:     s.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		}
	}
	return m
}

// SaleItemModel is the persistence model for a sale line.
type SaleItemModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key"`
	SaleID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Product    *ProductModel   `gorm:"foreignKey:ProductID"`
	Quantity   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (SaleItemModel) TableName() string {
	return "sale_items"
}

// ToDomain converts the persistence model to a domain SaleItem.
func (m *SaleItemModel) ToDomain() *trade.SaleItem {
	item := &trade.SaleItem{
		ID:         m.ID,
		SaleID:     m.SaleID,
		ProductID:  m.ProductID,
		Quantity:   m.Quantity,
		UnitPrice:  m.UnitPrice,
		TotalPrice: m.TotalPrice,
	}
	if m.Product != nil {
		item.Product = m.Product.ToDomain()
	}
	return item
}
