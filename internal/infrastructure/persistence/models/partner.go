package models

import (
	"github.com/retailhub/backend/internal/domain/partner"
)

// CustomerModel is the persistence model for the Customer domain entity.
type CustomerModel struct {
	BaseModel
	Name       string `gorm:"type:varchar(200);not null"`
	Email      string `gorm:"type:varchar(200);index"`
	Phone      string `gorm:"type:varchar(50);index"`
	Address    string `gorm:"type:text"`
	City       string `gorm:"type:varchar(100)"`
	Province   string `gorm:"type:varchar(100)"`
	PostalCode string `gorm:"type:varchar(20)"`
	Country    string `gorm:"type:varchar(100)"`
	Notes      string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer entity.
func (m *CustomerModel) ToDomain() *partner.Customer {
	return &partner.Customer{
		ID:         m.ID,
		Name:       m.Name,
		Email:      m.Email,
		Phone:      m.Phone,
		Address:    m.Address,
		City:       m.City,
		Province:   m.Province,
		PostalCode: m.PostalCode,
		Country:    m.Country,
		Notes:      m.Notes,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// CustomerModelFromDomain creates a persistence model from a domain Customer entity.
func CustomerModelFromDomain(c *partner.Customer) *CustomerModel {
	return &CustomerModel{
		BaseModel:  BaseModel{ID: c.ID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt},
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.Phone,
		Address:    c.Address,
		City:       c.City,
		Province:   c.Province,
		PostalCode: c.PostalCode,
		Country:    c.Country,
		Notes:      c.Notes,
	}
}
