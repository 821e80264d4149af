// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
//   - base.go: shared columns
//   - catalog.go, partner.go, trade.go: local retail tables read by the sync
//     (products, customers, sales, sale_items)
//   - accounting.go: tables owned by the accounting sync (quickbooks_*)
package models
