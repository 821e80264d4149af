package persistence

import (
	"strings"

	"github.com/retailhub/backend/internal/domain/shared"
	"gorm.io/gorm"
)

const (
	// DefaultPageSize applies when a filter has no page size
	DefaultPageSize = 20
	// MaxPageSize caps any requested page size
	MaxPageSize = 1000
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// ProductSortFields contains allowed sort fields for products
var ProductSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"sku":        true,
	"unit_price": true,
}

// CustomerSortFields contains allowed sort fields for customers
var CustomerSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"email":      true,
}

// SaleSortFields contains allowed sort fields for sales
var SaleSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"receipt_number": true,
	"total_amount":   true,
}

// pageOffset turns a 1-indexed page into offset and limit
func pageOffset(page, pageSize int) (int, int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize, pageSize
}

// applyListFilter applies ordering and pagination shared by the local readers.
// Rows are ordered by the validated field and then by id so that paging is stable.
func applyListFilter(query *gorm.DB, filter shared.Filter, allowed map[string]bool) *gorm.DB {
	field := ValidateSortField(filter.OrderBy, allowed, "created_at")
	dir := "ASC"
	if filter.OrderDir != "" {
		dir = ValidateSortOrder(filter.OrderDir)
	}
	query = query.Order(field + " " + dir)
	if field != "id" {
		query = query.Order("id " + dir)
	}

	if filter.Page > 0 || filter.PageSize > 0 {
		offset, limit := pageOffset(filter.Page, filter.PageSize)
		query = query.Offset(offset).Limit(limit)
	}
	return query
}

// likePattern builds a case-insensitive LIKE pattern for a search term
func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}
