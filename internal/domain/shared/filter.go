package shared

// Filter pages and orders local entity reads
type Filter struct {
	Page     int // 1-indexed
	PageSize int
	OrderBy  string
	OrderDir string
	Search   string
	// Filters holds reader-specific equality filters, e.g. "is_active"
	Filters map[string]any
}

// DefaultFilter returns the first page of 20 ordered oldest first, the order
// in which bulk syncs walk local entities
func DefaultFilter() Filter {
	return Filter{
		Page:     1,
		PageSize: 20,
		OrderBy:  "created_at",
		OrderDir: "asc",
	}
}
