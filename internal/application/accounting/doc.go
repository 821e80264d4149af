// Package accounting implements the accounting sync use cases: the OAuth
// token lifecycle, the local to remote entity mapping, the sync orchestration
// of products, customers and sales, and sync status reporting.
package accounting
