// Package accounting contains the Accounting Sync bounded context.
// This context pushes local retail entities to an external accounting platform
// (QuickBooks-style REST API) and keeps track of what has been pushed.
//
// Key concepts:
//   - TokenRecord: OAuth credentials of the connected accounting company (realm)
//   - EntityMapping: local id to remote id association, one table per EntityKind
//   - SyncLogEntry: append-only record of sync attempts
//   - Gateway: port for the accounting platform REST API
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package accounting
