// Package store defines the backend-neutral API shared by the native
// key-value backend (kvstore) and the SQL backend (sqlstore): instances,
// transactions, cursors and filters.
package store
