// Package engine provides helpers for working with the modernc.org/sqlite
// driver: opening file or in-memory databases with the pragmas the SQL
// backend relies on, and registering the module's SQL scalar functions.
package engine
