// Package db opens a watchdb instance described by a config.Config on the
// backend it names.
package db
