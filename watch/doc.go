// Package watch keeps the per-collection watcher registry of an instance and
// the per-transaction change set that is delivered to those watchers once the
// transaction commits.
//
// Coarse watchers learn which object ids changed. Detailed watchers receive
// the full change details of a collection as one batch per transaction.
package watch
