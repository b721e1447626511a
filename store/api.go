package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/viant/watchdb/change"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
	"github.com/viant/watchdb/watch"
)

var (
	ErrClosed            = errors.New("store: instance is closed")
	ErrTxnClosed         = errors.New("store: transaction is closed")
	ErrWriteTxnRequired  = errors.New("store: write transaction required")
	ErrUnknownCollection = errors.New("store: unknown collection")
	ErrInvalidFilter     = errors.New("store: invalid filter")
)

// Object is a value to write. An ID <= 0 requests an auto-increment id.
type Object struct {
	ID     int64
	Fields map[string]any
}

// Instance is an open database.
type Instance interface {
	Name() string
	Backend() string
	Schema() *schema.Schema
	// Watchers returns the instance's watcher registry.
	Watchers() *watch.Registry
	Begin(ctx context.Context, write bool) (Txn, error)
	Close() error
}

// Txn is a transaction. Changes it makes are delivered to watchers only
// after Commit succeeds; Abort discards them.
type Txn interface {
	ID() string
	Write() bool
	// Get returns the object with id, or false when it does not exist.
	Get(collection string, id int64) (record.Reader, bool, error)
	Query(collection string, filter Filter) (Cursor, error)
	Count(collection string, filter Filter) (int, error)
	// Put inserts or replaces objects and returns their ids.
	Put(collection string, objects ...Object) ([]int64, error)
	// Update sets fields on every object matching filter.
	Update(collection string, filter Filter, set map[string]any) (int, error)
	Delete(collection string, ids ...int64) (int, error)
	DeleteWhere(collection string, filter Filter) (int, error)
	Commit() error
	Abort()
}

// Cursor iterates query results. Readers stay valid until the next call to Next.
type Cursor interface {
	Next() bool
	Reader() record.Reader
	Err() error
	Close() error
}

// Guard runs fn and turns an invariant violation raised during change
// detection into an error. Other panics propagate.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			violation, ok := r.(*change.InvariantError)
			if !ok {
				panic(r)
			}
			err = violation
		}
	}()
	return fn()
}

// Lookup resolves a stored collection.
func Lookup(s *schema.Schema, name string) (*schema.Collection, error) {
	c, ok := s.Collection(name)
	if !ok || c.Embedded {
		return nil, errors.Wrapf(ErrUnknownCollection, "%q", name)
	}
	return c, nil
}
