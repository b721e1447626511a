package kvstore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
	"github.com/viant/watchdb/store"
	"github.com/viant/watchdb/watch"
	bolt "go.etcd.io/bbolt"
)

// Instance is a bbolt-backed store.Instance.
type Instance struct {
	name     string
	db       *bolt.DB
	schema   *schema.Schema
	registry *watch.Registry
	logger   logrus.FieldLogger
	closed   atomic.Bool
}

// Open opens or creates the database file at path and ensures a bucket for
// every stored collection of s.
func Open(path string, s *schema.Schema, opts ...store.Option) (*Instance, error) {
	if s == nil {
		return nil, errors.New("kvstore: schema is nil")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	options := store.NewOptions(opts...)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "kvstore: failed to open %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, c := range s.Stored() {
			if _, err := tx.CreateBucketIfNotExists([]byte(c.Name)); err != nil {
				return errors.Wrapf(err, "kvstore: failed to create bucket %s", c.Name)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	i := &Instance{
		name:     options.Name,
		db:       db,
		schema:   s,
		registry: options.Registry,
		logger:   options.Logger.WithFields(logrus.Fields{"backend": store.Native, "instance": options.Name}),
	}
	i.logger.WithField("path", path).Debug("opened instance")
	return i, nil
}

func (i *Instance) Name() string { return i.name }

func (i *Instance) Backend() string { return store.Native }

func (i *Instance) Schema() *schema.Schema { return i.schema }

func (i *Instance) Watchers() *watch.Registry { return i.registry }

// Begin starts a transaction. bbolt allows a single write transaction at a
// time; a goroutine must not hold a read transaction while beginning a write.
func (i *Instance) Begin(ctx context.Context, write bool) (store.Txn, error) {
	if i.closed.Load() {
		return nil, store.ErrClosed
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	tx, err := i.db.Begin(write)
	if err != nil {
		return nil, errors.Wrap(err, "kvstore: failed to begin")
	}
	id := uuid.NewString()
	t := &Txn{
		id:       id,
		instance: i,
		tx:       tx,
		write:    write,
		active:   true,
		changes:  watch.NewChangeSet(i.registry, id),
		logger:   i.logger.WithField("txn", id),
	}
	t.logger.WithField("write", write).Debug("began transaction")
	return t, nil
}

// Close closes the database file.
func (i *Instance) Close() error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	return i.db.Close()
}

func (i *Instance) keyRule(c *schema.Collection) record.KeyRule {
	if c.KeyField != "" {
		return record.KeyByName(c.KeyField)
	}
	return record.KeyAtPosition(2)
}

var _ store.Instance = (*Instance)(nil)
