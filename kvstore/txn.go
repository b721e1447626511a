package kvstore

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/watchdb/change"
	"github.com/viant/watchdb/metrics"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
	"github.com/viant/watchdb/store"
	"github.com/viant/watchdb/watch"
	bolt "go.etcd.io/bbolt"
)

// Txn is a bbolt transaction with its pending change set.
type Txn struct {
	id       string
	instance *Instance
	tx       *bolt.Tx
	write    bool
	active   bool
	changes  *watch.ChangeSet
	logger   logrus.FieldLogger
}

func (t *Txn) ID() string { return t.id }

func (t *Txn) Write() bool { return t.write }

func (t *Txn) collection(name string, write bool) (*schema.Collection, *bolt.Bucket, error) {
	if !t.active {
		return nil, nil, store.ErrTxnClosed
	}
	if write && !t.write {
		return nil, nil, store.ErrWriteTxnRequired
	}
	c, err := store.Lookup(t.instance.schema, name)
	if err != nil {
		return nil, nil, err
	}
	bucket := t.tx.Bucket([]byte(name))
	if bucket == nil {
		return nil, nil, errors.Errorf("kvstore: missing bucket %s", name)
	}
	return c, bucket, nil
}

func (t *Txn) reader(c *schema.Collection, data []byte) (*binaryReader, error) {
	return decode(t.instance.schema, c, data)
}

// load reads the stored state of id, or nil when it does not exist.
func (t *Txn) load(c *schema.Collection, bucket *bolt.Bucket, id int64) (*binaryReader, error) {
	data := bucket.Get(idKey(id))
	if data == nil {
		return nil, nil
	}
	return t.reader(c, append([]byte(nil), data...))
}

func (t *Txn) Get(collection string, id int64) (record.Reader, bool, error) {
	c, bucket, err := t.collection(collection, false)
	if err != nil {
		return nil, false, err
	}
	r, err := t.load(c, bucket, id)
	if err != nil || r == nil {
		return nil, false, err
	}
	return r, true, nil
}

func (t *Txn) Query(collection string, filter store.Filter) (store.Cursor, error) {
	c, bucket, err := t.collection(collection, false)
	if err != nil {
		return nil, err
	}
	if err := filter.Validate(c); err != nil {
		return nil, err
	}
	return &cursor{txn: t, collection: c, cursor: bucket.Cursor(), filter: filter}, nil
}

func (t *Txn) Count(collection string, filter store.Filter) (int, error) {
	cur, err := t.Query(collection, filter)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	count := 0
	for cur.Next() {
		count++
	}
	return count, cur.Err()
}

func (t *Txn) Put(collection string, objects ...store.Object) ([]int64, error) {
	c, bucket, err := t.collection(collection, true)
	if err != nil {
		return nil, err
	}
	prepared := make([]map[string]any, len(objects))
	for i, o := range objects {
		if prepared[i], err = t.instance.schema.CoerceObject(c, o.Fields); err != nil {
			return nil, err
		}
	}
	watchers := t.instance.registry.Collection(collection)
	ids := make([]int64, 0, len(objects))
	err = t.guard(func() error {
		for i, o := range objects {
			id, err := assignID(bucket, o.ID)
			if err != nil {
				return err
			}
			var before record.Reader
			if watchers.HasDetailedWatchers() {
				if before, err = t.loadState(c, bucket, id); err != nil {
					return err
				}
			}
			if err := t.store(c, bucket, watchers, id, prepared[i], before); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *Txn) Update(collection string, filter store.Filter, set map[string]any) (int, error) {
	c, bucket, err := t.collection(collection, true)
	if err != nil {
		return 0, err
	}
	if err := filter.Validate(c); err != nil {
		return 0, err
	}
	updates, err := t.instance.schema.CoerceObject(c, set)
	if err != nil {
		return 0, err
	}
	watchers := t.instance.registry.Collection(collection)
	updated := 0
	err = t.guard(func() error {
		matches, err := t.scan(c, bucket, filter)
		if err != nil {
			return err
		}
		for _, before := range matches {
			fields := record.Fields(before)
			for name, value := range updates {
				fields[name] = value
			}
			var old record.Reader
			if watchers.HasDetailedWatchers() {
				metrics.ChangeReadsTotal.WithLabelValues(store.Native).Inc()
				old = before
			}
			if err := t.store(c, bucket, watchers, before.ReadID(), fields, old); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	return updated, err
}

func (t *Txn) Delete(collection string, ids ...int64) (int, error) {
	c, bucket, err := t.collection(collection, true)
	if err != nil {
		return 0, err
	}
	deleted := 0
	err = t.guard(func() error {
		for _, id := range ids {
			ok, err := t.remove(c, bucket, id)
			if err != nil {
				return err
			}
			if ok {
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

func (t *Txn) DeleteWhere(collection string, filter store.Filter) (int, error) {
	c, bucket, err := t.collection(collection, true)
	if err != nil {
		return 0, err
	}
	if err := filter.Validate(c); err != nil {
		return 0, err
	}
	deleted := 0
	err = t.guard(func() error {
		matches, err := t.scan(c, bucket, filter)
		if err != nil {
			return err
		}
		for _, match := range matches {
			ok, err := t.remove(c, bucket, match.ReadID())
			if err != nil {
				return err
			}
			if ok {
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

// scan collects matching objects before any of them is modified.
func (t *Txn) scan(c *schema.Collection, bucket *bolt.Bucket, filter store.Filter) ([]*binaryReader, error) {
	var out []*binaryReader
	cur := bucket.Cursor()
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		r, err := t.reader(c, v)
		if err != nil {
			return nil, err
		}
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// loadState reads a before or after state for change detection.
func (t *Txn) loadState(c *schema.Collection, bucket *bolt.Bucket, id int64) (record.Reader, error) {
	metrics.ChangeReadsTotal.WithLabelValues(store.Native).Inc()
	r, err := t.load(c, bucket, id)
	if err != nil || r == nil {
		return nil, err
	}
	return r, nil
}

// store writes fields under id and records the change against before.
func (t *Txn) store(c *schema.Collection, bucket *bolt.Bucket, watchers *watch.CollectionWatchers, id int64, fields map[string]any, before record.Reader) error {
	data, err := encode(t.instance.schema, c, id, fields)
	if err != nil {
		return err
	}
	if err := bucket.Put(idKey(id), data); err != nil {
		return errors.Wrapf(err, "kvstore: failed to put %s/%d", c.Name, id)
	}
	if !watchers.HasWatchers() {
		return nil
	}
	var after record.Reader
	if watchers.HasDetailedWatchers() {
		if after, err = t.loadState(c, bucket, id); err != nil {
			return err
		}
	} else if after, err = t.reader(c, data); err != nil {
		return err
	}
	t.record(c, watchers, id, before, after)
	return nil
}

// remove deletes id and records the change. It reports whether id existed.
func (t *Txn) remove(c *schema.Collection, bucket *bolt.Bucket, id int64) (bool, error) {
	key := idKey(id)
	if bucket.Get(key) == nil {
		return false, nil
	}
	var before record.Reader
	var err error
	if watchers := t.instance.registry.Collection(c.Name); watchers.HasDetailedWatchers() {
		before, err = t.loadState(c, bucket, id)
	} else if watchers.HasCoarseWatchers() {
		before, err = t.load(c, bucket, id)
	}
	if err != nil {
		return false, err
	}
	if err := bucket.Delete(key); err != nil {
		return false, errors.Wrapf(err, "kvstore: failed to delete %s/%d", c.Name, id)
	}
	t.record(c, t.instance.registry.Collection(c.Name), id, before, nil)
	return true, nil
}

func (t *Txn) record(c *schema.Collection, watchers *watch.CollectionWatchers, id int64, before, after record.Reader) {
	if watchers.HasDetailedWatchers() {
		if detail := change.Detect(c.Name, id, before, after, t.instance.keyRule(c)); detail != nil {
			t.changes.RegisterDetailedChange(*detail)
			metrics.ChangeDetailsTotal.WithLabelValues(store.Native, detail.Type.String()).Inc()
		}
	}
	view := after
	if view == nil {
		view = before
	}
	t.changes.RegisterChange(watchers, id, view)
}

func assignID(bucket *bolt.Bucket, id int64) (int64, error) {
	if id <= 0 {
		next, err := bucket.NextSequence()
		if err != nil {
			return 0, errors.Wrap(err, "kvstore: failed to allocate id")
		}
		return int64(next), nil
	}
	if uint64(id) > bucket.Sequence() {
		if err := bucket.SetSequence(uint64(id)); err != nil {
			return 0, errors.Wrap(err, "kvstore: failed to advance sequence")
		}
	}
	return id, nil
}

// guard aborts the transaction when fn fails.
func (t *Txn) guard(fn func() error) error {
	if err := store.Guard(fn); err != nil {
		t.logger.WithError(err).Error("write failed, rolling back")
		t.Abort()
		return err
	}
	return nil
}

// Commit persists the transaction and then notifies watchers.
func (t *Txn) Commit() error {
	if !t.active {
		return store.ErrTxnClosed
	}
	t.active = false
	if !t.write {
		return t.tx.Rollback()
	}
	if err := t.tx.Commit(); err != nil {
		metrics.TxnTotal.WithLabelValues(store.Native, metrics.Abort).Inc()
		return errors.Wrap(err, "kvstore: commit failed")
	}
	metrics.TxnTotal.WithLabelValues(store.Native, metrics.Commit).Inc()
	stats := t.changes.Notify()
	t.logger.WithFields(logrus.Fields{
		"notifications": stats.Notifications,
		"batches":       stats.Batches,
		"details":       stats.Details,
	}).Debug("committed transaction")
	return nil
}

// Abort rolls back; pending changes are dropped.
func (t *Txn) Abort() {
	if !t.active {
		return
	}
	t.active = false
	if err := t.tx.Rollback(); err != nil {
		t.logger.WithError(err).Warn("rollback failed")
	}
	if t.write {
		metrics.TxnTotal.WithLabelValues(store.Native, metrics.Abort).Inc()
	}
	t.logger.Debug("aborted transaction")
}

var _ store.Txn = (*Txn)(nil)
