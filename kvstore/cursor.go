package kvstore

import (
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
	"github.com/viant/watchdb/store"
	bolt "go.etcd.io/bbolt"
)

// cursor walks a bucket in id order, yielding objects matching filter.
type cursor struct {
	txn        *Txn
	collection *schema.Collection
	cursor     *bolt.Cursor
	filter     store.Filter
	started    bool
	current    record.Reader
	err        error
}

func (c *cursor) Next() bool {
	if c.err != nil || c.cursor == nil {
		return false
	}
	if !c.txn.active {
		c.err = store.ErrTxnClosed
		return false
	}
	for {
		var k, v []byte
		if !c.started {
			k, v = c.cursor.First()
			c.started = true
		} else {
			k, v = c.cursor.Next()
		}
		if k == nil {
			c.current = nil
			return false
		}
		r, err := c.txn.reader(c.collection, v)
		if err != nil {
			c.err = err
			return false
		}
		if c.filter.Matches(r) {
			c.current = r
			return true
		}
	}
}

func (c *cursor) Reader() record.Reader { return c.current }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error {
	c.cursor = nil
	c.current = nil
	return nil
}
