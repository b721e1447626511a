package sqlstore

import (
	"database/sql"

	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
	"github.com/viant/watchdb/store"
)

// cursor reads query rows in id order.
type cursor struct {
	txn        *Txn
	collection *schema.Collection
	rows       *sql.Rows
	current    record.Reader
	err        error
}

func (c *cursor) Next() bool {
	if c.err != nil || c.rows == nil {
		return false
	}
	if !c.txn.active {
		c.err = store.ErrTxnClosed
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.current = nil
		return false
	}
	columns, err := scanColumns(c.rows, len(c.collection.Properties)+1)
	if err != nil {
		c.err = err
		return false
	}
	r, err := c.txn.row(c.collection, columns)
	if err != nil {
		c.err = err
		return false
	}
	c.current = r
	return true
}

func (c *cursor) Reader() record.Reader { return c.current }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error {
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close()
	c.rows = nil
	c.current = nil
	return err
}
