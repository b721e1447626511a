package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/watchdb/change"
	"github.com/viant/watchdb/metrics"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
	"github.com/viant/watchdb/store"
	"github.com/viant/watchdb/watch"
)

type detectedKey struct {
	collection string
	id         int64
}

// snapshot is the JSON state of one row.
type snapshot struct {
	id  int64
	doc []byte
}

// Txn is a transaction on a pinned connection with its pending change set.
type Txn struct {
	id        string
	instance  *Instance
	ctx       context.Context
	conn      *sql.Conn
	write     bool
	active    bool
	changes   *watch.ChangeSet
	monitored map[string]bool
	order     []string
	detected  map[detectedKey]bool
	logger    logrus.FieldLogger
}

func (t *Txn) ID() string { return t.id }

func (t *Txn) Write() bool { return t.write }

func (t *Txn) collection(name string, write bool) (*schema.Collection, error) {
	if !t.active {
		return nil, store.ErrTxnClosed
	}
	if write && !t.write {
		return nil, store.ErrWriteTxnRequired
	}
	return store.Lookup(t.instance.schema, name)
}

func (t *Txn) exec(query string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(t.ctx, query, args...)
}

// row converts scanned columns (id first) into a reader.
func (t *Txn) row(c *schema.Collection, columns []any) (*record.Values, error) {
	id, ok := columns[0].(int64)
	if !ok {
		return nil, errors.Errorf("sqlstore: %s: unexpected id %T", c.Name, columns[0])
	}
	fields := make(map[string]any, len(c.Properties))
	for n, p := range c.Properties {
		value, err := fromColumn(t.instance.schema, p, columns[n+1])
		if err != nil {
			return nil, errors.WithMessagef(err, "sqlstore: %s/%d", c.Name, id)
		}
		if value != nil {
			fields[p.Name] = value
		}
	}
	return record.NewValues(t.instance.schema, c, id, fields), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanColumns(s scanner, width int) ([]any, error) {
	columns := make([]any, width)
	targets := make([]any, width)
	for i := range columns {
		targets[i] = &columns[i]
	}
	if err := s.Scan(targets...); err != nil {
		return nil, err
	}
	return columns, nil
}

// load reads id, or nil when it does not exist.
func (t *Txn) load(c *schema.Collection, id int64) (*record.Values, error) {
	query := t.instance.statement("selectByID", c, selectByIDSQL)
	columns, err := scanColumns(t.conn.QueryRowContext(t.ctx, query, id), len(c.Properties)+1)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: failed to read %s/%d", c.Name, id)
	}
	return t.row(c, columns)
}

func (t *Txn) Get(collection string, id int64) (record.Reader, bool, error) {
	c, err := t.collection(collection, false)
	if err != nil {
		return nil, false, err
	}
	r, err := t.load(c, id)
	if err != nil || r == nil {
		return nil, false, err
	}
	return r, true, nil
}

func (t *Txn) Query(collection string, filter store.Filter) (store.Cursor, error) {
	c, err := t.collection(collection, false)
	if err != nil {
		return nil, err
	}
	if err := filter.Validate(c); err != nil {
		return nil, err
	}
	clause, args := whereClause(c, filter)
	query := t.instance.statement("select", c, selectSQL) + clause + " ORDER BY " + idColumn
	rows, err := t.conn.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: failed to query %s", c.Name)
	}
	return &cursor{txn: t, collection: c, rows: rows}, nil
}

func (t *Txn) Count(collection string, filter store.Filter) (int, error) {
	c, err := t.collection(collection, false)
	if err != nil {
		return 0, err
	}
	if err := filter.Validate(c); err != nil {
		return 0, err
	}
	clause, args := whereClause(c, filter)
	var count int
	query := t.instance.statement("count", c, countSQL) + clause
	if err := t.conn.QueryRowContext(t.ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "sqlstore: failed to count %s", c.Name)
	}
	return count, nil
}

func (t *Txn) Put(collection string, objects ...store.Object) ([]int64, error) {
	c, err := t.collection(collection, true)
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
		if err := t.monitor(c, watchers); err != nil {
			return err
		}
		for i, o := range objects {
			var before []byte
			if watchers.HasDetailedWatchers() && o.ID > 0 {
				if before, err = t.snapshot(c, o.ID); err != nil {
					return err
				}
			}
			id, err := t.upsert(c, o.ID, prepared[i])
			if err != nil {
				return err
			}
			if watchers.HasDetailedWatchers() {
				after, err := t.snapshot(c, id)
				if err != nil {
					return err
				}
				t.record(c, id, before, after)
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

func (t *Txn) upsert(c *schema.Collection, id int64, fields map[string]any) (int64, error) {
	args := make([]any, 0, len(c.Properties)+1)
	if id > 0 {
		args = append(args, id)
	}
	for _, p := range c.Properties {
		value, err := toColumn(t.instance.schema, p, fields[p.Name])
		if err != nil {
			return 0, err
		}
		args = append(args, value)
	}
	if id > 0 {
		if _, err := t.exec(t.instance.statement("upsert", c, upsertSQL), args...); err != nil {
			return 0, errors.Wrapf(err, "sqlstore: failed to put %s/%d", c.Name, id)
		}
		return id, nil
	}
	result, err := t.exec(t.instance.statement("insert", c, insertSQL), args...)
	if err != nil {
		return 0, errors.Wrapf(err, "sqlstore: failed to insert into %s", c.Name)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "sqlstore: failed to read assigned id")
	}
	return id, nil
}

func (t *Txn) Update(collection string, filter store.Filter, set map[string]any) (int, error) {
	c, err := t.collection(collection, true)
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
	assignments, props := setClause(c, updates)
	if len(assignments) == 0 {
		return t.Count(collection, filter)
	}
	watchers := t.instance.registry.Collection(collection)
	updated := 0
	err = t.guard(func() error {
		if err := t.monitor(c, watchers); err != nil {
			return err
		}
		clause, whereArgs := whereClause(c, filter)
		var befores []snapshot
		if watchers.HasDetailedWatchers() {
			if befores, err = t.snapshots(c, clause, whereArgs); err != nil {
				return err
			}
		}
		args := make([]any, 0, len(props)+len(whereArgs))
		for _, p := range props {
			value, err := toColumn(t.instance.schema, p, updates[p.Name])
			if err != nil {
				return err
			}
			args = append(args, value)
		}
		args = append(args, whereArgs...)
		query := "UPDATE " + quote(c.Name) + " SET " + strings.Join(assignments, ", ") + clause
		result, err := t.exec(query, args...)
		if err != nil {
			return errors.Wrapf(err, "sqlstore: failed to update %s", c.Name)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		updated = int(affected)
		for _, before := range befores {
			after, err := t.snapshot(c, before.id)
			if err != nil {
				return err
			}
			t.record(c, before.id, before.doc, after)
		}
		return nil
	})
	return updated, err
}

func (t *Txn) Delete(collection string, ids ...int64) (int, error) {
	c, err := t.collection(collection, true)
	if err != nil {
		return 0, err
	}
	watchers := t.instance.registry.Collection(collection)
	deleted := 0
	err = t.guard(func() error {
		if err := t.monitor(c, watchers); err != nil {
			return err
		}
		query := t.instance.statement("deleteByID", c, deleteByIDSQL)
		for _, id := range ids {
			var before []byte
			if watchers.HasDetailedWatchers() {
				if before, err = t.snapshot(c, id); err != nil {
					return err
				}
			}
			result, err := t.exec(query, id)
			if err != nil {
				return errors.Wrapf(err, "sqlstore: failed to delete %s/%d", c.Name, id)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				continue
			}
			deleted++
			if before != nil {
				t.record(c, id, before, nil)
			}
		}
		return nil
	})
	return deleted, err
}

func (t *Txn) DeleteWhere(collection string, filter store.Filter) (int, error) {
	c, err := t.collection(collection, true)
	if err != nil {
		return 0, err
	}
	if err := filter.Validate(c); err != nil {
		return 0, err
	}
	watchers := t.instance.registry.Collection(collection)
	deleted := 0
	err = t.guard(func() error {
		if err := t.monitor(c, watchers); err != nil {
			return err
		}
		clause, args := whereClause(c, filter)
		var befores []snapshot
		if watchers.HasDetailedWatchers() {
			if befores, err = t.snapshots(c, clause, args); err != nil {
				return err
			}
		}
		result, err := t.exec(t.instance.statement("delete", c, deleteSQL)+clause, args...)
		if err != nil {
			return errors.Wrapf(err, "sqlstore: failed to delete from %s", c.Name)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(affected)
		for _, before := range befores {
			t.record(c, before.id, before.doc, nil)
		}
		return nil
	})
	return deleted, err
}

// Exec runs a raw statement in the transaction. Rows it touches reach
// watchers through the mutation hook only, so detailed watchers receive
// minimal Update details for them.
func (t *Txn) Exec(query string, args ...any) (int64, error) {
	if !t.active {
		return 0, store.ErrTxnClosed
	}
	if !t.write {
		return 0, store.ErrWriteTxnRequired
	}
	var affected int64
	err := t.guard(func() error {
		for _, c := range t.instance.schema.Stored() {
			if err := t.monitor(c, t.instance.registry.Collection(c.Name)); err != nil {
				return err
			}
		}
		result, err := t.exec(query, args...)
		if err != nil {
			return errors.Wrap(err, "sqlstore: exec failed")
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

// snapshot reads the JSON state of id for change detection; nil when the
// row does not exist.
func (t *Txn) snapshot(c *schema.Collection, id int64) ([]byte, error) {
	metrics.ChangeReadsTotal.WithLabelValues(store.SQL).Inc()
	r, err := t.load(c, id)
	if err != nil || r == nil {
		return nil, err
	}
	return marshalState(c, r)
}

// snapshots reads the JSON states of every row matching clause.
func (t *Txn) snapshots(c *schema.Collection, clause string, args []any) ([]snapshot, error) {
	query := t.instance.statement("select", c, selectSQL) + clause + " ORDER BY " + idColumn
	rows, err := t.conn.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: failed to query %s", c.Name)
	}
	defer rows.Close()
	var out []snapshot
	for rows.Next() {
		metrics.ChangeReadsTotal.WithLabelValues(store.SQL).Inc()
		columns, err := scanColumns(rows, len(c.Properties)+1)
		if err != nil {
			return nil, err
		}
		r, err := t.row(c, columns)
		if err != nil {
			return nil, err
		}
		doc, err := marshalState(c, r)
		if err != nil {
			return nil, err
		}
		out = append(out, snapshot{id: r.ReadID(), doc: doc})
	}
	return out, rows.Err()
}

func marshalState(c *schema.Collection, r record.Reader) ([]byte, error) {
	doc, err := record.MarshalJSON(r)
	if err != nil {
		return nil, &change.InvariantError{Collection: c.Name, ObjectID: r.ReadID(), Err: err}
	}
	return doc, nil
}

func (t *Txn) record(c *schema.Collection, id int64, before, after []byte) {
	t.detected[detectedKey{collection: c.Name, id: id}] = true
	opts := change.JSONOptions{IDName: c.Identity(), Key: t.instance.keyRule(c), Properties: c.Properties}
	if detail := change.DetectJSON(c.Name, id, before, after, opts); detail != nil {
		t.changes.RegisterDetailedChange(*detail)
		metrics.ChangeDetailsTotal.WithLabelValues(store.SQL, detail.Type.String()).Inc()
	}
}

// monitor installs the mutation hook of c once per transaction, when c has
// watchers.
func (t *Txn) monitor(c *schema.Collection, watchers *watch.CollectionWatchers) error {
	if t.monitored[c.Name] || !watchers.HasWatchers() {
		return nil
	}
	statements := TouchTriggers(c.Name)
	if len(t.order) == 0 {
		statements = append([]string{TouchedTableDDL()}, statements...)
	}
	for _, stmt := range statements {
		if _, err := t.exec(stmt); err != nil {
			return errors.Wrapf(err, "sqlstore: failed to install hook on %s", c.Name)
		}
	}
	t.monitored[c.Name] = true
	t.order = append(t.order, c.Name)
	return nil
}

// drain turns the queued row mutations into coarse changes, and into minimal
// details for rows no operation described.
func (t *Txn) drain() error {
	if len(t.order) == 0 {
		return nil
	}
	rows, err := t.conn.QueryContext(t.ctx, "SELECT collection, id FROM temp."+TouchedTable+" ORDER BY seq")
	if err != nil {
		return errors.Wrap(err, "sqlstore: failed to read touched rows")
	}
	var touched []detectedKey
	for rows.Next() {
		var key detectedKey
		if err := rows.Scan(&key.collection, &key.id); err != nil {
			_ = rows.Close()
			return err
		}
		touched = append(touched, key)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if _, err := t.exec("DELETE FROM temp." + TouchedTable); err != nil {
		return errors.Wrap(err, "sqlstore: failed to clear touched rows")
	}
	for _, key := range touched {
		c, ok := t.instance.schema.Collection(key.collection)
		if !ok {
			continue
		}
		watchers := t.instance.registry.Collection(key.collection)
		t.changes.RegisterChange(watchers, key.id, nil)
		if !watchers.HasDetailedWatchers() || t.detected[key] || t.changes.HasDetail(key.collection, key.id) {
			continue
		}
		t.changes.RegisterDetailedChange(change.Minimal(key.collection, key.id, c.Identity()))
		metrics.ChangeDetailsTotal.WithLabelValues(store.SQL, change.Update.String()).Inc()
	}
	return nil
}

// unmonitor drops every installed hook; it is safe inside or outside the
// transaction.
func (t *Txn) unmonitor(ctx context.Context) {
	for _, name := range t.order {
		for _, stmt := range DropTouchTriggers(name) {
			if _, err := t.conn.ExecContext(ctx, stmt); err != nil {
				t.logger.WithError(err).WithField("collection", name).Warn("failed to drop hook")
			}
		}
	}
	t.order = nil
	t.monitored = map[string]bool{}
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

// Commit drains the hook queue, commits and then notifies watchers.
func (t *Txn) Commit() error {
	if !t.active {
		return store.ErrTxnClosed
	}
	ctx := context.WithoutCancel(t.ctx)
	if !t.write {
		t.active = false
		defer t.release()
		if _, err := t.conn.ExecContext(ctx, "COMMIT"); err != nil {
			return errors.Wrap(err, "sqlstore: commit failed")
		}
		return nil
	}
	if err := t.guard(t.drain); err != nil {
		return err
	}
	t.active = false
	defer t.release()
	t.unmonitor(ctx)
	if _, err := t.conn.ExecContext(ctx, "COMMIT"); err != nil {
		if _, rerr := t.conn.ExecContext(ctx, "ROLLBACK"); rerr != nil {
			t.logger.WithError(rerr).Warn("rollback failed")
		}
		metrics.TxnTotal.WithLabelValues(store.SQL, metrics.Abort).Inc()
		return errors.Wrap(err, "sqlstore: commit failed")
	}
	metrics.TxnTotal.WithLabelValues(store.SQL, metrics.Commit).Inc()
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
	defer t.release()
	ctx := context.WithoutCancel(t.ctx)
	if _, err := t.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		t.logger.WithError(err).Warn("rollback failed")
	}
	t.unmonitor(ctx)
	if t.write {
		metrics.TxnTotal.WithLabelValues(store.SQL, metrics.Abort).Inc()
	}
	t.logger.Debug("aborted transaction")
}

func (t *Txn) release() {
	if err := t.conn.Close(); err != nil {
		t.logger.WithError(err).Warn("failed to release connection")
	}
}

var _ store.Txn = (*Txn)(nil)
