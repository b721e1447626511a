package sqlstore

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/watchdb/engine"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
	"github.com/viant/watchdb/store"
	"github.com/viant/watchdb/watch"
	"github.com/viant/watchdb/watchadmin"
)

// DefaultKeyField is the property reported as Detail.Key unless a collection
// names its own KeyField.
const DefaultKeyField = "key"

const statementCacheSize = 256

// Instance is a SQLite-backed store.Instance.
type Instance struct {
	name       string
	db         *sql.DB
	schema     *schema.Schema
	registry   *watch.Registry
	logger     logrus.FieldLogger
	statements *lru.Cache
	admin      *watchadmin.Registration
	closed     atomic.Bool
}

// Open opens the database at path (engine.Memory for an in-memory database)
// and ensures a table for every stored collection of s. Missing property
// columns are added to existing tables.
func Open(path string, s *schema.Schema, opts ...store.Option) (*Instance, error) {
	if s == nil {
		return nil, errors.New("sqlstore: schema is nil")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := engine.RegisterFunctions(); err != nil {
		return nil, errors.Wrap(err, "sqlstore: failed to register functions")
	}
	options := store.NewOptions(opts...)
	db, err := engine.OpenFile(path, engine.DefaultFileOptions())
	if err != nil {
		return nil, err
	}
	statements, err := lru.New(statementCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	i := &Instance{
		name:       options.Name,
		db:         db,
		schema:     s,
		registry:   options.Registry,
		logger:     options.Logger.WithFields(logrus.Fields{"backend": store.SQL, "instance": options.Name}),
		statements: statements,
	}
	for _, c := range s.Stored() {
		if err := i.ensureTable(c); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if i.admin, err = watchadmin.Register(db, i); err != nil {
		i.logger.WithError(err).Warn("watch_admin module unavailable")
	}
	i.logger.WithField("path", path).Debug("opened instance")
	return i, nil
}

func (i *Instance) ensureTable(c *schema.Collection) error {
	if _, err := i.db.Exec(createTableSQL(c)); err != nil {
		return errors.Wrapf(err, "sqlstore: failed to create table %s", c.Name)
	}
	rows, err := i.db.Query("SELECT name FROM pragma_table_info(?)", c.Name)
	if err != nil {
		return errors.Wrapf(err, "sqlstore: failed to inspect table %s", c.Name)
	}
	existing := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		existing[name] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}
	for _, p := range c.Properties {
		if existing[p.Name] {
			continue
		}
		ddl := "ALTER TABLE " + quote(c.Name) + " ADD COLUMN " + quote(p.Name) + " " + columnType(p.Type)
		if _, err := i.db.Exec(ddl); err != nil {
			return errors.Wrapf(err, "sqlstore: failed to add column %s.%s", c.Name, p.Name)
		}
		i.logger.WithFields(logrus.Fields{"collection": c.Name, "column": p.Name}).Info("added column")
	}
	return nil
}

func (i *Instance) Name() string { return i.name }

func (i *Instance) Backend() string { return store.SQL }

func (i *Instance) Schema() *schema.Schema { return i.schema }

func (i *Instance) Watchers() *watch.Registry { return i.registry }

// AdminToken is the watch_admin argument reporting this instance's watchers,
// or "" when the module is unavailable.
func (i *Instance) AdminToken() string {
	if i.admin == nil {
		return ""
	}
	return i.admin.Token()
}

// Begin pins a connection and starts a transaction on it; write transactions
// take the database write lock up front. An in-memory instance has a single
// connection, so Begin waits (bounded by ctx) while another transaction is
// open.
func (i *Instance) Begin(ctx context.Context, write bool) (store.Txn, error) {
	if i.closed.Load() {
		return nil, store.ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := i.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: failed to acquire connection")
	}
	stmt := "BEGIN"
	if write {
		stmt = "BEGIN IMMEDIATE"
	}
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "sqlstore: failed to begin")
	}
	id := uuid.NewString()
	t := &Txn{
		id:        id,
		instance:  i,
		ctx:       ctx,
		conn:      conn,
		write:     write,
		active:    true,
		changes:   watch.NewChangeSet(i.registry, id),
		monitored: map[string]bool{},
		detected:  map[detectedKey]bool{},
		logger:    i.logger.WithField("txn", id),
	}
	t.logger.WithField("write", write).Debug("began transaction")
	return t, nil
}

// Close closes the connection pool.
func (i *Instance) Close() error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	if i.admin != nil {
		i.admin.Close()
	}
	return i.db.Close()
}

func (i *Instance) keyRule(c *schema.Collection) record.KeyRule {
	if c.KeyField != "" {
		return record.KeyByName(c.KeyField)
	}
	return record.KeyByName(DefaultKeyField)
}

var _ store.Instance = (*Instance)(nil)
