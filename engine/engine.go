package engine

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// Memory is the DSN of a private in-memory database.
const Memory = ":memory:"

// Open opens a SQLite database using the modernc.org/sqlite driver.
func Open(dsn string) (*sql.DB, error) { return sql.Open("sqlite", dsn) }

// FileOptions controls the pragmas applied to every connection of OpenFile.
type FileOptions struct {
	BusyTimeout time.Duration
	WAL         bool
	ForeignKeys bool
}

// DefaultFileOptions returns a 5s busy timeout with WAL and foreign keys on.
func DefaultFileOptions() FileOptions {
	return FileOptions{BusyTimeout: 5 * time.Second, WAL: true, ForeignKeys: true}
}

// DSN renders path with opts as driver pragmas.
func (o FileOptions) DSN(path string) string {
	values := url.Values{}
	if o.BusyTimeout > 0 {
		values.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.BusyTimeout.Milliseconds()))
	}
	if o.WAL {
		values.Add("_pragma", "journal_mode(WAL)")
	}
	if o.ForeignKeys {
		values.Add("_pragma", "foreign_keys(1)")
	}
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}

// OpenFile opens the database at path. An in-memory database is private to a
// connection, so Memory keeps the pool at a single connection.
func OpenFile(path string, opts FileOptions) (*sql.DB, error) {
	if path == Memory {
		db, err := Open(Memory)
		if err != nil {
			return nil, errors.Wrap(err, "engine: failed to open in-memory database")
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return db, nil
	}
	db, err := Open(opts.DSN(path))
	if err != nil {
		return nil, errors.Wrapf(err, "engine: failed to open %s", path)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "engine: failed to connect %s", path)
	}
	return db, nil
}
