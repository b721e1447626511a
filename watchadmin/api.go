package watchadmin

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/viant/watchdb/schema"
	"github.com/viant/watchdb/watch"
	"modernc.org/sqlite/vtab"
)

// ModuleName is the name the module is registered under.
const ModuleName = "watch_admin"

// Source is an instance whose registrations the table reports.
type Source interface {
	Name() string
	Schema() *schema.Schema
	Watchers() *watch.Registry
}

// sources maps registration tokens to their sources. The driver registers
// modules by name for the whole process, so tables find their source here.
var sources sync.Map

// Registration is one source made visible to watch_admin tables.
type Registration struct {
	token string
}

// Token is the argument naming this source in
// CREATE VIRTUAL TABLE ... USING watch_admin('<token>').
func (r *Registration) Token() string { return r.token }

// Close removes the source; tables created with its token report an error.
func (r *Registration) Close() { sources.Delete(r.token) }

// Register registers the module with db and makes src visible under a token
// unique to this call, so instances sharing a name never see each other.
func Register(db *sql.DB, src Source) (*Registration, error) {
	if err := vtab.RegisterModule(db, ModuleName, &Module{}); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return nil, err
		}
	}
	r := &Registration{token: src.Name() + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")}
	sources.Store(r.token, src)
	return r, nil
}

// Module implements vtab.Module.
type Module struct{}

type Table struct{ source string }

type row struct {
	collection string
	coarse     int64
	detailed   int64
}

type Cursor struct {
	table *Table
	rows  []row
	pos   int
}

func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("watch_admin: instance token argument is required")
	}
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(collection TEXT, coarse INTEGER, detailed INTEGER)", args[2])); err != nil {
		return nil, err
	}
	return &Table{source: strings.Trim(strings.TrimSpace(args[3]), `'"`)}, nil
}

func (t *Table) BestIndex(info *vtab.IndexInfo) error { return nil }

func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }

func (t *Table) Disconnect() error { return nil }

func (t *Table) Destroy() error { return nil }

func (c *Cursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.rows = nil
	c.pos = 0
	value, ok := sources.Load(c.table.source)
	if !ok {
		return fmt.Errorf("watch_admin: unknown instance token %q", c.table.source)
	}
	src := value.(Source)
	for _, collection := range src.Schema().Stored() {
		coarse, detailed := src.Watchers().Collection(collection.Name).Counts()
		c.rows = append(c.rows, row{collection: collection.Name, coarse: int64(coarse), detailed: int64(detailed)})
	}
	return nil
}

func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("watch_admin: Column out of range")
	}
	current := c.rows[c.pos]
	switch col {
	case 0:
		return current.collection, nil
	case 1:
		return current.coarse, nil
	case 2:
		return current.detailed, nil
	}
	return nil, nil
}

func (c *Cursor) Rowid() (int64, error) { return int64(c.pos + 1), nil }

func (c *Cursor) Close() error {
	c.rows = nil
	c.pos = 0
	return nil
}
