package sqlstore

import (
	"fmt"
	"strings"

	"github.com/viant/watchdb/schema"
)

// TouchedTable is the TEMP queue receiving ids of mutated rows.
const TouchedTable = "_watch_touched"

// TouchedTableDDL returns the DDL of the TEMP queue table.
func TouchedTableDDL() string {
	return `CREATE TEMP TABLE IF NOT EXISTS ` + TouchedTable + ` (
    seq        INTEGER PRIMARY KEY,
    collection TEXT NOT NULL,
    id         INTEGER NOT NULL
);`
}

// TouchTriggers returns TEMP AFTER INSERT/UPDATE/DELETE triggers that append
// the touched row id of table to the queue.
func TouchTriggers(table string) []string {
	base := triggerBase(table)
	touch := func(kind, event, alias string) string {
		return fmt.Sprintf(`CREATE TEMP TRIGGER IF NOT EXISTS %s_%s AFTER %s ON main.%s
BEGIN
    INSERT INTO %s(collection, id) VALUES ('%s', %s.%s);
END;`, base, kind, event, quote(table), TouchedTable, strings.ReplaceAll(table, "'", "''"), alias, quote(schema.ReservedColumn))
	}
	return []string{
		touch("ai", "INSERT", "NEW"),
		touch("au", "UPDATE", "NEW"),
		touch("ad", "DELETE", "OLD"),
	}
}

// DropTouchTriggers returns idempotent statements removing TouchTriggers.
func DropTouchTriggers(table string) []string {
	base := triggerBase(table)
	out := make([]string, 0, 3)
	for _, kind := range []string{"ai", "au", "ad"} {
		out = append(out, fmt.Sprintf(`DROP TRIGGER IF EXISTS temp.%s_%s`, base, kind))
	}
	return out
}

func triggerBase(table string) string {
	return "_watch_" + sanitizeIdentifier(table)
}

func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	replacer := strings.NewReplacer(".", "_", "-", "_", `"`, "_", "'", "_", " ", "_")
	return replacer.Replace(name)
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
