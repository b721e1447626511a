package sqlstore

import (
	"strings"

	"github.com/viant/watchdb/schema"
	"github.com/viant/watchdb/store"
)

var idColumn = quote(schema.ReservedColumn)

// statement returns the cached SQL text of kind for c.
func (i *Instance) statement(kind string, c *schema.Collection, build func(c *schema.Collection) string) string {
	key := kind + ":" + c.Name
	if text, ok := i.statements.Get(key); ok {
		return text.(string)
	}
	text := build(c)
	i.statements.Add(key, text)
	return text
}

func columnList(c *schema.Collection) string {
	names := make([]string, 0, len(c.Properties)+1)
	names = append(names, idColumn)
	for _, p := range c.Properties {
		names = append(names, quote(p.Name))
	}
	return strings.Join(names, ", ")
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func createTableSQL(c *schema.Collection) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quote(c.Name))
	b.WriteString(" (\n    ")
	b.WriteString(idColumn)
	b.WriteString(" INTEGER PRIMARY KEY")
	for _, p := range c.Properties {
		b.WriteString(",\n    ")
		b.WriteString(quote(p.Name))
		b.WriteString(" ")
		b.WriteString(columnType(p.Type))
	}
	b.WriteString("\n)")
	return b.String()
}

func selectSQL(c *schema.Collection) string {
	return "SELECT " + columnList(c) + " FROM " + quote(c.Name)
}

func selectByIDSQL(c *schema.Collection) string {
	return selectSQL(c) + " WHERE " + idColumn + " = ?"
}

func countSQL(c *schema.Collection) string {
	return "SELECT COUNT(*) FROM " + quote(c.Name)
}

func insertSQL(c *schema.Collection) string {
	if len(c.Properties) == 0 {
		return "INSERT INTO " + quote(c.Name) + " DEFAULT VALUES"
	}
	names := make([]string, len(c.Properties))
	for i, p := range c.Properties {
		names[i] = quote(p.Name)
	}
	return "INSERT INTO " + quote(c.Name) + " (" + strings.Join(names, ", ") + ") VALUES (" + placeholders(len(names)) + ")"
}

func upsertSQL(c *schema.Collection) string {
	text := "INSERT INTO " + quote(c.Name) + " (" + columnList(c) + ") VALUES (" + placeholders(len(c.Properties)+1) + ")" +
		" ON CONFLICT(" + idColumn + ") DO "
	if len(c.Properties) == 0 {
		return text + "NOTHING"
	}
	set := make([]string, len(c.Properties))
	for i, p := range c.Properties {
		set[i] = quote(p.Name) + " = excluded." + quote(p.Name)
	}
	return text + "UPDATE SET " + strings.Join(set, ", ")
}

func deleteByIDSQL(c *schema.Collection) string {
	return "DELETE FROM " + quote(c.Name) + " WHERE " + idColumn + " = ?"
}

func deleteSQL(c *schema.Collection) string {
	return "DELETE FROM " + quote(c.Name)
}

var sqlOps = map[store.Op]string{
	store.Eq: "=",
	store.Ne: "<>",
	store.Gt: ">",
	store.Ge: ">=",
	store.Lt: "<",
	store.Le: "<=",
}

// whereClause renders a validated filter. Comparisons with NULL columns are
// never true, matching Filter.Matches.
func whereClause(c *schema.Collection, filter store.Filter) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filter))
	var args []any
	for _, cond := range filter {
		column := quote(cond.Field)
		if cond.Field == c.Identity() {
			column = idColumn
		}
		switch cond.Op {
		case store.IsNull:
			clauses = append(clauses, column+" IS NULL")
			continue
		case store.NotNull:
			clauses = append(clauses, column+" IS NOT NULL")
			continue
		}
		value, _ := cond.Operand()
		if b, ok := value.(bool); ok {
			value = int64(0)
			if b {
				value = int64(1)
			}
		}
		clauses = append(clauses, column+" "+sqlOps[cond.Op]+" ?")
		args = append(args, value)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// setClause renders assignments for the updated properties in declaration
// order.
func setClause(c *schema.Collection, updates map[string]any) ([]string, []schema.Property) {
	var assignments []string
	var props []schema.Property
	for _, p := range c.Properties {
		if _, ok := updates[p.Name]; ok {
			assignments = append(assignments, quote(p.Name)+" = ?")
			props = append(props, p)
		}
	}
	return assignments, props
}
