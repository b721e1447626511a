package store

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
)

// Op is a comparison operator.
type Op int

const (
	Eq Op = iota
	Ne
	Gt
	Ge
	Lt
	Le
	IsNull
	NotNull
)

var opNames = []string{Eq: "=", Ne: "!=", Gt: ">", Ge: ">=", Lt: "<", Le: "<=", IsNull: "is null", NotNull: "is not null"}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return "?"
	}
	return opNames[o]
}

// ParseOp resolves an operator symbol such as ">=" or "is null".
func ParseOp(symbol string) (Op, error) {
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	if symbol == "==" {
		return Eq, nil
	}
	if symbol == "<>" {
		return Ne, nil
	}
	for i, name := range opNames {
		if name == symbol {
			return Op(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidFilter, "unknown operator %q", symbol)
}

func (o Op) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Op) UnmarshalText(text []byte) error {
	op, err := ParseOp(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// Condition compares one field with a value. The collection's identity name
// may be used as Field.
type Condition struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value,omitempty"`
}

// Operand returns the condition value as bool, int64, float64 or string.
func (c Condition) Operand() (any, bool) { return normalize(c.Value) }

// Filter is a conjunction of conditions; an empty filter matches everything.
type Filter []Condition

// Where starts a filter with one condition.
func Where(field string, op Op, value any) Filter {
	return Filter{{Field: field, Op: op, Value: value}}
}

// And appends a condition.
func (f Filter) And(field string, op Op, value any) Filter {
	return append(f, Condition{Field: field, Op: op, Value: value})
}

// Validate checks fields and values against c.
func (f Filter) Validate(c *schema.Collection) error {
	for _, cond := range f {
		if cond.Op < Eq || cond.Op > NotNull {
			return errors.Wrapf(ErrInvalidFilter, "%s: bad operator", cond.Field)
		}
		if cond.Field == c.Identity() {
			if cond.Op != IsNull && cond.Op != NotNull {
				if _, ok := normalize(cond.Value); !ok {
					return errors.Wrapf(ErrInvalidFilter, "%s: %T is not comparable", cond.Field, cond.Value)
				}
			}
			continue
		}
		index := c.PropertyIndex(cond.Field)
		if index < 0 {
			return errors.Wrapf(ErrInvalidFilter, "%s: unknown field", cond.Field)
		}
		if cond.Op == IsNull || cond.Op == NotNull {
			continue
		}
		p, _ := c.Property(index)
		if p.Type.IsList() || p.Type == schema.Object {
			return errors.Wrapf(ErrInvalidFilter, "%s: %v supports only null checks", cond.Field, p.Type)
		}
		if _, ok := normalize(cond.Value); !ok {
			return errors.Wrapf(ErrInvalidFilter, "%s: %T is not comparable", cond.Field, cond.Value)
		}
	}
	return nil
}

// Matches evaluates the filter against r. A null field satisfies only IsNull.
func (f Filter) Matches(r record.Reader) bool {
	for _, cond := range f {
		if !cond.matches(r) {
			return false
		}
	}
	return true
}

func (c Condition) matches(r record.Reader) bool {
	var value any
	if c.Field == r.IDName() {
		value = r.ReadID()
	} else {
		index := -1
		for i, p := range r.Properties() {
			if p.Name == c.Field {
				index = i + 1
				value = readComparable(r, index, p.Type)
				break
			}
		}
		if index < 0 {
			return false
		}
	}
	switch c.Op {
	case IsNull:
		return value == nil
	case NotNull:
		return value != nil
	}
	if value == nil {
		return false
	}
	want, ok := normalize(c.Value)
	if !ok {
		return false
	}
	cmp, ok := compare(value, want)
	if !ok {
		return false
	}
	switch c.Op {
	case Eq:
		return cmp == 0
	case Ne:
		return cmp != 0
	case Gt:
		return cmp > 0
	case Ge:
		return cmp >= 0
	case Lt:
		return cmp < 0
	case Le:
		return cmp <= 0
	}
	return false
}

// readComparable returns bool, int64, float64, string or nil (null, list or object).
func readComparable(r record.Reader, index int, t schema.DataType) any {
	switch t {
	case schema.Bool:
		if v, ok := r.ReadBool(index); ok {
			return v
		}
	case schema.Byte:
		if !r.IsNull(index) {
			return int64(r.ReadByte(index))
		}
	case schema.Int:
		if v := r.ReadInt(index); !record.IsNullInt(v) {
			return int64(v)
		}
	case schema.Long:
		if v := r.ReadLong(index); !record.IsNullLong(v) {
			return v
		}
	case schema.Float:
		if v := r.ReadFloat(index); !record.IsNullFloat(v) {
			return float64(v)
		}
	case schema.Double:
		if v := r.ReadDouble(index); !record.IsNullDouble(v) {
			return v
		}
	case schema.String, schema.Json:
		if v, ok := r.ReadString(index); ok {
			return v
		}
	default:
		if t.IsList() {
			if _, _, ok := r.ReadList(index); ok {
				return true
			}
		} else if _, ok := r.ReadObject(index); ok {
			return true
		}
	}
	return nil
}

// normalize converts a filter value to bool, int64, float64 or string.
func normalize(v any) (any, bool) {
	switch actual := v.(type) {
	case bool, int64, float64, string:
		return actual, true
	case int:
		return int64(actual), true
	case int8:
		return int64(actual), true
	case int16:
		return int64(actual), true
	case int32:
		return int64(actual), true
	case uint8:
		return int64(actual), true
	case uint16:
		return int64(actual), true
	case uint32:
		return int64(actual), true
	case float32:
		return float64(actual), true
	case interface{ Int64() (int64, error) }:
		if n, err := actual.Int64(); err == nil {
			return n, true
		}
		if f, ok := actual.(interface{ Float64() (float64, error) }); ok {
			if n, err := f.Float64(); err == nil {
				return n, true
			}
		}
	}
	return nil, false
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y), true
		case float64:
			return cmpOrdered(float64(x), y), true
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, float64(y)), true
		case float64:
			return cmpOrdered(x, y), true
		}
	}
	return 0, false
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
