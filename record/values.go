package record

import (
	"math"

	"github.com/viant/watchdb/schema"
)

// Values is a Reader over coerced Go values (see schema.Coerce). Missing
// fields read as null.
type Values struct {
	schema     *schema.Schema
	collection *schema.Collection
	id         int64
	fields     map[string]any
}

// NewValues returns a reader over fields of a stored or embedded collection.
func NewValues(s *schema.Schema, c *schema.Collection, id int64, fields map[string]any) *Values {
	return &Values{schema: s, collection: c, id: id, fields: fields}
}

func (v *Values) IDName() string { return v.collection.Identity() }

func (v *Values) Properties() []schema.Property { return v.collection.Properties }

func (v *Values) ReadID() int64 { return v.id }

func (v *Values) value(index int) (schema.Property, any) {
	p, ok := v.collection.Property(index)
	if !ok {
		return p, nil
	}
	return p, v.fields[p.Name]
}

func (v *Values) IsNull(index int) bool {
	_, value := v.value(index)
	return isNullValue(value)
}

func (v *Values) ReadBool(index int) (bool, bool) {
	_, value := v.value(index)
	return boolValue(value)
}

func (v *Values) ReadByte(index int) byte {
	_, value := v.value(index)
	return byte(intValue(value, 0))
}

func (v *Values) ReadInt(index int) int32 {
	_, value := v.value(index)
	return int32(intValue(value, int64(NullInt)))
}

func (v *Values) ReadLong(index int) int64 {
	_, value := v.value(index)
	return intValue(value, NullLong)
}

func (v *Values) ReadFloat(index int) float32 {
	_, value := v.value(index)
	return float32(floatValue(value))
}

func (v *Values) ReadDouble(index int) float64 {
	_, value := v.value(index)
	return floatValue(value)
}

func (v *Values) ReadString(index int) (string, bool) {
	_, value := v.value(index)
	s, ok := value.(string)
	return s, ok
}

func (v *Values) ReadObject(index int) (Reader, bool) {
	p, value := v.value(index)
	fields, ok := value.(map[string]any)
	if !ok || p.Type != schema.Object {
		return nil, false
	}
	target, ok := v.schema.Collection(p.Target)
	if !ok {
		return nil, false
	}
	return NewValues(v.schema, target, 0, fields), true
}

func (v *Values) ReadList(index int) (Reader, int, bool) {
	p, value := v.value(index)
	items, ok := value.([]any)
	if !ok || !p.Type.IsList() {
		return nil, 0, false
	}
	list := &valueList{schema: v.schema, items: items}
	if p.Type == schema.ObjectList {
		list.target, _ = v.schema.Collection(p.Target)
	}
	return list, len(items), true
}

// valueList reads list elements by position.
type valueList struct {
	schema *schema.Schema
	target *schema.Collection
	items  []any
}

func (l *valueList) IDName() string { return "" }

func (l *valueList) Properties() []schema.Property { return nil }

func (l *valueList) ReadID() int64 { return NullLong }

func (l *valueList) item(index int) any {
	if index < 0 || index >= len(l.items) {
		return nil
	}
	return l.items[index]
}

func (l *valueList) IsNull(index int) bool { return isNullValue(l.item(index)) }

func (l *valueList) ReadBool(index int) (bool, bool) { return boolValue(l.item(index)) }

func (l *valueList) ReadByte(index int) byte { return byte(intValue(l.item(index), 0)) }

func (l *valueList) ReadInt(index int) int32 {
	return int32(intValue(l.item(index), int64(NullInt)))
}

func (l *valueList) ReadLong(index int) int64 { return intValue(l.item(index), NullLong) }

func (l *valueList) ReadFloat(index int) float32 { return float32(floatValue(l.item(index))) }

func (l *valueList) ReadDouble(index int) float64 { return floatValue(l.item(index)) }

func (l *valueList) ReadString(index int) (string, bool) {
	s, ok := l.item(index).(string)
	return s, ok
}

func (l *valueList) ReadObject(index int) (Reader, bool) {
	fields, ok := l.item(index).(map[string]any)
	if !ok || l.target == nil {
		return nil, false
	}
	return NewValues(l.schema, l.target, 0, fields), true
}

func (l *valueList) ReadList(int) (Reader, int, bool) { return nil, 0, false }

func isNullValue(value any) bool {
	switch actual := value.(type) {
	case nil:
		return true
	case int32:
		return IsNullInt(actual)
	case int64:
		return IsNullLong(actual)
	case float32:
		return IsNullFloat(actual)
	case float64:
		return IsNullDouble(actual)
	}
	return false
}

func boolValue(value any) (bool, bool) {
	switch actual := value.(type) {
	case bool:
		return actual, true
	case int64:
		return actual != 0, true
	}
	return false, false
}

func intValue(value any, null int64) int64 {
	switch actual := value.(type) {
	case uint8:
		return int64(actual)
	case int32:
		return int64(actual)
	case int64:
		return actual
	case int:
		return int64(actual)
	case float64:
		return int64(actual)
	}
	return null
}

func floatValue(value any) float64 {
	switch actual := value.(type) {
	case float32:
		return float64(actual)
	case float64:
		return actual
	case int32:
		return float64(actual)
	case int64:
		return float64(actual)
	}
	return math.NaN()
}
