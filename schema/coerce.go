package schema

import (
	"bytes"
	"math"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ErrInvalidValue reports a value that does not fit its property type.
var ErrInvalidValue = errors.New("invalid value")

// Coerce normalises v to the Go representation of p's type:
// bool, uint8, int32, int64, float32, float64, string, JSON text (string) for
// Json, map[string]any for Object and []any for lists. nil is null.
//
// A string given to a Json property that is valid JSON is taken as JSON text;
// any other string is stored as a JSON string literal.
func (s *Schema) Coerce(p Property, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if p.Type.IsList() {
		return s.coerceList(p, v)
	}
	return s.coerceScalar(p, p.Type, v)
}

// CoerceObject normalises the fields of an embedded or stored object. Unknown
// fields are rejected.
func (s *Schema) CoerceObject(c *Collection, fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for name, v := range fields {
		idx := c.PropertyIndex(name)
		if idx < 0 {
			return nil, errors.Wrapf(ErrInvalidValue, "%s: unknown property %q", c.Name, name)
		}
		prop, _ := c.Property(idx)
		coerced, err := s.Coerce(prop, v)
		if err != nil {
			return nil, err
		}
		out[name] = coerced
	}
	return out, nil
}

func (s *Schema) coerceList(p Property, v any) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.Wrapf(ErrInvalidValue, "%s: expected list, got %T", p.Name, v)
	}
	elem := p.Type.Elem()
	out := make([]any, rv.Len())
	for i := range out {
		item := rv.Index(i).Interface()
		if item == nil {
			continue
		}
		coerced, err := s.coerceScalar(p, elem, item)
		if err != nil {
			return nil, err
		}
		out[i] = coerced
	}
	return out, nil
}

func (s *Schema) coerceScalar(p Property, t DataType, v any) (any, error) {
	switch t {
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Byte:
		if n, ok := asInt(v); ok && n >= 0 && n <= math.MaxUint8 {
			return uint8(n), nil
		}
	case Int:
		if n, ok := asInt(v); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return int32(n), nil
		}
	case Long:
		if n, ok := asInt(v); ok {
			return n, nil
		}
	case Float:
		if f, ok := asFloat(v); ok {
			return float32(f), nil
		}
	case Double:
		if f, ok := asFloat(v); ok {
			return f, nil
		}
	case String:
		if str, ok := v.(string); ok {
			return str, nil
		}
	case Json:
		return coerceJSON(p, v)
	case Object:
		fields, ok := v.(map[string]any)
		if !ok {
			break
		}
		target, found := s.Collection(p.Target)
		if !found {
			return nil, errors.Wrapf(ErrInvalidValue, "%s: unknown target %q", p.Name, p.Target)
		}
		return s.CoerceObject(target, fields)
	}
	return nil, errors.Wrapf(ErrInvalidValue, "%s: %T is not a %v", p.Name, v, t)
}

func coerceJSON(p Property, v any) (any, error) {
	var raw []byte
	switch actual := v.(type) {
	case json.RawMessage:
		raw = actual
	case []byte:
		raw = actual
	case string:
		if json.Valid([]byte(actual)) {
			raw = []byte(actual)
		}
	}
	if raw != nil {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, errors.Wrapf(ErrInvalidValue, "%s: invalid JSON", p.Name)
		}
		return buf.String(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "%s: %v", p.Name, err)
	}
	return string(data), nil
}

type int64er interface{ Int64() (int64, error) }

func asInt(v any) (int64, bool) {
	if n, ok := v.(int64er); ok {
		i, err := n.Int64()
		return i, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

type float64er interface{ Float64() (float64, error) }

func asFloat(v any) (float64, bool) {
	if n, ok := v.(float64er); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}
