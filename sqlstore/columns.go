package sqlstore

import (
	"bytes"
	"math"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
)

// columnType returns the SQLite column type of t.
func columnType(t schema.DataType) string {
	switch t {
	case schema.Bool, schema.Byte, schema.Int, schema.Long:
		return "INTEGER"
	case schema.Float, schema.Double:
		return "REAL"
	}
	return "TEXT"
}

// toColumn converts a coerced value into a statement argument. Null
// sentinels become NULL.
func toColumn(s *schema.Schema, p schema.Property, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if p.Type.IsList() || p.Type == schema.Object {
		data, err := json.Marshal(jsonValue(s, p, v))
		if err != nil {
			return nil, errors.Wrapf(err, "sqlstore: failed to encode %s", p.Name)
		}
		return string(data), nil
	}
	switch actual := v.(type) {
	case bool:
		if actual {
			return int64(1), nil
		}
		return int64(0), nil
	case uint8:
		return int64(actual), nil
	case int32:
		if record.IsNullInt(actual) {
			return nil, nil
		}
		return int64(actual), nil
	case int64:
		if record.IsNullLong(actual) {
			return nil, nil
		}
		return actual, nil
	case float32:
		if record.IsNullFloat(actual) {
			return nil, nil
		}
		return float64(actual), nil
	case float64:
		if record.IsNullDouble(actual) {
			return nil, nil
		}
		return actual, nil
	}
	return v, nil
}

// jsonValue prepares a coerced value for JSON text: Json members are
// embedded verbatim and null sentinels become null.
func jsonValue(s *schema.Schema, p schema.Property, v any) any {
	if v == nil {
		return nil
	}
	switch p.Type {
	case schema.Json:
		if text, ok := v.(string); ok {
			return json.RawMessage(text)
		}
	case schema.Object:
		fields, ok := v.(map[string]any)
		target, found := s.Collection(p.Target)
		if !ok || !found {
			return v
		}
		out := make(map[string]any, len(fields))
		for _, prop := range target.Properties {
			if value, ok := fields[prop.Name]; ok {
				out[prop.Name] = jsonValue(s, prop, value)
			}
		}
		return out
	}
	if p.Type.IsList() {
		items, ok := v.([]any)
		if !ok {
			return v
		}
		elem := schema.Property{Name: p.Name, Type: p.Type.Elem(), Target: p.Target}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = jsonValue(s, elem, item)
		}
		return out
	}
	switch actual := v.(type) {
	case int32:
		if record.IsNullInt(actual) {
			return nil
		}
	case int64:
		if record.IsNullLong(actual) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(actual)) || math.IsInf(float64(actual), 0) {
			return nil
		}
	case float64:
		if math.IsNaN(actual) || math.IsInf(actual, 0) {
			return nil
		}
	}
	return v
}

// fromColumn converts a scanned column into the coerced representation.
func fromColumn(s *schema.Schema, p schema.Property, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if data, ok := raw.([]byte); ok {
		raw = string(data)
	}
	switch p.Type {
	case schema.Json:
		if text, ok := raw.(string); ok {
			return text, nil
		}
	case schema.Object:
		text, ok := raw.(string)
		target, found := s.Collection(p.Target)
		if !ok || !found {
			break
		}
		return decodeObject(s, target, []byte(text))
	case schema.Bool:
		if n, ok := raw.(int64); ok {
			return n != 0, nil
		}
	}
	if p.Type.IsList() {
		text, ok := raw.(string)
		if !ok {
			return nil, errors.Wrapf(schema.ErrInvalidValue, "%s: %T is not a list", p.Name, raw)
		}
		return decodeList(s, p, []byte(text))
	}
	return s.Coerce(p, raw)
}

func decodeObject(s *schema.Schema, c *schema.Collection, data []byte) (map[string]any, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, errors.Wrapf(schema.ErrInvalidValue, "%s: %v", c.Name, err)
	}
	out := make(map[string]any, len(members))
	for name, member := range members {
		index := c.PropertyIndex(name)
		if index < 0 || isJSONNull(member) {
			continue
		}
		p, _ := c.Property(index)
		value, err := decodeMember(s, p, member)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

func decodeList(s *schema.Schema, p schema.Property, data []byte) ([]any, error) {
	var members []json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, errors.Wrapf(schema.ErrInvalidValue, "%s: %v", p.Name, err)
	}
	elem := schema.Property{Name: p.Name, Type: p.Type.Elem(), Target: p.Target}
	out := make([]any, len(members))
	for i, member := range members {
		if isJSONNull(member) {
			continue
		}
		value, err := decodeMember(s, elem, member)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}

func decodeMember(s *schema.Schema, p schema.Property, member json.RawMessage) (any, error) {
	switch {
	case p.Type == schema.Json:
		var buf bytes.Buffer
		if err := json.Compact(&buf, member); err != nil {
			return nil, errors.Wrapf(schema.ErrInvalidValue, "%s: invalid JSON", p.Name)
		}
		return buf.String(), nil
	case p.Type == schema.Object:
		target, ok := s.Collection(p.Target)
		if !ok {
			return nil, errors.Wrapf(schema.ErrInvalidValue, "%s: unknown target %q", p.Name, p.Target)
		}
		return decodeObject(s, target, member)
	case p.Type.IsList():
		return decodeList(s, p, member)
	}
	decoder := json.NewDecoder(bytes.NewReader(member))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, errors.Wrapf(schema.ErrInvalidValue, "%s: %v", p.Name, err)
	}
	return s.Coerce(p, value)
}

func isJSONNull(data json.RawMessage) bool {
	return string(bytes.TrimSpace(data)) == "null"
}
