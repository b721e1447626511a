package record

import (
	"github.com/goccy/go-json"
	"github.com/viant/watchdb/schema"
)

// ToMap decodes r into plain Go values keyed by field name. Absent values
// are nil; Json properties are decoded.
func ToMap(r Reader) map[string]any {
	out := decode(r, true)
	if name := r.IDName(); name != "" {
		out[name] = r.ReadID()
	}
	return out
}

// Fields decodes the properties of r into their coerced representation
// (see schema.Coerce), keeping Json properties as text.
func Fields(r Reader) map[string]any {
	return decode(r, false)
}

func decode(r Reader, decodeJSON bool) map[string]any {
	out := make(map[string]any, len(r.Properties())+1)
	for i, p := range r.Properties() {
		if v := readAny(r, i+1, p.Type, decodeJSON); v != nil {
			out[p.Name] = v
		}
	}
	return out
}

func readAny(r Reader, index int, t schema.DataType, decodeJSON bool) any {
	if t.IsList() {
		list, n, ok := r.ReadList(index)
		if !ok {
			return nil
		}
		items := make([]any, n)
		for j := range items {
			items[j] = readAny(list, j, t.Elem(), decodeJSON)
		}
		return items
	}
	switch t {
	case schema.Bool:
		if v, ok := r.ReadBool(index); ok {
			return v
		}
	case schema.Byte:
		if !r.IsNull(index) {
			return r.ReadByte(index)
		}
	case schema.Int:
		if v := r.ReadInt(index); !IsNullInt(v) {
			return v
		}
	case schema.Long:
		if v := r.ReadLong(index); !IsNullLong(v) {
			return v
		}
	case schema.Float:
		if v := r.ReadFloat(index); !IsNullFloat(v) {
			return v
		}
	case schema.Double:
		if v := r.ReadDouble(index); !IsNullDouble(v) {
			return v
		}
	case schema.String:
		if v, ok := r.ReadString(index); ok {
			return v
		}
	case schema.Json:
		if v, ok := r.ReadString(index); ok {
			if !decodeJSON {
				return v
			}
			var decoded any
			if err := json.Unmarshal([]byte(v), &decoded); err == nil {
				return decoded
			}
			return v
		}
	case schema.Object:
		if obj, ok := r.ReadObject(index); ok {
			return decode(obj, decodeJSON)
		}
	}
	return nil
}
