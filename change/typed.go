package change

import (
	"strconv"

	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
)

// Detect compares two typed states of one object. A nil reader means the
// object did not exist on that side. It returns nil when nothing changed.
// A state that cannot be serialised panics with *InvariantError.
func Detect(collection string, id int64, before, after record.Reader, key record.KeyRule) *Detail {
	return detect(collection, id, readerState(before, key), readerState(after, key))
}

func readerState(r record.Reader, key record.KeyRule) *state {
	if r == nil {
		return nil
	}
	props := r.Properties()
	s := &state{
		fields: make([]field, 0, len(props)),
		key:    key.FromReader(r),
		document: func() (string, error) {
			data, err := record.MarshalJSON(r)
			return string(data), err
		},
	}
	for i, p := range props {
		value, ok := readField(r, i+1, p.Type)
		s.fields = append(s.fields, field{name: p.Name, value: value, present: ok, envelope: true})
	}
	return s
}

// readField renders one property as text; false means the value is absent.
func readField(r record.Reader, index int, t schema.DataType) (string, bool) {
	if t.IsList() {
		_, n, ok := r.ReadList(index)
		if !ok {
			return "", false
		}
		return "[" + t.String() + ":" + strconv.Itoa(n) + "]", true
	}
	switch t {
	case schema.Bool:
		v, ok := r.ReadBool(index)
		if !ok {
			return "", false
		}
		return strconv.FormatBool(v), true
	case schema.Byte:
		if r.IsNull(index) {
			return "", false
		}
		return strconv.Itoa(int(r.ReadByte(index))), true
	case schema.Int:
		v := r.ReadInt(index)
		if record.IsNullInt(v) {
			return "", false
		}
		return strconv.FormatInt(int64(v), 10), true
	case schema.Long:
		v := r.ReadLong(index)
		if record.IsNullLong(v) {
			return "", false
		}
		return strconv.FormatInt(v, 10), true
	case schema.Float:
		v := r.ReadFloat(index)
		if record.IsNullFloat(v) {
			return "", false
		}
		return record.FormatFloat(float64(v), 32), true
	case schema.Double:
		v := r.ReadDouble(index)
		if record.IsNullDouble(v) {
			return "", false
		}
		return record.FormatFloat(v, 64), true
	case schema.String, schema.Json:
		return r.ReadString(index)
	case schema.Object:
		obj, ok := r.ReadObject(index)
		if !ok {
			return "", false
		}
		data, err := record.MarshalJSON(obj)
		if err != nil {
			return "[object]", true
		}
		return string(data), true
	}
	return "", false
}
