package record

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/viant/watchdb/schema"
)

// MarshalJSON serialises r as a JSON object in declaration order: the
// identity first (when the reader has one), then every property. Absent and
// sentinel values are written as null; Json properties are embedded as parsed
// JSON and must hold valid JSON text.
func MarshalJSON(r Reader) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeObject(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeObject(buf *bytes.Buffer, r Reader) error {
	buf.WriteByte('{')
	first := true
	key := func(field string) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		quoted, _ := json.Marshal(field)
		buf.Write(quoted)
		buf.WriteByte(':')
	}
	if name := r.IDName(); name != "" {
		key(name)
		buf.WriteString(strconv.FormatInt(r.ReadID(), 10))
	}
	for i, p := range r.Properties() {
		key(p.Name)
		if err := writeValue(buf, r, i+1, p.Type); err != nil {
			return errors.WithMessagef(err, "property %q", p.Name)
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeValue(buf *bytes.Buffer, r Reader, index int, t schema.DataType) error {
	if t.IsList() {
		list, n, ok := r.ReadList(index)
		if !ok {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('[')
		for j := 0; j < n; j++ {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, list, j, t.Elem()); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}
	switch t {
	case schema.Bool:
		v, ok := r.ReadBool(index)
		if !ok {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.FormatBool(v))
	case schema.Byte:
		if r.IsNull(index) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.Itoa(int(r.ReadByte(index))))
	case schema.Int:
		v := r.ReadInt(index)
		if IsNullInt(v) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case schema.Long:
		v := r.ReadLong(index)
		if IsNullLong(v) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.FormatInt(v, 10))
	case schema.Float:
		v := r.ReadFloat(index)
		if IsNullFloat(v) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(FormatFloat(float64(v), 32))
	case schema.Double:
		v := r.ReadDouble(index)
		if IsNullDouble(v) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(FormatFloat(v, 64))
	case schema.String:
		v, ok := r.ReadString(index)
		if !ok {
			buf.WriteString("null")
			return nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(data)
	case schema.Json:
		v, ok := r.ReadString(index)
		if !ok {
			buf.WriteString("null")
			return nil
		}
		var scratch bytes.Buffer
		if err := json.Compact(&scratch, []byte(v)); err != nil {
			return errors.Wrap(err, "invalid JSON value")
		}
		buf.Write(scratch.Bytes())
	case schema.Object:
		obj, ok := r.ReadObject(index)
		if !ok {
			buf.WriteString("null")
			return nil
		}
		return writeObject(buf, obj)
	default:
		return errors.Errorf("unsupported type %v", t)
	}
	return nil
}

// FormatFloat renders a finite float as the shortest decimal that round-trips.
func FormatFloat(v float64, bitSize int) string {
	return strconv.FormatFloat(v, 'f', -1, bitSize)
}
