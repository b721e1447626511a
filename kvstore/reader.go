package kvstore

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
)

// binaryReader reads an encoded object slot by slot; slots decode on access.
type binaryReader struct {
	schema     *schema.Schema
	collection *schema.Collection
	slots      []cbor.RawMessage
}

func (r *binaryReader) slot(index int) cbor.RawMessage {
	if index < 0 || index >= len(r.slots) {
		return nil
	}
	return r.slots[index]
}

func (r *binaryReader) IDName() string { return r.collection.Identity() }

func (r *binaryReader) Properties() []schema.Property { return r.collection.Properties }

func (r *binaryReader) ReadID() int64 { return decodeInt(r.slot(0), record.NullLong) }

func (r *binaryReader) IsNull(index int) bool {
	raw := r.slot(index)
	if isNull(raw) {
		return true
	}
	p, ok := r.collection.Property(index)
	if !ok {
		return true
	}
	switch p.Type {
	case schema.Int:
		return record.IsNullInt(r.ReadInt(index))
	case schema.Long:
		return record.IsNullLong(r.ReadLong(index))
	case schema.Float, schema.Double:
		return record.IsNullDouble(decodeFloat(raw))
	}
	return false
}

func (r *binaryReader) ReadBool(index int) (bool, bool) { return decodeBool(r.slot(index)) }

func (r *binaryReader) ReadByte(index int) byte { return byte(decodeInt(r.slot(index), 0)) }

func (r *binaryReader) ReadInt(index int) int32 {
	v := decodeInt(r.slot(index), int64(record.NullInt))
	if v < int64(record.NullInt) || v > 1<<31-1 {
		return record.NullInt
	}
	return int32(v)
}

func (r *binaryReader) ReadLong(index int) int64 { return decodeInt(r.slot(index), record.NullLong) }

func (r *binaryReader) ReadFloat(index int) float32 { return float32(decodeFloat(r.slot(index))) }

func (r *binaryReader) ReadDouble(index int) float64 { return decodeFloat(r.slot(index)) }

func (r *binaryReader) ReadString(index int) (string, bool) { return decodeString(r.slot(index)) }

func (r *binaryReader) ReadObject(index int) (record.Reader, bool) {
	p, ok := r.collection.Property(index)
	if !ok || p.Type != schema.Object {
		return nil, false
	}
	return r.object(p.Target, r.slot(index))
}

func (r *binaryReader) object(target string, raw cbor.RawMessage) (record.Reader, bool) {
	slots, ok := decodeArray(raw)
	if !ok {
		return nil, false
	}
	c, ok := r.schema.Collection(target)
	if !ok {
		return nil, false
	}
	return &binaryReader{schema: r.schema, collection: c, slots: slots}, true
}

func (r *binaryReader) ReadList(index int) (record.Reader, int, bool) {
	p, ok := r.collection.Property(index)
	if !ok || !p.Type.IsList() {
		return nil, 0, false
	}
	items, ok := decodeArray(r.slot(index))
	if !ok {
		return nil, 0, false
	}
	return &binaryList{owner: r, target: p.Target, elem: p.Type.Elem(), items: items}, len(items), true
}

// binaryList reads list elements by position.
type binaryList struct {
	owner  *binaryReader
	target string
	elem   schema.DataType
	items  []cbor.RawMessage
}

func (l *binaryList) item(index int) cbor.RawMessage {
	if index < 0 || index >= len(l.items) {
		return nil
	}
	return l.items[index]
}

func (l *binaryList) IDName() string { return "" }

func (l *binaryList) Properties() []schema.Property { return nil }

func (l *binaryList) ReadID() int64 { return record.NullLong }

func (l *binaryList) IsNull(index int) bool {
	raw := l.item(index)
	if isNull(raw) {
		return true
	}
	switch l.elem {
	case schema.Int:
		return record.IsNullInt(l.ReadInt(index))
	case schema.Long:
		return record.IsNullLong(l.ReadLong(index))
	case schema.Float, schema.Double:
		return record.IsNullDouble(decodeFloat(raw))
	}
	return false
}

func (l *binaryList) ReadBool(index int) (bool, bool) { return decodeBool(l.item(index)) }

func (l *binaryList) ReadByte(index int) byte { return byte(decodeInt(l.item(index), 0)) }

func (l *binaryList) ReadInt(index int) int32 {
	v := decodeInt(l.item(index), int64(record.NullInt))
	if v < int64(record.NullInt) || v > 1<<31-1 {
		return record.NullInt
	}
	return int32(v)
}

func (l *binaryList) ReadLong(index int) int64 { return decodeInt(l.item(index), record.NullLong) }

func (l *binaryList) ReadFloat(index int) float32 { return float32(decodeFloat(l.item(index))) }

func (l *binaryList) ReadDouble(index int) float64 { return decodeFloat(l.item(index)) }

func (l *binaryList) ReadString(index int) (string, bool) { return decodeString(l.item(index)) }

func (l *binaryList) ReadObject(index int) (record.Reader, bool) {
	if l.elem != schema.Object {
		return nil, false
	}
	return l.owner.object(l.target, l.item(index))
}

func (l *binaryList) ReadList(int) (record.Reader, int, bool) { return nil, 0, false }
