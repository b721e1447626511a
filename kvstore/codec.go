package kvstore

import (
	"encoding/binary"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
)

func idKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func keyID(key []byte) int64 { return int64(binary.BigEndian.Uint64(key)) }

// encode serialises coerced fields of c.
func encode(s *schema.Schema, c *schema.Collection, id int64, fields map[string]any) ([]byte, error) {
	slots, err := encodeObject(s, c, fields)
	if err != nil {
		return nil, err
	}
	slots[0] = id
	data, err := cbor.Marshal(slots)
	if err != nil {
		return nil, errors.Wrapf(err, "kvstore: failed to encode %s/%d", c.Name, id)
	}
	return data, nil
}

func encodeObject(s *schema.Schema, c *schema.Collection, fields map[string]any) ([]any, error) {
	slots := make([]any, len(c.Properties)+1)
	for i, p := range c.Properties {
		value, err := encodeValue(s, p, p.Type, fields[p.Name])
		if err != nil {
			return nil, err
		}
		slots[i+1] = value
	}
	return slots, nil
}

func encodeValue(s *schema.Schema, p schema.Property, t schema.DataType, v any) (any, error) {
	if t.IsList() {
		if v == nil {
			return nil, nil
		}
		items, ok := v.([]any)
		if !ok {
			return nil, errors.Errorf("kvstore: %s: expected list, got %T", p.Name, v)
		}
		out := make([]any, len(items))
		for i, item := range items {
			value, err := encodeValue(s, p, t.Elem(), item)
			if err != nil {
				return nil, err
			}
			out[i] = value
		}
		return out, nil
	}
	switch t {
	case schema.Int:
		if v == nil {
			return record.NullInt, nil
		}
	case schema.Long:
		if v == nil {
			return record.NullLong, nil
		}
	case schema.Float:
		if v == nil {
			return float32(math.NaN()), nil
		}
	case schema.Double:
		if v == nil {
			return math.NaN(), nil
		}
	case schema.Object:
		if v == nil {
			return nil, nil
		}
		fields, ok := v.(map[string]any)
		if !ok {
			return nil, errors.Errorf("kvstore: %s: expected object, got %T", p.Name, v)
		}
		target, ok := s.Collection(p.Target)
		if !ok {
			return nil, errors.Errorf("kvstore: %s: unknown target %q", p.Name, p.Target)
		}
		return encodeObject(s, target, fields)
	}
	return v, nil
}

// decode returns a lazy reader over an encoded object.
func decode(s *schema.Schema, c *schema.Collection, data []byte) (*binaryReader, error) {
	var slots []cbor.RawMessage
	if err := cbor.Unmarshal(data, &slots); err != nil {
		return nil, errors.Wrapf(err, "kvstore: corrupt %s record", c.Name)
	}
	return &binaryReader{schema: s, collection: c, slots: slots}, nil
}

func isNull(raw cbor.RawMessage) bool {
	// 0xf6 is CBOR null and 0xf7 undefined.
	return len(raw) == 0 || raw[0] == 0xf6 || raw[0] == 0xf7
}

func decodeInt(raw cbor.RawMessage, null int64) int64 {
	if isNull(raw) {
		return null
	}
	var v int64
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return null
	}
	return v
}

func decodeFloat(raw cbor.RawMessage) float64 {
	if isNull(raw) {
		return math.NaN()
	}
	var v float64
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return math.NaN()
	}
	return v
}

func decodeBool(raw cbor.RawMessage) (bool, bool) {
	if isNull(raw) {
		return false, false
	}
	var v bool
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return false, false
	}
	return v, true
}

func decodeString(raw cbor.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var v string
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

func decodeArray(raw cbor.RawMessage) ([]cbor.RawMessage, bool) {
	if isNull(raw) {
		return nil, false
	}
	var items []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}
