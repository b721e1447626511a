package change

import (
	"bytes"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
)

// JSONOptions configures DetectJSON.
type JSONOptions struct {
	// IDName is the identity key, excluded from field changes.
	IDName string
	Key    record.KeyRule
	// Properties, when set, type the document keys: list properties are
	// reported as "[<Type>:<n>]" and Json properties as JSON text.
	Properties []schema.Property
}

func (o JSONOptions) propertyType(name string) (schema.DataType, bool) {
	for _, p := range o.Properties {
		if p.Name == name {
			return p.Type, true
		}
	}
	return 0, false
}

// DetectJSON compares two JSON object states of one object. A nil document
// means the object did not exist on that side. Keys are compared in document
// order; JSON nulls count as absent. Documents that are not valid JSON, are
// null or are empty objects panic with *InvariantError once a detail needs
// their full document.
func DetectJSON(collection string, id int64, before, after []byte, opts JSONOptions) *Detail {
	return detect(collection, id, jsonState(collection, id, before, opts), jsonState(collection, id, after, opts))
}

func jsonState(collection string, id int64, doc []byte, opts JSONOptions) *state {
	if doc == nil {
		return nil
	}
	value, dataType, _, err := jsonparser.Get(doc)
	if err != nil || !json.Valid(doc) {
		violated(collection, id, errors.Errorf("invalid JSON document: %s", truncate(doc)))
	}
	s := &state{
		key:      opts.Key.FromJSON(doc),
		document: func() (string, error) { return cleanDocument(value, dataType) },
	}
	if dataType != jsonparser.Object {
		return s
	}
	err = jsonparser.ObjectEach(value, func(k, v []byte, dt jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(k)
		if err != nil {
			return err
		}
		if name == opts.IDName || dt == jsonparser.Null {
			return nil
		}
		f := field{name: name, present: true}
		t, typed := opts.propertyType(name)
		switch {
		case typed && t.IsList() && dt == jsonparser.Array:
			f.value = listMarker(t, v)
		case typed && t == schema.Json:
			if dt == jsonparser.String {
				f.value = `"` + string(v) + `"`
			} else {
				f.value = compact(v)
			}
			f.envelope = true
		case dt == jsonparser.String:
			if f.value, err = jsonparser.ParseString(v); err != nil {
				return err
			}
			f.envelope = true
		case dt == jsonparser.Object:
			f.value = compact(v)
			f.envelope = true
		default:
			f.value = compact(v)
		}
		s.fields = append(s.fields, f)
		return nil
	})
	if err != nil {
		violated(collection, id, errors.Wrap(err, "failed to walk JSON document"))
	}
	return s
}

// cleanDocument re-emits an object in key order, embedding the text of a
// "value" string as parsed JSON when it is valid JSON.
func cleanDocument(value []byte, dataType jsonparser.ValueType) (string, error) {
	switch dataType {
	case jsonparser.Null:
		return "", errors.New("document is null")
	case jsonparser.Object:
	case jsonparser.String:
		return `"` + string(value) + `"`, nil
	default:
		return compact(value), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	count := 0
	err := jsonparser.ObjectEach(value, func(k, v []byte, dt jsonparser.ValueType, _ int) error {
		if count > 0 {
			buf.WriteByte(',')
		}
		count++
		buf.WriteByte('"')
		buf.Write(k)
		buf.WriteString(`":`)
		if dt != jsonparser.String {
			return appendCompact(&buf, v)
		}
		if string(k) == EmbeddedField {
			if text, err := jsonparser.ParseString(v); err == nil && json.Valid([]byte(text)) {
				return appendCompact(&buf, []byte(text))
			}
		}
		buf.WriteByte('"')
		buf.Write(v)
		buf.WriteByte('"')
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to rebuild document")
	}
	if count == 0 {
		return "", errors.New("document is an empty object")
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// UnwrapEmbedded applies the embedded value convention: when raw parses as a
// JSON object with a "value" member, that member is returned (unquoted when
// it is a string, compact JSON otherwise). Any other input is returned as is.
func UnwrapEmbedded(raw string) string {
	data := []byte(raw)
	if !json.Valid(data) {
		return raw
	}
	inner, dataType, _, err := jsonparser.Get(data, EmbeddedField)
	if err != nil {
		return raw
	}
	if dataType == jsonparser.String {
		text, err := jsonparser.ParseString(inner)
		if err != nil {
			return raw
		}
		return text
	}
	return compact(inner)
}

func listMarker(t schema.DataType, array []byte) string {
	n := 0
	_, _ = jsonparser.ArrayEach(array, func([]byte, jsonparser.ValueType, int, error) { n++ })
	return "[" + t.String() + ":" + strconv.Itoa(n) + "]"
}

// appendCompact appends the compact form of data to buf. json.Compact must be
// given an empty destination.
func appendCompact(buf *bytes.Buffer, data []byte) error {
	var scratch bytes.Buffer
	if err := json.Compact(&scratch, data); err != nil {
		return err
	}
	buf.Write(scratch.Bytes())
	return nil
}

func compact(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}

func minimalDocument(idName string, id int64) string {
	name, _ := json.Marshal(idName)
	return "{" + string(name) + ":" + strconv.FormatInt(id, 10) + "}"
}

func truncate(doc []byte) string {
	const limit = 64
	if len(doc) > limit {
		return string(doc[:limit]) + "..."
	}
	return string(doc)
}
