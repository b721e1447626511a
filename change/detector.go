package change

import (
	"github.com/pkg/errors"
)

// EmbeddedField is the field name carrying the embedded value envelope.
const EmbeddedField = "value"

// field is one named value of a state, already rendered as text.
type field struct {
	name    string
	value   string
	present bool
	// envelope is set when value may hold an embedded value envelope.
	envelope bool
}

func (f field) processed() string {
	if f.envelope && f.name == EmbeddedField {
		return UnwrapEmbedded(f.value)
	}
	return f.value
}

// state is one side of a comparison; nil means the object does not exist.
type state struct {
	fields   []field
	key      string
	document func() (string, error)
}

func detect(collection string, id int64, before, after *state) *Detail {
	var detail *Detail
	switch {
	case before == nil && after == nil:
		return nil
	case before == nil:
		detail = &Detail{Type: Insert, Key: after.key, Fields: present(after, false)}
		detail.FullDocument = fullDocument(collection, id, after)
	case after == nil:
		detail = &Detail{Type: Delete, Key: before.key, Fields: present(before, true)}
		detail.FullDocument = fullDocument(collection, id, before)
	default:
		fields := compare(before, after)
		if len(fields) == 0 {
			return nil
		}
		detail = &Detail{Type: Update, Key: after.key, Fields: fields}
		detail.FullDocument = fullDocument(collection, id, after)
	}
	detail.Collection = collection
	detail.ObjectID = id
	return detail
}

// present lists every present field, as the old value when removed is set.
func present(s *state, removed bool) []FieldChange {
	out := make([]FieldChange, 0, len(s.fields))
	for _, f := range s.fields {
		if !f.present {
			continue
		}
		value := f.processed()
		change := FieldChange{Field: f.name}
		if removed {
			change.Old = &value
		} else {
			change.New = &value
		}
		out = append(out, change)
	}
	return out
}

// compare walks the union of field names, after's order first.
func compare(before, after *state) []FieldChange {
	old := make(map[string]field, len(before.fields))
	for _, f := range before.fields {
		old[f.name] = f
	}
	var out []FieldChange
	seen := make(map[string]bool, len(after.fields))
	for _, f := range after.fields {
		seen[f.name] = true
		if change, ok := diffField(f.name, old[f.name], f); ok {
			out = append(out, change)
		}
	}
	for _, f := range before.fields {
		if seen[f.name] {
			continue
		}
		if change, ok := diffField(f.name, f, field{}); ok {
			out = append(out, change)
		}
	}
	return out
}

func diffField(name string, before, after field) (FieldChange, bool) {
	change := FieldChange{Field: name}
	if before.present {
		v := before.processed()
		change.Old = &v
	}
	if after.present {
		v := after.processed()
		change.New = &v
	}
	switch {
	case change.Old == nil && change.New == nil:
		return change, false
	case change.Old != nil && change.New != nil && *change.Old == *change.New:
		return change, false
	}
	return change, true
}

func fullDocument(collection string, id int64, s *state) string {
	doc, err := s.document()
	if err != nil {
		violated(collection, id, err)
	}
	if doc == "" {
		violated(collection, id, errors.New("empty document"))
	}
	return doc
}

// Minimal returns the detail recorded when only the object id of a mutation
// is known. It is always labelled Update and carries no field changes.
func Minimal(collection string, id int64, idName string) Detail {
	if idName == "" {
		idName = "id"
	}
	return Detail{
		Type:         Update,
		Collection:   collection,
		ObjectID:     id,
		Fields:       []FieldChange{},
		FullDocument: minimalDocument(idName, id),
	}
}
