package change

import (
	"fmt"

	"github.com/pkg/errors"
)

// Type is the kind of mutation.
type Type int

const (
	Insert Type = iota
	Update
	Delete
)

func (t Type) String() string {
	switch t {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return "unknown"
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(text []byte) error {
	switch string(text) {
	case "insert":
		*t = Insert
	case "update":
		*t = Update
	case "delete":
		*t = Delete
	default:
		return errors.Errorf("change: unknown type %q", text)
	}
	return nil
}

// FieldChange is one field's before and after value. Old is nil for inserts
// and New is nil for deletes.
type FieldChange struct {
	Field string  `json:"field"`
	Old   *string `json:"old,omitempty"`
	New   *string `json:"new,omitempty"`
}

// Detail describes one mutated object.
type Detail struct {
	Type         Type          `json:"type"`
	Collection   string        `json:"collection"`
	ObjectID     int64         `json:"objectId"`
	Key          string        `json:"key"`
	Fields       []FieldChange `json:"fields"`
	FullDocument string        `json:"fullDocument"`
}

// Field returns the change recorded for name.
func (d *Detail) Field(name string) (FieldChange, bool) {
	for _, f := range d.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldChange{}, false
}

// InvariantError is the panic value raised when a state cannot be
// serialised. Write operations recover it and abort the transaction.
type InvariantError struct {
	Collection string
	ObjectID   int64
	Err        error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("change: %s/%d: %v", e.Collection, e.ObjectID, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

func violated(collection string, id int64, err error) {
	panic(&InvariantError{Collection: collection, ObjectID: id, Err: err})
}
