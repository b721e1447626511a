package schema

import (
	"strings"

	"github.com/pkg/errors"
)

// DataType is the logical type of a property.
type DataType int

const (
	Bool DataType = iota
	Byte
	Int
	Float
	Long
	Double
	String
	Object
	Json
	BoolList
	ByteList
	IntList
	FloatList
	LongList
	DoubleList
	StringList
	ObjectList
)

var typeNames = []string{
	Bool:       "Bool",
	Byte:       "Byte",
	Int:        "Int",
	Float:      "Float",
	Long:       "Long",
	Double:     "Double",
	String:     "String",
	Object:     "Object",
	Json:       "Json",
	BoolList:   "BoolList",
	ByteList:   "ByteList",
	IntList:    "IntList",
	FloatList:  "FloatList",
	LongList:   "LongList",
	DoubleList: "DoubleList",
	StringList: "StringList",
	ObjectList: "ObjectList",
}

func (t DataType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "Unknown"
	}
	return typeNames[t]
}

// IsList reports whether t is one of the list types.
func (t DataType) IsList() bool { return t >= BoolList && t <= ObjectList }

// Elem returns the element type of a list type, or t itself otherwise.
func (t DataType) Elem() DataType {
	switch t {
	case BoolList:
		return Bool
	case ByteList:
		return Byte
	case IntList:
		return Int
	case FloatList:
		return Float
	case LongList:
		return Long
	case DoubleList:
		return Double
	case StringList:
		return String
	case ObjectList:
		return Object
	}
	return t
}

// IsObject reports whether values of t reference an embedded collection.
func (t DataType) IsObject() bool { return t == Object || t == ObjectList }

// ParseDataType resolves a type name, case-insensitively.
func ParseDataType(name string) (DataType, error) {
	for i, candidate := range typeNames {
		if strings.EqualFold(candidate, name) {
			return DataType(i), nil
		}
	}
	return 0, errors.Errorf("schema: unknown data type %q", name)
}

func (t DataType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
