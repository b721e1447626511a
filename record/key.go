package record

import (
	"github.com/buger/jsonparser"
)

// KeyRule locates the user-facing key of an object. Name takes precedence
// over Position. Extraction is best effort and yields "" on any miss.
type KeyRule struct {
	Position int
	Name     string
}

// KeyAtPosition reads the key as the string at a fixed read index.
func KeyAtPosition(index int) KeyRule { return KeyRule{Position: index} }

// KeyByName reads the key from the named field.
func KeyByName(name string) KeyRule { return KeyRule{Name: name} }

// FromReader extracts the key from a typed reader.
func (k KeyRule) FromReader(r Reader) string {
	if r == nil {
		return ""
	}
	props := r.Properties()
	index := k.Position
	if k.Name != "" {
		index = -1
		for i, p := range props {
			if p.Name == k.Name {
				index = i + 1
				break
			}
		}
	}
	if index < 1 || index > len(props) {
		return ""
	}
	value, _ := r.ReadString(index)
	return value
}

// FromJSON extracts the key from a JSON object. Positional rules need a
// schema and never match a bare document.
func (k KeyRule) FromJSON(doc []byte) string {
	if k.Name == "" || len(doc) == 0 {
		return ""
	}
	value, err := jsonparser.GetString(doc, k.Name)
	if err != nil {
		return ""
	}
	return value
}
