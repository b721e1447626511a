package schema

import (
	"github.com/pkg/errors"
)

// DefaultIDName is the identity field name used when a collection does not set one.
const DefaultIDName = "id"

// ReservedColumn is the SQL column holding the identity; properties may not use it.
const ReservedColumn = "_id"

// Property is a single typed field of a collection.
type Property struct {
	Name   string   `yaml:"name" json:"name"`
	Type   DataType `yaml:"type" json:"type"`
	Target string   `yaml:"target,omitempty" json:"target,omitempty"`
}

// Collection is a named set of properties. Embedded collections have no
// identity and no storage of their own; they only describe nested objects.
type Collection struct {
	Name       string     `yaml:"name" json:"name"`
	IDName     string     `yaml:"idName,omitempty" json:"idName,omitempty"`
	KeyField   string     `yaml:"keyField,omitempty" json:"keyField,omitempty"`
	Embedded   bool       `yaml:"embedded,omitempty" json:"embedded,omitempty"`
	Properties []Property `yaml:"properties" json:"properties"`
}

// Identity returns the identity field name, or "" for embedded collections.
func (c *Collection) Identity() string {
	if c.Embedded {
		return ""
	}
	if c.IDName == "" {
		return DefaultIDName
	}
	return c.IDName
}

// PropertyIndex returns the read index of the named property (1-based), or -1.
func (c *Collection) PropertyIndex(name string) int {
	for i, p := range c.Properties {
		if p.Name == name {
			return i + 1
		}
	}
	return -1
}

// Property returns the property read at index (1-based).
func (c *Collection) Property(index int) (Property, bool) {
	if index < 1 || index > len(c.Properties) {
		return Property{}, false
	}
	return c.Properties[index-1], true
}

// Schema is the set of collections of one instance.
type Schema struct {
	Collections []*Collection
	byName      map[string]*Collection
}

// New builds a schema and validates it.
func New(collections ...*Collection) (*Schema, error) {
	s := &Schema{Collections: collections}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Collection returns the named collection.
func (s *Schema) Collection(name string) (*Collection, bool) {
	if s.byName == nil {
		for _, c := range s.Collections {
			if c.Name == name {
				return c, true
			}
		}
		return nil, false
	}
	c, ok := s.byName[name]
	return c, ok
}

// Stored returns the collections that own storage, in declaration order.
func (s *Schema) Stored() []*Collection {
	var out []*Collection
	for _, c := range s.Collections {
		if !c.Embedded {
			out = append(out, c)
		}
	}
	return out
}

func (s *Schema) index() {
	s.byName = make(map[string]*Collection, len(s.Collections))
	for _, c := range s.Collections {
		s.byName[c.Name] = c
	}
}

// Validate rejects structurally inconsistent schemas.
func (s *Schema) Validate() error {
	seen := make(map[string]bool, len(s.Collections))
	for _, c := range s.Collections {
		if c == nil || c.Name == "" {
			return errors.New("schema: collection name is empty")
		}
		if seen[c.Name] {
			return errors.Errorf("schema: duplicate collection %q", c.Name)
		}
		seen[c.Name] = true
	}
	s.index()
	for _, c := range s.Collections {
		if err := s.validateCollection(c); err != nil {
			return errors.WithMessagef(err, "schema: collection %q", c.Name)
		}
	}
	return nil
}

func (s *Schema) validateCollection(c *Collection) error {
	props := make(map[string]bool, len(c.Properties))
	for _, p := range c.Properties {
		switch {
		case p.Name == "":
			return errors.New("property name is empty")
		case p.Name == ReservedColumn || p.Name == c.Identity():
			return errors.Errorf("property %q collides with the identity", p.Name)
		case props[p.Name]:
			return errors.Errorf("duplicate property %q", p.Name)
		case p.Type < Bool || p.Type > ObjectList:
			return errors.Errorf("property %q has invalid type %d", p.Name, p.Type)
		}
		props[p.Name] = true
		if !p.Type.IsObject() {
			if p.Target != "" {
				return errors.Errorf("property %q of type %v cannot have a target", p.Name, p.Type)
			}
			continue
		}
		target, ok := s.byName[p.Target]
		if !ok {
			return errors.Errorf("property %q targets unknown collection %q", p.Name, p.Target)
		}
		if !target.Embedded {
			return errors.Errorf("property %q targets %q which is not embedded", p.Name, p.Target)
		}
	}
	if c.KeyField != "" {
		if idx := c.PropertyIndex(c.KeyField); idx < 0 {
			return errors.Errorf("key field %q is not a property", c.KeyField)
		}
	}
	return nil
}
