package schema

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New(
		&Collection{Name: "frames", KeyField: "key", Properties: []Property{
			{Name: "typeId", Type: String},
			{Name: "key", Type: String},
			{Name: "value", Type: String},
			{Name: "size", Type: Int},
			{Name: "tags", Type: StringList},
			{Name: "home", Type: Object, Target: "address"},
			{Name: "meta", Type: Json},
		}},
		&Collection{Name: "address", Embedded: true, Properties: []Property{
			{Name: "city", Type: String},
			{Name: "zip", Type: Long},
		}},
	)
	require.NoError(t, err)
	return s
}

// TestValidate verifies that structurally inconsistent schemas are rejected.
func TestValidate(t *testing.T) {
	var testCases = []struct {
		description string
		collections []*Collection
		expectErr   string
	}{
		{
			description: "duplicate collection",
			collections: []*Collection{{Name: "a"}, {Name: "a"}},
			expectErr:   "duplicate collection",
		},
		{
			description: "property collides with identity",
			collections: []*Collection{{Name: "a", Properties: []Property{{Name: "id", Type: Long}}}},
			expectErr:   "collides with the identity",
		},
		{
			description: "unknown target",
			collections: []*Collection{{Name: "a", Properties: []Property{{Name: "o", Type: Object, Target: "b"}}}},
			expectErr:   "unknown collection",
		},
		{
			description: "target not embedded",
			collections: []*Collection{
				{Name: "a", Properties: []Property{{Name: "o", Type: ObjectList, Target: "b"}}},
				{Name: "b"},
			},
			expectErr: "not embedded",
		},
		{
			description: "key field missing",
			collections: []*Collection{{Name: "a", KeyField: "key"}},
			expectErr:   "key field",
		},
	}
	for _, testCase := range testCases {
		_, err := New(testCase.collections...)
		require.Error(t, err, testCase.description)
		assert.Contains(t, err.Error(), testCase.expectErr, testCase.description)
	}
}

// TestPropertyIndex verifies that property indexes start at 1, leaving 0 for the identity.
func TestPropertyIndex(t *testing.T) {
	s := testSchema(t)
	frames, ok := s.Collection("frames")
	require.True(t, ok)
	assert.Equal(t, 2, frames.PropertyIndex("key"))
	assert.Equal(t, -1, frames.PropertyIndex("missing"))
	assert.Equal(t, "id", frames.Identity())
	address, _ := s.Collection("address")
	assert.Equal(t, "", address.Identity())
	assert.Len(t, s.Stored(), 1)
}

// TestCoerce verifies normalisation of Go values to property types.
func TestCoerce(t *testing.T) {
	s := testSchema(t)
	frames, _ := s.Collection("frames")

	fields, err := s.CoerceObject(frames, map[string]any{
		"size": 12.0,
		"tags": []string{"a", "b"},
		"home": map[string]any{"city": "Oslo", "zip": 150},
		"meta": map[string]any{"x": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(12), fields["size"])
	assert.Equal(t, []any{"a", "b"}, fields["tags"])
	assert.Equal(t, map[string]any{"city": "Oslo", "zip": int64(150)}, fields["home"])
	assert.Equal(t, `{"x":1}`, fields["meta"])

	meta, _ := frames.Property(frames.PropertyIndex("meta"))
	text, err := s.Coerce(meta, `{ "a": [1, 2] }`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, text)
	text, err = s.Coerce(meta, "plain")
	require.NoError(t, err)
	assert.Equal(t, `"plain"`, text)

	_, err = s.CoerceObject(frames, map[string]any{"size": math.MaxInt64})
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = s.CoerceObject(frames, map[string]any{"nope": 1})
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = s.CoerceObject(frames, map[string]any{"size": 1.5})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

// TestParseDataType verifies case-insensitive type names.
func TestParseDataType(t *testing.T) {
	dt, err := ParseDataType("stringlist")
	require.NoError(t, err)
	assert.Equal(t, StringList, dt)
	assert.Equal(t, String, dt.Elem())
	assert.True(t, dt.IsList())
	_, err = ParseDataType("decimal")
	assert.Error(t, err)
}
