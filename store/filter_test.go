package store

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/watchdb/change"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
)

func users(t *testing.T) (*schema.Schema, *schema.Collection) {
	t.Helper()
	s, err := schema.New(&schema.Collection{Name: "users", Properties: []schema.Property{
		{Name: "name", Type: schema.String},
		{Name: "age", Type: schema.Int},
		{Name: "score", Type: schema.Double},
		{Name: "active", Type: schema.Bool},
		{Name: "tags", Type: schema.StringList},
	}})
	require.NoError(t, err)
	c, _ := s.Collection("users")
	return s, c
}

// TestFilterMatches verifies comparisons, null handling and identity conditions.
func TestFilterMatches(t *testing.T) {
	s, c := users(t)
	r := record.NewValues(s, c, 5, map[string]any{"name": "ann", "age": int32(30), "score": 2.5, "active": true})

	var testCases = []struct {
		description string
		filter      Filter
		expect      bool
	}{
		{description: "empty", filter: nil, expect: true},
		{description: "eq string", filter: Where("name", Eq, "ann"), expect: true},
		{description: "ne string", filter: Where("name", Ne, "ann"), expect: false},
		{description: "int vs float", filter: Where("age", Gt, 29.5), expect: true},
		{description: "float vs int", filter: Where("score", Le, 2), expect: false},
		{description: "bool", filter: Where("active", Eq, true), expect: true},
		{description: "identity", filter: Where("id", Ge, 5).And("age", Lt, 31), expect: true},
		{description: "null field", filter: Where("tags", IsNull, nil), expect: true},
		{description: "null never compares", filter: Where("tags", NotNull, nil), expect: false},
		{description: "mismatched types", filter: Where("name", Eq, 1), expect: false},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, testCase.filter.Matches(r), testCase.description)
	}
}

// TestFilterValidate verifies rejection of unknown fields and unsupported comparisons.
func TestFilterValidate(t *testing.T) {
	_, c := users(t)
	assert.NoError(t, Where("age", Gt, 3).And("id", Eq, int64(1)).Validate(c))
	assert.True(t, errors.Is(Where("missing", Eq, 1).Validate(c), ErrInvalidFilter))
	assert.True(t, errors.Is(Where("tags", Eq, "x").Validate(c), ErrInvalidFilter))
	assert.True(t, errors.Is(Where("age", Eq, []int{1}).Validate(c), ErrInvalidFilter))
	assert.NoError(t, Where("tags", NotNull, nil).Validate(c))
}

// TestParseOp verifies operator symbols.
func TestParseOp(t *testing.T) {
	op, err := ParseOp("<>")
	require.NoError(t, err)
	assert.Equal(t, Ne, op)
	op, err = ParseOp(" IS NULL ")
	require.NoError(t, err)
	assert.Equal(t, IsNull, op)
	_, err = ParseOp("like")
	assert.Error(t, err)
}

// TestGuard verifies that invariant violations become errors and other panics propagate.
func TestGuard(t *testing.T) {
	err := Guard(func() error {
		panic(&change.InvariantError{Collection: "users", ObjectID: 1, Err: errors.New("bad")})
	})
	var violation *change.InvariantError
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, int64(1), violation.ObjectID)

	assert.Panics(t, func() { _ = Guard(func() error { panic("other") }) })
}
