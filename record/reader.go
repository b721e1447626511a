package record

import (
	"math"

	"github.com/viant/watchdb/schema"
)

const (
	// NullInt marks an absent Int value.
	NullInt int32 = math.MinInt32
	// NullLong marks an absent Long value.
	NullLong int64 = math.MinInt64
)

// Reader is a typed, read-only view over one object, embedded object or list.
// Index 0 is the identity; property i of Properties() is read at index i+1.
// List readers have no properties and are indexed 0..n-1.
type Reader interface {
	// IDName returns the identity field name, "" for embedded objects and lists.
	IDName() string
	Properties() []schema.Property
	ReadID() int64
	IsNull(index int) bool
	ReadBool(index int) (bool, bool)
	ReadByte(index int) byte
	// ReadInt returns NullInt when the value is absent.
	ReadInt(index int) int32
	// ReadFloat returns NaN when the value is absent.
	ReadFloat(index int) float32
	// ReadLong returns NullLong when the value is absent.
	ReadLong(index int) int64
	// ReadDouble returns NaN when the value is absent.
	ReadDouble(index int) float64
	ReadString(index int) (string, bool)
	ReadObject(index int) (Reader, bool)
	// ReadList returns a list reader and its length.
	ReadList(index int) (Reader, int, bool)
}

func IsNullInt(v int32) bool { return v == NullInt }

func IsNullLong(v int64) bool { return v == NullLong }

func IsNullFloat(v float32) bool { return IsNullDouble(float64(v)) }

func IsNullDouble(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
