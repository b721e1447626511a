// Package kvstore is the native backend: objects live in one bbolt bucket
// per collection, keyed by big-endian id, encoded as CBOR arrays whose slot 0
// is the id and slot i the property read at index i. Absent Int and Long
// values are stored as their sentinels and absent floats as NaN, so the
// binary reader hands back exactly what the change detector expects.
package kvstore
