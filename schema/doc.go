// Package schema describes collections, their typed properties and the
// embedded object types they reference. Both storage backends and the change
// detector read records through the property order defined here: index 0 is
// the object identity and property i of a collection is read at index i+1.
package schema
