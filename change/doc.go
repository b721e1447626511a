// Package change computes row-level change details between the before and
// after states of one object. States arrive either as typed readers (native
// backend) or as JSON documents (SQL backend); both are reduced to ordered
// named values and compared by the same rules.
package change
