// Package record defines the read-only view over one stored object that both
// storage backends expose and the change detector consumes.
//
// Readers report absent numeric values through sentinels: math.MinInt32 for
// Int, math.MinInt64 for Long and any non-finite value for Float and Double.
// Every Reader implementation must honour these rules.
package record
