// Package sqlstore is the SQL backend on the pure-Go SQLite driver. Each
// stored collection is a table with an "_id" INTEGER PRIMARY KEY plus one
// column per property; objects, lists and Json values are kept as JSON text.
//
// Row mutations are observed through TEMP triggers that append the touched
// (collection, id) to a TEMP queue table inside the transaction. The queue is
// drained right before COMMIT, so statements that bypass the typed operations
// (see Txn.Exec) still reach watchers.
package sqlstore
