package main

import (
	"bufio"
	"bytes"
	"io"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/viant/watchdb/store"
)

// Operation is one line of an operation script.
type Operation struct {
	Op         string         `json:"op"`
	Collection string         `json:"collection"`
	ID         int64          `json:"id,omitempty"`
	IDs        []int64        `json:"ids,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Where      store.Filter   `json:"where,omitempty"`
	Set        map[string]any `json:"set,omitempty"`
}

// readOperations decodes a JSON-lines script; blank lines and lines
// starting with '#' are skipped.
func readOperations(r io.Reader) ([]Operation, int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var ops []Operation
	var size int64
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		size += int64(len(data)) + 1
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 || trimmed[0] == '#' {
			continue
		}
		var op Operation
		if err := json.Unmarshal(trimmed, &op); err != nil {
			return nil, size, errors.Wrapf(err, "line %d", line)
		}
		if op.Collection == "" {
			return nil, size, errors.Errorf("line %d: collection is required", line)
		}
		ops = append(ops, op)
	}
	return ops, size, errors.Wrap(scanner.Err(), "failed to read script")
}

// Apply runs the operation and returns the number of affected objects.
func (o Operation) Apply(txn store.Txn) (int, error) {
	switch o.Op {
	case "put":
		ids, err := txn.Put(o.Collection, store.Object{ID: o.ID, Fields: o.Fields})
		return len(ids), err
	case "update":
		return txn.Update(o.Collection, o.Where, o.Set)
	case "delete":
		if len(o.IDs) > 0 || o.ID > 0 {
			ids := o.IDs
			if o.ID > 0 {
				ids = append(ids, o.ID)
			}
			return txn.Delete(o.Collection, ids...)
		}
		return txn.DeleteWhere(o.Collection, o.Where)
	}
	return 0, errors.Errorf("unknown operation %q", o.Op)
}
