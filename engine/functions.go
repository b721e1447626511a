package engine

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/viant/watchdb/change"
	sqlite "modernc.org/sqlite"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterFunctions registers watch_unwrap with the driver so it is available
// on connections opened after this call. It is safe to call repeatedly.
func RegisterFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction("watch_unwrap", 1, watchUnwrapImpl)
	})
	return registerErr
}

// watchUnwrapImpl returns the "value" member of a JSON envelope, or the
// argument unchanged.
func watchUnwrapImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("watch_unwrap: expected 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return change.UnwrapEmbedded(v), nil
	case []byte:
		return change.UnwrapEmbedded(string(v)), nil
	default:
		return v, nil
	}
}
