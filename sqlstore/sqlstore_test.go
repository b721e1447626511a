package sqlstore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/watchdb/change"
	"github.com/viant/watchdb/engine"
	"github.com/viant/watchdb/kvstore"
	"github.com/viant/watchdb/metrics"
	"github.com/viant/watchdb/record"
	"github.com/viant/watchdb/schema"
	"github.com/viant/watchdb/store"
	"github.com/viant/watchdb/watch"
)

func framesSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(
		&schema.Collection{Name: "frames", Properties: []schema.Property{
			{Name: "typeId", Type: schema.String},
			{Name: "key", Type: schema.String},
			{Name: "value", Type: schema.String},
			{Name: "size", Type: schema.Int},
			{Name: "weight", Type: schema.Double},
			{Name: "tags", Type: schema.StringList},
			{Name: "home", Type: schema.Object, Target: "address"},
			{Name: "meta", Type: schema.Json},
		}},
		&schema.Collection{Name: "address", Embedded: true, Properties: []schema.Property{
			{Name: "city", Type: schema.String},
			{Name: "zip", Type: schema.Long},
		}},
	)
	require.NoError(t, err)
	return s
}

func openTest(t *testing.T) *Instance {
	t.Helper()
	i, err := Open(filepath.Join(t.TempDir(), "frames.sqlite"), framesSchema(t), store.WithName("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = i.Close() })
	return i
}

func begin(t *testing.T, i store.Instance, write bool) store.Txn {
	t.Helper()
	txn, err := i.Begin(context.Background(), write)
	require.NoError(t, err)
	return txn
}

func frame(key string, size int) store.Object {
	return store.Object{Fields: map[string]any{"typeId": "note", "key": key, "size": size}}
}

// TestCommitAtomicity verifies that aborted writes are never delivered and
// committed writes are delivered once, in write order.
func TestCommitAtomicity(t *testing.T) {
	i := openTest(t)
	var batches []watch.Batch
	i.Watchers().WatchDetailed("frames", func(b watch.Batch) { batches = append(batches, b) })

	txn := begin(t, i, true)
	_, err := txn.Put("frames", frame("a", 1), frame("b", 2), frame("c", 3))
	require.NoError(t, err)
	txn.Abort()
	assert.Empty(t, batches)

	reader := begin(t, i, false)
	count, err := reader.Count("frames", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	require.NoError(t, reader.Commit())

	txn = begin(t, i, true)
	ids, err := txn.Put("frames", frame("a", 1), frame("b", 2), frame("c", 3))
	require.NoError(t, err)
	assert.Empty(t, batches)
	require.NoError(t, txn.Commit())

	require.Len(t, batches, 1)
	require.Len(t, batches[0].Changes, 3)
	for n, detail := range batches[0].Changes {
		assert.Equal(t, ids[n], detail.ObjectID)
		assert.Equal(t, change.Insert, detail.Type)
	}
	assert.Equal(t, "b", batches[0].Changes[1].Key)
	assert.Equal(t, txn.ID(), batches[0].TxnID)
}

// TestDetailShapes verifies insert, update, no-op update and delete details.
func TestDetailShapes(t *testing.T) {
	i := openTest(t)
	var details []change.Detail
	i.Watchers().WatchDetailed("frames", func(b watch.Batch) { details = append(details, b.Changes...) })

	txn := begin(t, i, true)
	ids, err := txn.Put("frames", store.Object{Fields: map[string]any{
		"typeId": "note",
		"key":    "k1",
		"value":  `{"value":"hello"}`,
		"size":   2,
		"tags":   []string{"x", "y"},
		"home":   map[string]any{"city": "Oslo"},
		"meta":   `{ "a": [1, 2] }`,
	}})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	require.Len(t, details, 1)
	inserted := details[0]
	assert.Equal(t, change.Insert, inserted.Type)
	assert.Equal(t, "k1", inserted.Key)
	assert.Len(t, inserted.Fields, 7)
	value, _ := inserted.Field("value")
	assert.Equal(t, "hello", *value.New)
	tags, _ := inserted.Field("tags")
	assert.Equal(t, "[StringList:2]", *tags.New)
	home, _ := inserted.Field("home")
	assert.Equal(t, `{"city":"Oslo","zip":null}`, *home.New)
	meta, _ := inserted.Field("meta")
	assert.Equal(t, `{"a":[1,2]}`, *meta.New)
	assert.Contains(t, inserted.FullDocument, `"id":1`)

	txn = begin(t, i, true)
	n, err := txn.Update("frames", store.Where("id", store.Eq, ids[0]), map[string]any{"size": 5})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = txn.Update("frames", store.Where("id", store.Eq, ids[0]), map[string]any{"size": 5})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	require.Len(t, details, 2, "a no-op update yields no detail")
	updated := details[1]
	assert.Equal(t, change.Update, updated.Type)
	require.Len(t, updated.Fields, 1)
	assert.Equal(t, "size", updated.Fields[0].Field)
	assert.Equal(t, "2", *updated.Fields[0].Old)
	assert.Equal(t, "5", *updated.Fields[0].New)

	txn = begin(t, i, true)
	deleted, err := txn.Delete("frames", ids[0], 999)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	require.NoError(t, txn.Commit())
	require.Len(t, details, 3)
	removed := details[2]
	assert.Equal(t, change.Delete, removed.Type)
	assert.Len(t, removed.Fields, 7)
	for _, f := range removed.Fields {
		assert.Nil(t, f.New)
	}
	size, _ := removed.Field("size")
	assert.Equal(t, "5", *size.Old)

	for _, detail := range details {
		require.True(t, json.Valid([]byte(detail.FullDocument)), detail.FullDocument)
		assert.Contains(t, detail.FullDocument, `"id":1`)
	}
}

// TestNoWatcherShortCircuit verifies that state reads happen only with detailed watchers.
func TestNoWatcherShortCircuit(t *testing.T) {
	i := openTest(t)
	reads := func() float64 { return testutil.ToFloat64(metrics.ChangeReadsTotal.WithLabelValues(store.SQL)) }

	start := reads()
	txn := begin(t, i, true)
	ids, err := txn.Put("frames", frame("a", 1))
	require.NoError(t, err)
	_, err = txn.Update("frames", nil, map[string]any{"size": 2})
	require.NoError(t, err)
	_, err = txn.Delete("frames", ids...)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	assert.Equal(t, start, reads())

	handle := i.Watchers().WatchDetailed("frames", func(watch.Batch) {})
	defer handle.Stop()
	txn = begin(t, i, true)
	_, err = txn.Put("frames", frame("b", 1))
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	assert.Greater(t, reads(), start)
}

// TestCoarseWatchers verifies object and query watchers. Query predicates
// see no object view on this backend and match every touched row.
func TestCoarseWatchers(t *testing.T) {
	i := openTest(t)
	var single, all []int64
	i.Watchers().WatchObject("frames", 2, func(n watch.Notification) { single = append(single, n.IDs...) })
	i.Watchers().WatchQuery("frames", func(int64, record.Reader) bool { return false },
		func(n watch.Notification) { all = append(all, n.IDs...) })

	txn := begin(t, i, true)
	_, err := txn.Put("frames", frame("a", 1), frame("b", 20), frame("c", 30))
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	assert.Equal(t, []int64{2}, single)
	assert.Equal(t, []int64{1, 2, 3}, all)

	txn = begin(t, i, true)
	n, err := txn.DeleteWhere("frames", store.Where("size", store.Ge, 30))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, txn.Commit())
	assert.Equal(t, []int64{1, 2, 3, 3}, all)
	assert.Equal(t, []int64{2}, single)
}

// TestExecHookPath verifies that raw statements reach watchers as minimal
// update details and that the hook is removed after commit.
func TestExecHookPath(t *testing.T) {
	i, err := Open(engine.Memory, framesSchema(t))
	require.NoError(t, err)
	defer i.Close()

	txn := begin(t, i, true)
	_, err = txn.Put("frames", store.Object{Fields: map[string]any{"key": "a", "value": `{"value":"unwrapped"}`}})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	var details []change.Detail
	var notified []int64
	i.Watchers().WatchDetailed("frames", func(b watch.Batch) { details = append(details, b.Changes...) })
	i.Watchers().WatchCollection("frames", func(n watch.Notification) { notified = append(notified, n.IDs...) })

	txn = begin(t, i, true)
	affected, err := txn.(*Txn).Exec(`UPDATE frames SET "key" = watch_unwrap("value") WHERE "key" = ?`, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
	require.NoError(t, txn.Commit())

	assert.Equal(t, []int64{1}, notified)
	require.Len(t, details, 1)
	assert.Equal(t, change.Minimal("frames", 1, "id"), details[0])
	assert.Equal(t, `{"id":1}`, details[0].FullDocument)

	var triggers int
	require.NoError(t, i.db.QueryRow(`SELECT COUNT(*) FROM sqlite_temp_master WHERE type = 'trigger'`).Scan(&triggers))
	assert.Equal(t, 0, triggers)

	reader := begin(t, i, false)
	defer reader.Abort()
	r, ok, err := reader.Get("frames", 1)
	require.NoError(t, err)
	require.True(t, ok)
	key, _ := r.ReadString(2)
	assert.Equal(t, "unwrapped", key)
}

// TestStopBeforeCommit verifies that a watcher stopped before commit gets nothing.
func TestStopBeforeCommit(t *testing.T) {
	i := openTest(t)
	delivered := 0
	handle := i.Watchers().WatchDetailed("frames", func(watch.Batch) { delivered++ })
	txn := begin(t, i, true)
	_, err := txn.Put("frames", frame("a", 1))
	require.NoError(t, err)
	handle.Stop()
	require.NoError(t, txn.Commit())
	assert.Equal(t, 0, delivered)
}

// TestQueryAndSentinels verifies cursors, explicit ids and null round-trips.
func TestQueryAndSentinels(t *testing.T) {
	i := openTest(t)
	txn := begin(t, i, true)
	ids, err := txn.Put("frames",
		store.Object{ID: 10, Fields: map[string]any{"key": "x", "home": map[string]any{"city": "Rome", "zip": 100}}},
		store.Object{Fields: map[string]any{"key": "y", "size": 4, "weight": 1.25, "tags": []any{"a", nil}, "meta": map[string]any{"n": 1}}},
	)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, ids)
	require.NoError(t, txn.Commit())

	txn = begin(t, i, false)
	defer txn.Abort()
	r, ok, err := txn.Get("frames", 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record.NullInt, r.ReadInt(4))
	assert.True(t, record.IsNullDouble(r.ReadDouble(5)))
	assert.True(t, r.IsNull(4))
	_, _, ok = r.ReadList(6)
	assert.False(t, ok)
	home, ok := r.ReadObject(7)
	require.True(t, ok)
	city, _ := home.ReadString(1)
	assert.Equal(t, "Rome", city)
	assert.Equal(t, int64(100), home.ReadLong(2))

	cur, err := txn.Query("frames", store.Where("size", store.NotNull, nil))
	require.NoError(t, err)
	var found []map[string]any
	for cur.Next() {
		found = append(found, record.ToMap(cur.Reader()))
	}
	require.NoError(t, cur.Err())
	require.NoError(t, cur.Close())
	require.Len(t, found, 1)
	assert.Equal(t, int64(11), found[0]["id"])
	assert.Equal(t, 1.25, found[0]["weight"])

	count, err := txn.Count("frames", store.Where("key", store.Gt, "x"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = txn.Put("frames", frame("z", 1))
	assert.True(t, errors.Is(err, store.ErrWriteTxnRequired))
	_, err = txn.Query("missing", nil)
	assert.True(t, errors.Is(err, store.ErrUnknownCollection))
}

// TestGuardAbortsTransaction verifies that an unserialisable state aborts the whole batch.
func TestGuardAbortsTransaction(t *testing.T) {
	i := openTest(t)
	_, err := i.db.Exec(`INSERT INTO frames ("_id", "key", "meta") VALUES (100, 'bad', '{"broken":')`)
	require.NoError(t, err)

	delivered := 0
	i.Watchers().WatchDetailed("frames", func(watch.Batch) { delivered++ })
	txn := begin(t, i, true)
	_, err = txn.Put("frames", frame("ok", 1))
	require.NoError(t, err)
	_, err = txn.Update("frames", store.Where("id", store.Eq, 100), map[string]any{"size": 3})
	var violation *change.InvariantError
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, int64(100), violation.ObjectID)

	_, err = txn.Put("frames", frame("late", 1))
	assert.True(t, errors.Is(err, store.ErrTxnClosed))
	assert.True(t, errors.Is(txn.Commit(), store.ErrTxnClosed))
	assert.Equal(t, 0, delivered)

	reader := begin(t, i, false)
	defer reader.Abort()
	count, err := reader.Count("frames", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestBackendParity verifies that both backends report identical field
// changes for scalar, list, object and Json properties.
func TestBackendParity(t *testing.T) {
	dir := t.TempDir()
	native, err := kvstore.Open(filepath.Join(dir, "frames.bolt"), framesSchema(t))
	require.NoError(t, err)
	defer native.Close()
	sqlite, err := Open(filepath.Join(dir, "frames.sqlite"), framesSchema(t))
	require.NoError(t, err)
	defer sqlite.Close()

	run := func(i store.Instance) []change.Detail {
		var details []change.Detail
		handle := i.Watchers().WatchDetailed("frames", func(b watch.Batch) { details = append(details, b.Changes...) })
		defer handle.Stop()

		txn := begin(t, i, true)
		ids, err := txn.Put("frames", store.Object{Fields: map[string]any{
			"typeId": "note", "key": "k", "value": `{"value":"v1"}`, "size": 1, "weight": 0.5,
			"tags": []string{"a", "b"}, "home": map[string]any{"city": "Oslo"}, "meta": `{"n": 1}`,
		}})
		require.NoError(t, err)
		_, err = txn.Update("frames", store.Where("id", store.Eq, ids[0]), map[string]any{"value": "v2", "weight": nil})
		require.NoError(t, err)
		_, err = txn.Update("frames", store.Where("id", store.Eq, ids[0]), map[string]any{"tags": []string{"x", "y"}})
		require.NoError(t, err)
		_, err = txn.Update("frames", store.Where("id", store.Eq, ids[0]), map[string]any{
			"tags": []string{"x"}, "home": map[string]any{"city": "Bergen", "zip": 5000}, "meta": "plain",
		})
		require.NoError(t, err)
		_, err = txn.Delete("frames", ids[0])
		require.NoError(t, err)
		require.NoError(t, txn.Commit())
		return details
	}

	expected := run(native)
	actual := run(sqlite)
	require.Len(t, expected, 4, "a same-length list edit yields no detail")
	require.Len(t, actual, len(expected))
	for n := range expected {
		assert.Equal(t, expected[n].Type, actual[n].Type)
		assert.Equal(t, expected[n].Key, actual[n].Key)
		assert.Equal(t, expected[n].Fields, actual[n].Fields)
		assert.True(t, json.Valid([]byte(actual[n].FullDocument)))
	}
	last := expected[2]
	require.Len(t, last.Fields, 3)
	assert.Equal(t, "[StringList:1]", *last.Fields[0].New)
	assert.Equal(t, `{"city":"Bergen","zip":5000}`, *last.Fields[1].New)
	assert.Equal(t, `"plain"`, *last.Fields[2].New)
}

// TestAdminTokenPerInstance verifies that instances sharing a name report
// their own watchers through watch_admin.
func TestAdminTokenPerInstance(t *testing.T) {
	first, second := openTest(t), openTest(t)
	require.NotEmpty(t, first.AdminToken())
	assert.NotEqual(t, first.AdminToken(), second.AdminToken())
	first.Watchers().WatchDetailed("frames", func(watch.Batch) {})
	require.NoError(t, first.Close())

	conn, err := second.db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(context.Background(), `CREATE VIRTUAL TABLE temp.admin USING watch_admin('`+second.AdminToken()+`')`)
	if err != nil && strings.Contains(err.Error(), "no such module") {
		t.Skipf("watch_admin unavailable: %v", err)
	}
	require.NoError(t, err)
	var coarse, detailed int
	require.NoError(t, conn.QueryRowContext(context.Background(), `SELECT coarse, detailed FROM temp.admin WHERE collection = 'frames'`).Scan(&coarse, &detailed))
	assert.Equal(t, 0, coarse)
	assert.Equal(t, 0, detailed)
}
