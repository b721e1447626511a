package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/watchdb/change"
	"github.com/viant/watchdb/config"
)

const script = `
# seed
{"op":"put","collection":"users","fields":{"key":"ann","age":30}}
{"op":"put","collection":"users","fields":{"key":"bob","age":40}}
{"op":"update","collection":"users","where":[{"field":"key","op":"=","value":"ann"}],"set":{"age":31}}
{"op":"delete","collection":"users","where":[{"field":"age","op":">=","value":40}]}
`

func testConfig(t *testing.T, engine string) *config.Config {
	cfg, err := config.Parse([]byte(`
name: cli
engine: ` + engine + `
collections:
  - name: users
    keyField: key
    properties:
      - {name: key, type: String}
      - {name: age, type: Int}
`))
	require.NoError(t, err)
	cfg.Directory = filepath.Join(t.TempDir(), "data")
	return cfg
}

func TestReadOperations(t *testing.T) {
	ops, size, err := readOperations(strings.NewReader(script))
	require.NoError(t, err)
	require.Len(t, ops, 4)
	assert.Greater(t, size, int64(0))
	assert.Equal(t, "update", ops[2].Op)
	require.Len(t, ops[2].Where, 1)
	assert.Equal(t, "key", ops[2].Where[0].Field)

	_, _, err = readOperations(strings.NewReader(`{"op":"put"}`))
	assert.Error(t, err)
	_, _, err = readOperations(strings.NewReader(`{"op":`))
	assert.Error(t, err)
}

func TestApplyScript(t *testing.T) {
	for _, engine := range []string{"sqlite", "native"} {
		var out bytes.Buffer
		cmd := &cmdApply{}
		summary, err := cmd.run(context.Background(), testConfig(t, engine), strings.NewReader(script), &out)
		require.NoError(t, err, engine)
		assert.True(t, summary.Committed)
		assert.Equal(t, 4, summary.Operations)
		assert.Equal(t, 4, summary.Affected)
		assert.Equal(t, 4, summary.Details)
		assert.Contains(t, summary.String(), "committed 4 operations")

		var types []change.Type
		decoder := json.NewDecoder(&out)
		for decoder.More() {
			var detail change.Detail
			require.NoError(t, decoder.Decode(&detail))
			types = append(types, detail.Type)
		}
		assert.Equal(t, []change.Type{change.Insert, change.Insert, change.Update, change.Delete}, types, engine)
	}
}

func TestApplyDryRunAndFailure(t *testing.T) {
	cfg := testConfig(t, "sqlite")
	var out bytes.Buffer
	cmd := &cmdApply{DryRun: true}
	summary, err := cmd.run(context.Background(), cfg, strings.NewReader(script), &out)
	require.NoError(t, err)
	assert.False(t, summary.Committed)
	assert.Equal(t, 0, summary.Details)
	assert.Empty(t, out.String())

	cmd = &cmdApply{}
	_, err = cmd.run(context.Background(), cfg, strings.NewReader(`{"op":"put","collection":"users","fields":{"unknown":1}}`), &out)
	assert.Error(t, err)
	_, err = cmd.run(context.Background(), cfg, strings.NewReader(`{"op":"merge","collection":"users"}`), &out)
	assert.Error(t, err)
	assert.Empty(t, out.String())
}

func TestSchemaCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: cli
collections:
  - name: Address
    embedded: true
    properties: [{name: city, type: String}]
  - name: users
    properties: [{name: home, type: Object, target: Address}]
`), 0o644))
	assert.NoError(t, (&cmdSchema{Config: path}).Execute(nil))
	assert.Error(t, (&cmdSchema{Config: filepath.Join(t.TempDir(), "missing.yaml")}).Execute(nil))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	s, err := cfg.Schema()
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, writeSchema(&out, s))
	assert.Contains(t, out.String(), "Address (embedded)")
	assert.Contains(t, out.String(), "Object")
	assert.Contains(t, out.String(), "identity")
}
