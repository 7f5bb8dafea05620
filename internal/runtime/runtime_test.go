package runtime

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jward/sightline/internal/errs"
	"github.com/jward/sightline/internal/geom"
	"github.com/jward/sightline/internal/spatial"
)

// testMap returns four unit-spaced points along the x axis keyed 0..3 and a
// "depth" column filled with the key times ten.
func testMap(t *testing.T) *spatial.Map {
	t.Helper()
	m := spatial.New("points", "")
	col, err := m.Attributes.AddColumn("depth")
	require.NoError(t, err)
	for i := range 4 {
		row, err := m.Add(geom.NewPoint(geom.Point{X: float64(i), Y: 0}), i)
		require.NoError(t, err)
		require.NoError(t, m.Attributes.SetValue(row, col, float64(i*10)))
	}
	return m
}

// cancelAfter continues for the first n ticks and cancels from then on.
type cancelAfter struct {
	n     int
	ticks int
}

func (c *cancelAfter) Tick(current, total int) spatial.Flow {
	c.ticks++
	if c.ticks > c.n {
		return spatial.Cancel
	}
	return spatial.Continue
}

// =============================================================================
// Host functions
// =============================================================================

func TestRunSource_WritesColumn(t *testing.T) {
	t.Parallel()
	m := testMap(t)
	rt := NewRuntime("")

	script := `
add_column("double_depth")
ks := keys()
for i := 0; i < len(ks); i++ {
    set(ks[i], "double_depth", get(ks[i], "depth") * 2)
}
`
	res, err := rt.RunSource(context.Background(), nil, m, script, nil)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, []string{"double_depth"}, res.Columns)

	vals, err := m.Attributes.ColumnValues("double_depth")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 20, 40, 60}, vals)
}

func TestRunSource_ReadOnlyAccessors(t *testing.T) {
	t.Parallel()
	m := testMap(t)
	rt := NewRuntime("")

	script := `
assert(map_name == "points", 'unexpected map name {map_name}')
assert(key_column == "Ref", 'unexpected key column {key_column}')
assert(num_rows() == 4, 'expected 4 rows, got {num_rows()}')

names := column_names()
assert(len(names) == 2, 'expected 2 names, got {len(names)}')
assert(names[0] == "Ref", 'expected key first, got {names[0]}')
assert(column_index("depth") == 0, "depth should be column 0")

depth := column("depth")
assert(depth[3] == 30.0, 'expected 30, got {depth[3]}')
assert(get(2, "Ref") == 2.0, "key column reads the key")

s := shape(1)
assert(s["kind"] == "point", "shape 1 is a point")
assert(s["points"][0][0] == 1.0, "x of shape 1")

attrs := shape_attributes(3)
assert(attrs["depth"] == 30.0, "shape attributes carry depth")

hits := shapes_in_region(0.5, -1, 2.5, 1)
assert(len(hits) == 2, 'expected 2 hits, got {len(hits)}')
assert(hits[0] == 1 && hits[1] == 2, "hits in key order")

r := region()
assert(r["max_x"] == 3.0, "region max x")
`
	res, err := rt.RunSource(context.Background(), nil, m, script, nil)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Empty(t, res.Columns, "reading does not report columns")
}

func TestRunSource_GetOrInsertReportsOnce(t *testing.T) {
	t.Parallel()
	m := testMap(t)
	rt := NewRuntime("")

	script := `
a := get_or_insert_column("score")
b := get_or_insert_column("score")
assert(a == b, "same index on reinsert")
set(0, "score", 1)
set(1, "depth", 5)
`
	res, err := rt.RunSource(context.Background(), nil, m, script, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"score", "depth"}, res.Columns)
	assert.Equal(t, 2, m.Attributes.NumColumns())
}

func TestRunSource_UnsetCellsAreNaN(t *testing.T) {
	t.Parallel()
	m := testMap(t)
	rt := NewRuntime("")

	script := `
add_column("fresh")
assert(is_nan(get(0, "fresh")), "new cells are unset")
assert(!is_nan(get(0, "depth")), "filled cells are set")
`
	_, err := rt.RunSource(context.Background(), nil, m, script, nil)
	require.NoError(t, err)

	vals, err := m.Attributes.ColumnValues("fresh")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(vals[0]))
}

func TestRunSource_CompletedFalse(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	res, err := rt.RunSource(context.Background(), nil, testMap(t), `completed(false)`, nil)
	require.NoError(t, err)
	assert.False(t, res.Completed)
}

func TestRunSource_HostErrorFailsScript(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	res, err := rt.RunSource(context.Background(), nil, testMap(t), `add_column("depth")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate_column")
	assert.False(t, errors.Is(err, errs.ErrCancelled))
	assert.Empty(t, res.Columns)
}

func TestRunSource_ArgumentErrors(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	for _, script := range []string{
		`get(0)`,
		`get("a", "depth")`,
		`set(99, "depth", 1)`,
		`shape(42)`,
		`column("missing")`,
		`completed(1)`,
	} {
		_, err := rt.RunSource(context.Background(), nil, testMap(t), script, nil)
		assert.Error(t, err, script)
	}
}

func TestRunSource_NilMap(t *testing.T) {
	t.Parallel()
	_, err := NewRuntime("").RunSource(context.Background(), nil, nil, `x := 1`, nil)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestRunSource_LogGoesToZap(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.DebugLevel)
	rt := NewRuntime("", WithLogger(zap.New(core)))

	_, err := rt.RunSource(context.Background(), nil, testMap(t), `log.Info("hello from script")`, nil)
	require.NoError(t, err)

	entries := logs.FilterMessage("hello from script").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "<inline>", entries[0].ContextMap()["script"])
}

func TestRunSource_ExtraGlobals(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	_, err := rt.RunSource(context.Background(), nil, testMap(t), `assert(radius == 3, "radius global")`, map[string]any{
		"radius": 3,
	})
	require.NoError(t, err)
}

// =============================================================================
// Cancellation
// =============================================================================

const tickingScript = `
add_column("visited")
ks := keys()
for i := 0; i < len(ks); i++ {
    tick(i + 1, len(ks))
    set(ks[i], "visited", 1)
}
`

func TestRunSource_CancelAfterTicks(t *testing.T) {
	t.Parallel()
	m := testMap(t)
	sink := &cancelAfter{n: 2}

	res, err := NewRuntime("").RunSource(context.Background(), sink, m, tickingScript, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrCancelled))
	assert.False(t, res.Completed)
	assert.Equal(t, []string{"visited"}, res.Columns)
	assert.Equal(t, 3, sink.ticks, "the third tick observes the cancel")

	vals, err := m.Attributes.ColumnValues("visited")
	require.NoError(t, err)
	assert.Equal(t, 1.0, vals[1])
	assert.True(t, math.IsNaN(vals[2]), "rows after the cancel are untouched")
}

func TestRunSource_NoCancelRunsToEnd(t *testing.T) {
	t.Parallel()
	sink := &cancelAfter{n: 100}
	res, err := NewRuntime("").RunSource(context.Background(), sink, testMap(t), tickingScript, nil)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 4, sink.ticks)
}

func TestRunSource_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewRuntime("").RunSource(ctx, spatial.NewProgress(ctx), testMap(t), tickingScript, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrCancelled))
	assert.False(t, res.Completed)
}

// =============================================================================
// Script loading
// =============================================================================

func TestRunScript_LoadsFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mark.risor"), []byte(`add_column("marked")`), 0644))

	m := testMap(t)
	res, err := NewRuntime(dir).RunScript(context.Background(), nil, m, "mark")
	require.NoError(t, err)
	assert.Equal(t, []string{"marked"}, res.Columns)
}

func TestRunScript_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := NewRuntime(t.TempDir()).RunScript(context.Background(), nil, testMap(t), "nonexistent.risor")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestLoadScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.risor")
	content := `x := 42`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	rt := NewRuntime(dir)
	got, err := rt.LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	got, err = rt.LoadScript("test")
	require.NoError(t, err)
	assert.Equal(t, content, got, "extension is optional")
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()

	content := `y := 99`
	mapFS := fstest.MapFS{
		"measures/area.risor": &fstest.MapFile{Data: []byte(content)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("measures/area.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Absolute-style path should be resolved within the FS.
	got, err = rt.LoadScript("/measures/area.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = rt.LoadScript("nonexistent.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestScripts_Lists(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"count.risor":          &fstest.MapFile{Data: []byte(`x := 1`)},
		"measures/area.risor":  &fstest.MapFile{Data: []byte(`x := 2`)},
		"measures/README.md":   &fstest.MapFile{Data: []byte(`notes`)},
		"lib/helpers.risor.md": &fstest.MapFile{Data: []byte(`notes`)},
	}
	got, err := NewRuntime("", WithRuntimeFS(mapFS)).Scripts()
	require.NoError(t, err)
	assert.Equal(t, []string{"count", "measures/area"}, got)

	got, err = NewRuntime(filepath.Join(t.TempDir(), "absent")).Scripts()
	require.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// Importer wiring
// =============================================================================

func TestImport_FSImporter(t *testing.T) {
	t.Parallel()
	// Risor's FSImporter resolves "lib_helpers" by trying name + ".risor",
	// so the file must be at the flat path "lib_helpers.risor" in the FS.
	mapFS := fstest.MapFS{
		"lib_helpers.risor": &fstest.MapFile{Data: []byte(`
func scaled(key, factor) {
	return get(key, "depth") * factor
}
`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	script := `
import lib_helpers

v := lib_helpers.scaled(2, 0.5)
assert(v == 10.0, 'expected 10, got {v}')
`
	_, err := rt.RunSource(context.Background(), nil, testMap(t), script, nil)
	require.NoError(t, err)
}

func TestImport_LocalImporter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "math_utils.risor"), []byte(`
func double(x) {
	return x * 2
}
`), 0644))

	script := `
import math_utils

result := math_utils.double(21)
assert(result == 42, 'expected 42, got {result}')
`
	_, err := NewRuntime(dir).RunSource(context.Background(), nil, testMap(t), script, nil)
	require.NoError(t, err)
}
