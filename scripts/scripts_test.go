package scripts_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/sightline/internal/geom"
	"github.com/jward/sightline/internal/runtime"
	"github.com/jward/sightline/internal/spatial"
	"github.com/jward/sightline/scripts"
)

// shapesMap holds a 2x2 square (key 1), a right triangle with legs 4 and 3
// overlapping it (key 2) and a line far away from both (key 3).
func shapesMap(t *testing.T) *spatial.Map {
	t.Helper()
	m := spatial.New("shapes", "")
	for _, s := range []struct {
		key   int
		shape geom.Shape
	}{
		{1, geom.NewPolygon([]geom.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}})},
		{2, geom.NewPolygon([]geom.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 0, Y: 3}})},
		{3, geom.NewLine(geom.Point{X: 10, Y: 10}, geom.Point{X: 12, Y: 10})},
	} {
		_, err := m.Add(s.shape, s.key)
		require.NoError(t, err)
	}
	return m
}

func run(t *testing.T, m *spatial.Map, name string) runtime.Result {
	t.Helper()
	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(scripts.FS))
	res, err := rt.RunScript(context.Background(), nil, m, name)
	require.NoError(t, err)
	return res
}

func TestBundledScriptsListed(t *testing.T) {
	t.Parallel()
	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(scripts.FS))
	names, err := rt.Scripts()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bbox_neighbours", "fill_missing", "shape_area"}, names)
}

func TestShapeArea(t *testing.T) {
	t.Parallel()
	m := shapesMap(t)
	res := run(t, m, "shape_area")
	assert.True(t, res.Completed)
	assert.Equal(t, []string{"shape_area"}, res.Columns)

	vals, err := m.Attributes.ColumnValues("shape_area")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4, 6, 0}, vals, 1e-9)
}

func TestShapeArea_Rerun(t *testing.T) {
	t.Parallel()
	m := shapesMap(t)
	run(t, m, "shape_area")
	run(t, m, "shape_area")
	assert.Len(t, m.Attributes.ColumnNames(), 2, "key column plus one result column")
}

func TestBBoxNeighbours(t *testing.T) {
	t.Parallel()
	m := shapesMap(t)
	res := run(t, m, "bbox_neighbours")
	assert.True(t, res.Completed)

	vals, err := m.Attributes.ColumnValues("bbox_neighbours")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 0}, vals)
}

func TestBBoxNeighbours_Cancelled(t *testing.T) {
	t.Parallel()
	m := shapesMap(t)
	ctx, cancel := context.WithCancel(context.Background())
	p := spatial.NewProgress(ctx)
	cancel()

	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(scripts.FS))
	res, err := rt.RunScript(ctx, p, m, "bbox_neighbours")
	require.Error(t, err)
	assert.False(t, res.Completed)
}

func TestFillMissing(t *testing.T) {
	t.Parallel()
	m := shapesMap(t)
	depth, err := m.Attributes.AddColumn("depth")
	require.NoError(t, err)
	_, err = m.Attributes.AddColumn("empty")
	require.NoError(t, err)
	row, err := m.Attributes.Row(2)
	require.NoError(t, err)
	require.NoError(t, m.Attributes.SetValue(row, depth, 7))

	res := run(t, m, "fill_missing")
	assert.False(t, res.Completed, "empty column reported as partial")
	assert.Equal(t, []string{"depth_filled", "empty_filled"}, res.Columns)

	vals, err := m.Attributes.ColumnValues("depth_filled")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 7, 0}, vals)

	orig, err := m.Attributes.ColumnValues("depth")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(orig[0]), "source column untouched")
}
