package sightline

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/sightline/internal/errs"
	"github.com/jward/sightline/internal/geom"
)

func TestQuery_UnknownHandle(t *testing.T) {
	t.Parallel()
	_, err := newTestEngine(t).Query(Handle(3))
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestQuery_ShapeLookups(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	q, err := e.Query(e.Register(overlapMap(t)))
	require.NoError(t, err)

	key, ok := q.ShapeAt(geom.Point{X: 2, Y: 2})
	assert.True(t, ok)
	assert.Equal(t, 2, key)
	_, ok = q.ShapeAt(geom.Point{X: 5, Y: 1})
	assert.False(t, ok, "gap between rooms")
	_, ok = q.ShapeAt(geom.Point{X: -1, Y: 0})
	assert.False(t, ok, "outside the region")

	assert.Equal(t, []int{2, 5}, q.ShapesIn(geom.NewRegion(0, 0, 1, 1)))
	assert.Empty(t, q.ShapesIn(geom.NewRegion(20, 20, 30, 30)))

	ring, err := q.Coordinates(5)
	require.NoError(t, err)
	require.Len(t, ring, 5, "ring is closed")
	assert.Equal(t, ring[0], ring[4])

	_, err = q.Coordinates(99)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	assert.Len(t, q.Lines(), 12, "four edges per square")
}

func TestQuery_AttributesAndSummaries(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	m := filledMap(t)
	_, err := m.Attributes.AddColumn("empty")
	require.NoError(t, err)
	q, err := e.Query(e.Register(m))
	require.NoError(t, err)

	attrs, err := q.Attributes(4)
	require.NoError(t, err)
	assert.Equal(t, 4.0, attrs["Ref"])
	assert.Equal(t, 4.0, attrs["depth"])
	assert.True(t, math.IsNaN(attrs["empty"]))

	s, err := q.Summary("depth")
	require.NoError(t, err)
	assert.Equal(t, 10, s.Rows)
	assert.Equal(t, 10, s.Set)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.InDelta(t, 4.5, s.Mean, 1e-9)

	all := q.Summaries()
	require.Len(t, all, 3)
	assert.Equal(t, "Ref", all[0].Name)
	assert.Equal(t, 0, all[2].Set)
	assert.True(t, math.IsNaN(all[2].Mean))

	_, err = q.Summary("missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}
