package sightline

import (
	"fmt"
	"math"

	"github.com/jward/sightline/internal/geom"
	"github.com/jward/sightline/internal/spatial"
)

// QueryBuilder provides read access to one registered map.
type QueryBuilder struct {
	m   *spatial.Map
	tol float64
}

// ColumnSummary describes the values of one attribute column.
type ColumnSummary struct {
	Name string
	// Set counts the rows whose value is not NaN.
	Set  int
	Rows int
	Min  float64
	Max  float64
	Mean float64
}

// Query returns a QueryBuilder over the map under h.
func (e *Engine) Query(h Handle) (*QueryBuilder, error) {
	m, err := e.Map(h)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return &QueryBuilder{m: m, tol: e.tolerance}, nil
}

// Map returns the queried map.
func (q *QueryBuilder) Map() *spatial.Map { return q.m }

// ShapeAt returns the lowest key whose shape covers p.
func (q *QueryBuilder) ShapeAt(p geom.Point) (int, bool) {
	if !q.m.Region().Contains(p) {
		return 0, false
	}
	return shapeAt(q.m, p, q.tol)
}

// ShapesIn returns the keys of every shape whose bounds intersect r, in key
// order.
func (q *QueryBuilder) ShapesIn(r geom.Region) []int {
	var keys []int
	for key := range q.m.Shapes.ShapesInRegion(r) {
		keys = append(keys, key)
	}
	return keys
}

// Attributes returns the attribute values of the shape under key, the key
// column included.
func (q *QueryBuilder) Attributes(key int) (map[string]float64, error) {
	vals, err := q.m.ShapeAttributes(key)
	if err != nil {
		return nil, fmt.Errorf("attributes: %w", err)
	}
	return vals, nil
}

// Coordinates returns the points of the shape under key. Polygon rings are
// returned closed.
func (q *QueryBuilder) Coordinates(key int) ([]geom.Point, error) {
	shape, err := q.m.Shapes.Get(key)
	if err != nil {
		return nil, fmt.Errorf("coordinates: %w", err)
	}
	return shape.Ring(), nil
}

// Lines returns every line segment of the map: lines themselves and each
// polygon edge.
func (q *QueryBuilder) Lines() []geom.Line {
	var out []geom.Line
	for l := range q.m.Shapes.Lines() {
		out = append(out, l)
	}
	return out
}

// Summary describes the named column. The key column may be named too.
func (q *QueryBuilder) Summary(name string) (ColumnSummary, error) {
	vals, err := q.m.Attributes.ColumnValues(name)
	if err != nil {
		return ColumnSummary{}, fmt.Errorf("summary: %w", err)
	}
	return summarize(name, vals), nil
}

// Summaries describes every column, the key column first.
func (q *QueryBuilder) Summaries() []ColumnSummary {
	names := q.m.Attributes.ColumnNames()
	out := make([]ColumnSummary, 0, len(names))
	for _, name := range names {
		vals, err := q.m.Attributes.ColumnValues(name)
		if err != nil {
			continue
		}
		out = append(out, summarize(name, vals))
	}
	return out
}

func summarize(name string, vals []float64) ColumnSummary {
	s := ColumnSummary{Name: name, Rows: len(vals), Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}
	var sum float64
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if s.Set == 0 || v < s.Min {
			s.Min = v
		}
		if s.Set == 0 || v > s.Max {
			s.Max = v
		}
		sum += v
		s.Set++
	}
	if s.Set > 0 {
		s.Mean = sum / float64(s.Set)
	}
	return s
}
