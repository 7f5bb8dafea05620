package sightline

import (
	"context"
	"fmt"

	"github.com/jward/sightline/internal/errs"
	"github.com/jward/sightline/internal/geom"
	"github.com/jward/sightline/internal/spatial"
)

// SeedRefs returns, for each point, the key of the shape it lands on within
// geom.Tolerance. A point outside the map's region fails with OutOfRegion; a
// point inside it that touches no shape fails with NotOnFilledCell. When a
// point lands on several shapes the lowest key wins.
func SeedRefs(m *spatial.Map, points []geom.Point) ([]int, error) {
	return seedRefs(m, points, geom.Tolerance)
}

// SeedRefs is the package-level SeedRefs using the Engine's tolerance.
func (e *Engine) SeedRefs(m *spatial.Map, points []geom.Point) ([]int, error) {
	return seedRefs(m, points, e.tolerance)
}

func seedRefs(m *spatial.Map, points []geom.Point, tol float64) ([]int, error) {
	region := m.Region()
	refs := make([]int, len(points))
	for i, p := range points {
		if !region.Contains(p) {
			return nil, errs.At(errs.KindOutOfRegion, "seed", i, p.String()).
				WithDetail("map region is %s", region)
		}
		key, ok := shapeAt(m, p, tol)
		if !ok {
			return nil, errs.At(errs.KindNotOnFilledCell, "seed", i, p.String())
		}
		refs[i] = key
	}
	return refs, nil
}

// shapeAt returns the lowest key whose shape covers p.
func shapeAt(m *spatial.Map, p geom.Point, tol float64) (int, bool) {
	probe := geom.NewRegion(p.X-tol, p.Y-tol, p.X+tol, p.Y+tol)
	for key, shape := range m.Shapes.ShapesInRegion(probe) {
		if shape.CoversWithin(p, tol) {
			return key, true
		}
	}
	return 0, false
}

// CheckPairs verifies that origins and destinations pair up one to one.
func CheckPairs(origins, destinations []geom.Point) error {
	if len(origins) != len(destinations) {
		return errs.Newf(errs.KindMismatchedInputSizes, "pair points",
			"%d origins, %d destinations", len(origins), len(destinations))
	}
	return nil
}

// SeededFunc is an analysis started from shapes picked by point.
type SeededFunc func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map, seeds []int) (EngineResult, error)

// PairFunc is an analysis over origin/destination shape pairs.
type PairFunc func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map, pairs [][2]int) (EngineResult, error)

// AnalyseFrom resolves points to shapes of the map under h and runs fn on
// them. Points that do not resolve fail the call before any copy is made.
func (e *Engine) AnalyseFrom(ctx context.Context, h Handle, access MapAccess, points []geom.Point, fn SeededFunc) (Report, error) {
	m, err := e.Map(h)
	if err != nil {
		return e.failed(h, access, err)
	}
	seeds, err := e.SeedRefs(m, points)
	if err != nil {
		return e.failed(h, access, err)
	}
	return e.Analyse(ctx, h, access, func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error) {
		return fn(ctx, sink, m, seeds)
	})
}

// AnalysePairs resolves origin and destination points to shapes of the map
// under h and runs fn on the resulting pairs.
func (e *Engine) AnalysePairs(ctx context.Context, h Handle, access MapAccess, origins, destinations []geom.Point, fn PairFunc) (Report, error) {
	if err := CheckPairs(origins, destinations); err != nil {
		return e.failed(h, access, err)
	}
	m, err := e.Map(h)
	if err != nil {
		return e.failed(h, access, err)
	}
	from, err := e.SeedRefs(m, origins)
	if err != nil {
		return e.failed(h, access, fmt.Errorf("origins: %w", err))
	}
	to, err := e.SeedRefs(m, destinations)
	if err != nil {
		return e.failed(h, access, fmt.Errorf("destinations: %w", err))
	}
	pairs := make([][2]int, len(from))
	for i := range from {
		pairs[i] = [2]int{from[i], to[i]}
	}
	return e.Analyse(ctx, h, access, func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error) {
		return fn(ctx, sink, m, pairs)
	})
}

func (e *Engine) failed(h Handle, access MapAccess, err error) (Report, error) {
	e.metrics.ObserveAnalysis(Failed.String(), access.String(), 0)
	return Report{Source: h, Access: access, State: Failed}, fmt.Errorf("sightline: analyse: %w", err)
}
