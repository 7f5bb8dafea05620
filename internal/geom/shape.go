// Package geom holds the geometry side of a map: points, lines and polygons
// keyed by stable reference, plus the running bounding region of a store.
package geom

import (
	"fmt"
	"math"

	"github.com/jward/sightline/internal/errs"
)

// Tolerance is the absolute distance under which two coordinates are
// considered the same point.
const Tolerance = 1e-4

// Point is a 2D coordinate.
type Point struct {
	X, Y float64
}

// Near reports whether p and q coincide within Tolerance on both axes.
func (p Point) Near(q Point) bool {
	return math.Abs(p.X-q.X) <= Tolerance && math.Abs(p.Y-q.Y) <= Tolerance
}

func (p Point) String() string { return fmt.Sprintf("(%g, %g)", p.X, p.Y) }

// Line is a segment between two endpoints.
type Line struct {
	A, B Point
}

// Length returns the Euclidean length of the segment.
func (l Line) Length() float64 {
	return math.Hypot(l.B.X-l.A.X, l.B.Y-l.A.Y)
}

// Bounds returns the bounding region of the segment.
func (l Line) Bounds() Region { return RegionOf(l.A, l.B) }

// distanceTo returns the shortest distance from p to the segment.
func (l Line) distanceTo(p Point) float64 {
	dx, dy := l.B.X-l.A.X, l.B.Y-l.A.Y
	den := dx*dx + dy*dy
	if den == 0 {
		return math.Hypot(p.X-l.A.X, p.Y-l.A.Y)
	}
	t := ((p.X-l.A.X)*dx + (p.Y-l.A.Y)*dy) / den
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(l.A.X+t*dx), p.Y-(l.A.Y+t*dy))
}

// Kind is the geometric type of a Shape.
type Kind int

const (
	KindPoint Kind = iota
	KindLine
	KindPolygon
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindPolygon:
		return "polygon"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "point":
		return KindPoint, nil
	case "line":
		return KindLine, nil
	case "polygon":
		return KindPolygon, nil
	}
	return 0, errs.Named(errs.KindInvalidArgument, "parse kind", s)
}

// Shape is an immutable point, line or polygon. Polygon points are kept as
// given; a trailing point equal to the first (within Tolerance) marks the
// ring as closed.
type Shape struct {
	kind   Kind
	points []Point
}

// NewPoint returns a point shape.
func NewPoint(p Point) Shape { return Shape{kind: KindPoint, points: []Point{p}} }

// NewLine returns a line shape from a to b.
func NewLine(a, b Point) Shape { return Shape{kind: KindLine, points: []Point{a, b}} }

// NewPolygon returns a polygon shape over a copy of pts.
func NewPolygon(pts []Point) Shape {
	return Shape{kind: KindPolygon, points: append([]Point(nil), pts...)}
}

// FromPoints classifies pts by count: one point is a Point, two a Line, and
// more than two a Polygon. An empty slice is degenerate.
func FromPoints(pts []Point) (Shape, error) {
	switch len(pts) {
	case 0:
		return Shape{}, errs.New(errs.KindDegenerateGeometry, "classify", "no coordinates")
	case 1:
		return NewPoint(pts[0]), nil
	case 2:
		return NewLine(pts[0], pts[1]), nil
	default:
		return NewPolygon(pts), nil
	}
}

// Kind returns the shape's geometric type.
func (s Shape) Kind() Kind { return s.kind }

// NumPoints returns the number of stored points.
func (s Shape) NumPoints() int { return len(s.points) }

// Points returns a copy of the stored points.
func (s Shape) Points() []Point { return append([]Point(nil), s.points...) }

// Point returns the location of a point shape, or the first vertex otherwise.
func (s Shape) Point() Point {
	if len(s.points) == 0 {
		return Point{}
	}
	return s.points[0]
}

// Line returns the segment of a line shape. For other kinds ok is false.
func (s Shape) Line() (l Line, ok bool) {
	if s.kind != KindLine || len(s.points) != 2 {
		return Line{}, false
	}
	return Line{A: s.points[0], B: s.points[1]}, true
}

// Closed reports whether a polygon's last point repeats its first.
func (s Shape) Closed() bool {
	n := len(s.points)
	return s.kind == KindPolygon && n > 1 && s.points[0].Near(s.points[n-1])
}

// Ring returns the polygon's points with the closing point appended when the
// ring is not already closed. Other kinds return their points unchanged.
func (s Shape) Ring() []Point {
	pts := s.Points()
	if s.kind == KindPolygon && len(pts) > 0 && !s.Closed() {
		pts = append(pts, pts[0])
	}
	return pts
}

// Edges returns the segments that make up the shape: the line itself, every
// polygon edge including the closing one, nothing for a point.
func (s Shape) Edges() []Line {
	switch s.kind {
	case KindLine:
		l, _ := s.Line()
		return []Line{l}
	case KindPolygon:
		ring := s.Ring()
		edges := make([]Line, 0, len(ring)-1)
		for i := 1; i < len(ring); i++ {
			edges = append(edges, Line{A: ring[i-1], B: ring[i]})
		}
		return edges
	}
	return nil
}

// Bounds returns the shape's bounding region.
func (s Shape) Bounds() Region { return RegionOf(s.points...) }

// Validate reports a degenerate shape: a zero-length line or a polygon with
// fewer than three distinct points once the closing point is dropped.
func (s Shape) Validate() error {
	switch s.kind {
	case KindPoint:
		if len(s.points) != 1 {
			return errs.Newf(errs.KindDegenerateGeometry, "validate", "point has %d coordinates", len(s.points))
		}
	case KindLine:
		if len(s.points) != 2 {
			return errs.Newf(errs.KindDegenerateGeometry, "validate", "line has %d endpoints", len(s.points))
		}
		if s.points[0].Near(s.points[1]) {
			return errs.New(errs.KindDegenerateGeometry, "validate", "zero-length line")
		}
	case KindPolygon:
		pts := s.points
		if s.Closed() {
			pts = pts[:len(pts)-1]
		}
		if n := distinctUpTo(pts, 3); n < 3 {
			return errs.Newf(errs.KindDegenerateGeometry, "validate", "polygon has %d distinct points", n)
		}
	default:
		return errs.Newf(errs.KindInvalidArgument, "validate", "unknown shape kind %d", int(s.kind))
	}
	return nil
}

// distinctUpTo counts distinct points in pts, stopping once limit is reached.
func distinctUpTo(pts []Point, limit int) int {
	var seen []Point
outer:
	for _, p := range pts {
		for _, q := range seen {
			if p.Near(q) {
				continue outer
			}
		}
		seen = append(seen, p)
		if len(seen) >= limit {
			break
		}
	}
	return len(seen)
}

// Covers reports whether p lies on the shape: at the point, on the segment,
// or inside or on the boundary of the polygon.
func (s Shape) Covers(p Point) bool { return s.CoversWithin(p, Tolerance) }

// CoversWithin is Covers with an explicit snapping distance.
func (s Shape) CoversWithin(p Point, tol float64) bool {
	switch s.kind {
	case KindPoint:
		q := s.Point()
		return math.Abs(p.X-q.X) <= tol && math.Abs(p.Y-q.Y) <= tol
	case KindLine:
		l, _ := s.Line()
		return l.distanceTo(p) <= tol
	case KindPolygon:
		ring := s.Ring()
		for i := 1; i < len(ring); i++ {
			if (Line{A: ring[i-1], B: ring[i]}).distanceTo(p) <= tol {
				return true
			}
		}
		inside := false
		for i, j := 0, len(ring)-2; i < len(ring)-1; j, i = i, i+1 {
			a, b := ring[i], ring[j]
			if (a.Y > p.Y) != (b.Y > p.Y) &&
				p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
				inside = !inside
			}
		}
		return inside
	}
	return false
}
