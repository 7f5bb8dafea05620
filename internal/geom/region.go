package geom

import "fmt"

// Region is an axis-aligned bounding box. The zero value is the empty
// region, which contains nothing and is the identity for Union.
type Region struct {
	MinX, MinY float64
	MaxX, MaxY float64
	set        bool
}

// NewRegion returns the box spanning the two corners in any order.
func NewRegion(x1, y1, x2, y2 float64) Region {
	return RegionOf(Point{x1, y1}, Point{x2, y2})
}

// RegionOf returns the smallest region holding every point.
func RegionOf(pts ...Point) Region {
	var r Region
	for _, p := range pts {
		r = r.Extend(p)
	}
	return r
}

// Empty reports whether the region holds no points.
func (r Region) Empty() bool { return !r.set }

// Extend returns r grown to include p.
func (r Region) Extend(p Point) Region {
	if !r.set {
		return Region{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y, set: true}
	}
	r.MinX = min(r.MinX, p.X)
	r.MinY = min(r.MinY, p.Y)
	r.MaxX = max(r.MaxX, p.X)
	r.MaxY = max(r.MaxY, p.Y)
	return r
}

// Union returns the smallest region holding both r and o.
func (r Region) Union(o Region) Region {
	if !o.set {
		return r
	}
	if !r.set {
		return o
	}
	return Region{
		MinX: min(r.MinX, o.MinX),
		MinY: min(r.MinY, o.MinY),
		MaxX: max(r.MaxX, o.MaxX),
		MaxY: max(r.MaxY, o.MaxY),
		set:  true,
	}
}

// Contains reports whether p lies inside r. Boundaries are inclusive.
func (r Region) Contains(p Point) bool {
	return r.set && p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

// Intersects reports whether r and o share at least one point. Touching
// edges count as intersecting.
func (r Region) Intersects(o Region) bool {
	return r.set && o.set &&
		r.MinX <= o.MaxX && o.MinX <= r.MaxX &&
		r.MinY <= o.MaxY && o.MinY <= r.MaxY
}

// Width returns the horizontal extent, 0 for the empty region.
func (r Region) Width() float64 {
	if !r.set {
		return 0
	}
	return r.MaxX - r.MinX
}

// Height returns the vertical extent, 0 for the empty region.
func (r Region) Height() float64 {
	if !r.set {
		return 0
	}
	return r.MaxY - r.MinY
}

func (r Region) String() string {
	if !r.set {
		return "[empty]"
	}
	return fmt.Sprintf("[%g, %g, %g, %g]", r.MinX, r.MinY, r.MaxX, r.MaxY)
}

// Tracker maintains the running region of a shape collection. It only ever
// grows.
type Tracker struct {
	region Region
}

// Observe folds b into the running region.
func (t *Tracker) Observe(b Region) {
	t.region = t.region.Union(b)
}

// Region returns the running region.
func (t *Tracker) Region() Region { return t.region }
