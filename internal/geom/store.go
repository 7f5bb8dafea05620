package geom

import (
	"iter"
	"slices"

	"github.com/jward/sightline/internal/errs"
)

// Store maps stable references to shapes. It is append-only and keeps the
// running region of everything added.
type Store struct {
	shapes  map[int]Shape
	order   []int // insertion order
	sorted  []int // ascending
	tracker Tracker
	next    int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{shapes: make(map[int]Shape)}
}

// Add stores shape under key. Duplicate keys and degenerate shapes are
// rejected and leave the store unchanged.
func (s *Store) Add(shape Shape, key int) error {
	if _, ok := s.shapes[key]; ok {
		return errs.At(errs.KindDuplicateKey, "add shape", key, "")
	}
	if err := shape.Validate(); err != nil {
		if e, ok := err.(*errs.Error); ok {
			e.Op = "add shape"
			e.Index = key
		}
		return err
	}
	s.shapes[key] = shape
	s.order = append(s.order, key)
	if n := len(s.sorted); n == 0 || key > s.sorted[n-1] {
		s.sorted = append(s.sorted, key)
	} else {
		i, _ := slices.BinarySearch(s.sorted, key)
		s.sorted = slices.Insert(s.sorted, i, key)
	}
	s.tracker.Observe(shape.Bounds())
	if key >= s.next {
		s.next = key + 1
	}
	return nil
}

// Get returns the shape stored under key.
func (s *Store) Get(key int) (Shape, error) {
	shape, ok := s.shapes[key]
	if !ok {
		return Shape{}, errs.At(errs.KindNotFound, "get shape", key, "")
	}
	return shape, nil
}

// Has reports whether key is present.
func (s *Store) Has(key int) bool {
	_, ok := s.shapes[key]
	return ok
}

// Len returns the number of shapes.
func (s *Store) Len() int { return len(s.shapes) }

// NextKey returns one past the largest key ever added.
func (s *Store) NextKey() int { return s.next }

// Keys returns all keys in insertion order.
func (s *Store) Keys() []int { return slices.Clone(s.order) }

// Region returns the bounding region of all shapes added so far.
func (s *Store) Region() Region { return s.tracker.Region() }

// All iterates shapes in insertion order.
func (s *Store) All() iter.Seq2[int, Shape] {
	return func(yield func(int, Shape) bool) {
		for _, k := range s.order {
			if !yield(k, s.shapes[k]) {
				return
			}
		}
	}
}

// ShapesInRegion iterates every shape whose bounds intersect r, in
// ascending key order. Callers wanting a single match take the first
// element, which makes the lowest key the tie-break.
func (s *Store) ShapesInRegion(r Region) iter.Seq2[int, Shape] {
	return func(yield func(int, Shape) bool) {
		for _, k := range s.sorted {
			shape := s.shapes[k]
			if !shape.Bounds().Intersects(r) {
				continue
			}
			if !yield(k, shape) {
				return
			}
		}
	}
}

// Lines iterates line segments in insertion order: each line shape once,
// each polygon edge including the closing one. Points are skipped.
func (s *Store) Lines() iter.Seq[Line] {
	return func(yield func(Line) bool) {
		for _, k := range s.order {
			for _, l := range s.shapes[k].Edges() {
				if !yield(l) {
					return
				}
			}
		}
	}
}

// Clone returns an independent copy of the store.
func (s *Store) Clone() *Store {
	c := &Store{
		shapes:  make(map[int]Shape, len(s.shapes)),
		order:   slices.Clone(s.order),
		sorted:  slices.Clone(s.sorted),
		tracker: s.tracker,
		next:    s.next,
	}
	for k, shape := range s.shapes {
		c.shapes[k] = Shape{kind: shape.kind, points: slices.Clone(shape.points)}
	}
	return c
}
