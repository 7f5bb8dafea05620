// Package spatial ties geometry and attributes together into a Map and
// defines the progress protocol long-running analyses poll for
// cancellation.
package spatial

import (
	"fmt"
	"slices"

	"github.com/jward/sightline/internal/attr"
	"github.com/jward/sightline/internal/errs"
	"github.com/jward/sightline/internal/geom"
)

// Map is a shape store and its attribute table. Every shape key has exactly
// one attribute row under the same key and vice versa.
type Map struct {
	Name       string
	Shapes     *geom.Store
	Attributes *attr.Table
}

// New returns an empty map whose key column is exposed as keyName.
func New(name, keyName string) *Map {
	return &Map{
		Name:       name,
		Shapes:     geom.NewStore(),
		Attributes: attr.NewTable(keyName),
	}
}

// Add stores shape and an all-NaN attribute row under key. Nothing is added
// if either side rejects the key or the shape.
func (m *Map) Add(shape geom.Shape, key int) (*attr.Row, error) {
	if m.Attributes.HasRow(key) {
		return nil, errs.At(errs.KindDuplicateKey, "add shape", key, "")
	}
	if err := m.Shapes.Add(shape, key); err != nil {
		return nil, err
	}
	return m.Attributes.AddRow(key)
}

// Len returns the number of shapes, which is also the number of rows.
func (m *Map) Len() int { return m.Shapes.Len() }

// Region returns the bounding region of the map's shapes.
func (m *Map) Region() geom.Region { return m.Shapes.Region() }

// Clone returns a deep copy of the map's region, geometry and attributes.
func (m *Map) Clone() *Map {
	return &Map{
		Name:       m.Name,
		Shapes:     m.Shapes.Clone(),
		Attributes: m.Attributes.Clone(),
	}
}

// ShapeAttributes returns every attribute of the shape under key by column
// name, the key column included.
func (m *Map) ShapeAttributes(key int) (map[string]float64, error) {
	if _, err := m.Shapes.Get(key); err != nil {
		return nil, err
	}
	row, err := m.Attributes.Row(key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, m.Attributes.NumColumns()+1)
	out[m.Attributes.KeyName()] = float64(key)
	for i := range m.Attributes.NumColumns() {
		out[m.Attributes.ColumnName(attr.ColumnAt(i))] = row.Value(i)
	}
	return out, nil
}

// Check verifies that shape keys and attribute row keys are the same set.
func (m *Map) Check() error {
	if m.Shapes.Len() != m.Attributes.NumRows() {
		return fmt.Errorf("map %q: %d shapes but %d attribute rows", m.Name, m.Shapes.Len(), m.Attributes.NumRows())
	}
	shapeKeys := slices.Sorted(slices.Values(m.Shapes.Keys()))
	rowKeys := slices.Sorted(slices.Values(m.Attributes.Keys()))
	if !slices.Equal(shapeKeys, rowKeys) {
		return fmt.Errorf("map %q: shape keys and attribute row keys differ", m.Name)
	}
	return nil
}
