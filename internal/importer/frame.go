package importer

import (
	"fmt"
	"slices"

	"github.com/jward/sightline/internal/errs"
)

// GeometryClass is the class marker a Frame must carry to be imported.
const GeometryClass = "sf"

// Column is one named column of a Frame.
type Column struct {
	Name   string
	Type   ColumnType
	Factor bool // categorical codes rather than measurements
	Values []Value
}

// Frame is an external geometry-bearing table.
//
// Geometry cells are Nested values. A Nested of numbers holds interleaved
// coordinates x0, y0, x1, y1, ...; a Nested of Nested values is a multi-part
// feature whose parts each hold interleaved coordinates.
type Frame struct {
	Class          []string // must contain GeometryClass
	GeometryColumn string   // name of the column holding geometry cells
	RowNames       []Value  // row identity; nil means 0..n-1
	Columns        []Column
}

// NumRows returns the number of rows, taken from the geometry column when
// present and the first column otherwise.
func (f *Frame) NumRows() int {
	if _, c, ok := f.Column(f.GeometryColumn); ok {
		return len(c.Values)
	}
	if len(f.Columns) > 0 {
		return len(f.Columns[0].Values)
	}
	return len(f.RowNames)
}

// Column returns the first column called name and its 1-based position.
func (f *Frame) Column(name string) (position int, c *Column, ok bool) {
	if name == "" {
		return 0, nil, false
	}
	for i := range f.Columns {
		if f.Columns[i].Name == name {
			return i + 1, &f.Columns[i], true
		}
	}
	return 0, nil, false
}

// HasClass reports whether the frame carries class.
func (f *Frame) HasClass(class string) bool {
	return slices.Contains(f.Class, class)
}

// Append adds the rows of o to f. Both frames must have the same columns in
// the same order.
func (f *Frame) Append(o *Frame) error {
	if len(f.Columns) != len(o.Columns) {
		return fmt.Errorf("append frame: %d columns, want %d", len(o.Columns), len(f.Columns))
	}
	for i := range f.Columns {
		if f.Columns[i].Name != o.Columns[i].Name || f.Columns[i].Type != o.Columns[i].Type {
			return fmt.Errorf("append frame: column %d is %s %s, want %s %s", i+1,
				o.Columns[i].Name, o.Columns[i].Type, f.Columns[i].Name, f.Columns[i].Type)
		}
	}
	if (f.RowNames == nil) != (o.RowNames == nil) {
		return fmt.Errorf("append frame: row names present in only one frame")
	}
	for i := range f.Columns {
		f.Columns[i].Values = append(f.Columns[i].Values, o.Columns[i].Values...)
	}
	f.RowNames = append(f.RowNames, o.RowNames...)
	return nil
}

// ExpectedColumnName returns the attribute column name the importer
// creates for the frame column at the 1-based position.
func ExpectedColumnName(f *Frame, position int) (string, error) {
	if position < 1 || position > len(f.Columns) {
		return "", errs.At(errs.KindInvalidArgument, "expected column name", position, "").
			WithDetail("position out of range [1, %d]", len(f.Columns))
	}
	return columnName(position, f.Columns[position-1].Name), nil
}

func columnName(position int, name string) string {
	return fmt.Sprintf("df_%d_%s", position, name)
}
