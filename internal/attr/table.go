// Package attr implements the attribute table: a dynamic columnar store of
// float64 cells keyed by a stable integer reference.
//
// Rows are dense vectors with one cell per column. Adding a column extends
// every existing row with NaN, so Row.Width always equals Table.NumColumns.
// Columns are append-only: once added they are never removed or reordered.
package attr

import (
	"iter"
	"math"

	"github.com/jward/sightline/internal/errs"
)

// DefaultKeyColumn is the name under which the row key is exposed when no
// other name is configured.
const DefaultKeyColumn = "Ref"

// ColumnRef addresses either the key pseudo-column or a regular column by
// index. The zero value is not valid; use KeyRef or ColumnAt.
type ColumnRef struct {
	index int
	isKey bool
	valid bool
}

// KeyRef returns a reference to the key pseudo-column.
func KeyRef() ColumnRef { return ColumnRef{isKey: true, valid: true} }

// ColumnAt returns a reference to the regular column at index i.
func ColumnAt(i int) ColumnRef { return ColumnRef{index: i, valid: true} }

// IsKey reports whether c refers to the key pseudo-column.
func (c ColumnRef) IsKey() bool { return c.valid && c.isKey }

// Index returns the column index and true for a regular column reference.
func (c ColumnRef) Index() (int, bool) {
	if !c.valid || c.isKey {
		return 0, false
	}
	return c.index, true
}

// Row is a handle to one row of a Table. It stays valid for the lifetime of
// the table, including across column additions.
type Row struct {
	key   int
	cells []float64
}

// Key returns the row's stable reference.
func (r *Row) Key() int { return r.key }

// Width returns the number of cells in the row.
func (r *Row) Width() int { return len(r.cells) }

// Value returns the cell at col, NaN if unset or out of range.
func (r *Row) Value(col int) float64 {
	if col < 0 || col >= len(r.cells) {
		return math.NaN()
	}
	return r.cells[col]
}

// Table is the attribute table of a single map. It is not safe for
// concurrent mutation; a map is owned by one call chain at a time.
type Table struct {
	keyName string
	names   []string
	byName  map[string]int
	rows    []*Row      // insertion order
	byKey   map[int]int // key -> position in rows
}

// NewTable creates an empty table whose key column is exposed as keyName.
// An empty keyName selects DefaultKeyColumn.
func NewTable(keyName string) *Table {
	if keyName == "" {
		keyName = DefaultKeyColumn
	}
	return &Table{
		keyName: keyName,
		byName:  make(map[string]int),
		byKey:   make(map[int]int),
	}
}

// KeyName returns the name of the key pseudo-column.
func (t *Table) KeyName() string { return t.keyName }

// NumColumns returns the number of regular columns.
func (t *Table) NumColumns() int { return len(t.names) }

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rows) }

// AddColumn appends a new column and extends every existing row with NaN.
// The name must be non-empty and unique (exact, case-sensitive match); the
// key column name is reserved as well. On error the table is unchanged.
func (t *Table) AddColumn(name string) (int, error) {
	if name == "" {
		return 0, errs.New(errs.KindInvalidArgument, "add column", "column name is empty")
	}
	if name == t.keyName {
		return 0, errs.Named(errs.KindDuplicateColumn, "add column", name).
			WithDetail("name is reserved for the key column")
	}
	if idx, ok := t.byName[name]; ok {
		return 0, errs.At(errs.KindDuplicateColumn, "add column", idx, name)
	}
	idx := len(t.names)
	t.names = append(t.names, name)
	t.byName[name] = idx
	for _, r := range t.rows {
		r.cells = append(r.cells, math.NaN())
	}
	return idx, nil
}

// GetOrInsertColumn returns the index of name, adding the column first if
// it does not exist yet. Repeated computations use this so that re-running
// a measure does not duplicate its column.
func (t *Table) GetOrInsertColumn(name string) (int, error) {
	if idx, ok := t.byName[name]; ok {
		return idx, nil
	}
	return t.AddColumn(name)
}

// ColumnIndex returns the index of a regular column.
func (t *Table) ColumnIndex(name string) (int, error) {
	idx, ok := t.byName[name]
	if !ok {
		return 0, errs.Named(errs.KindNotFound, "column index", name)
	}
	return idx, nil
}

// Resolve returns a ColumnRef for name, which may be the key column name.
func (t *Table) Resolve(name string) (ColumnRef, error) {
	if name == t.keyName {
		return KeyRef(), nil
	}
	idx, err := t.ColumnIndex(name)
	if err != nil {
		return ColumnRef{}, err
	}
	return ColumnAt(idx), nil
}

// ColumnName returns the name of the referenced column, or "" if the
// reference is out of range.
func (t *Table) ColumnName(ref ColumnRef) string {
	if ref.IsKey() {
		return t.keyName
	}
	idx, ok := ref.Index()
	if !ok || idx < 0 || idx >= len(t.names) {
		return ""
	}
	return t.names[idx]
}

// ColumnNames returns the key column name followed by all regular column
// names in insertion order.
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.names)+1)
	names = append(names, t.keyName)
	return append(names, t.names...)
}

// AddRow appends a row of NaN cells under key.
func (t *Table) AddRow(key int) (*Row, error) {
	if _, ok := t.byKey[key]; ok {
		return nil, errs.At(errs.KindDuplicateKey, "add row", key, "")
	}
	cells := make([]float64, len(t.names))
	for i := range cells {
		cells[i] = math.NaN()
	}
	r := &Row{key: key, cells: cells}
	t.byKey[key] = len(t.rows)
	t.rows = append(t.rows, r)
	return r, nil
}

// Row returns the row stored under key.
func (t *Table) Row(key int) (*Row, error) {
	pos, ok := t.byKey[key]
	if !ok {
		return nil, errs.At(errs.KindNotFound, "get row", key, "")
	}
	return t.rows[pos], nil
}

// HasRow reports whether a row exists under key.
func (t *Table) HasRow(key int) bool {
	_, ok := t.byKey[key]
	return ok
}

// SetValue stores v in column col of row r.
func (t *Table) SetValue(r *Row, col int, v float64) error {
	if col < 0 || col >= len(t.names) {
		return errs.At(errs.KindNotFound, "set value", col, "")
	}
	r.cells[col] = v
	return nil
}

// Value reads the referenced column of row r. The key column yields the key.
func (t *Table) Value(r *Row, ref ColumnRef) float64 {
	if ref.IsKey() {
		return float64(r.key)
	}
	idx, ok := ref.Index()
	if !ok {
		return math.NaN()
	}
	return r.Value(idx)
}

// Rows iterates rows in key-insertion order. The sequence is restartable
// and stable as long as no rows or columns are added during traversal.
func (t *Table) Rows() iter.Seq2[int, *Row] {
	return func(yield func(int, *Row) bool) {
		for _, r := range t.rows {
			if !yield(r.key, r) {
				return
			}
		}
	}
}

// Keys returns all row keys in insertion order.
func (t *Table) Keys() []int {
	keys := make([]int, len(t.rows))
	for i, r := range t.rows {
		keys[i] = r.key
	}
	return keys
}

// ColumnValues returns one value per row, in iteration order, for the named
// column. The key column name yields the row keys.
func (t *Table) ColumnValues(name string) ([]float64, error) {
	ref, err := t.Resolve(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = t.Value(r, ref)
	}
	return out, nil
}

// Clone returns a fully independent deep copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{
		keyName: t.keyName,
		names:   append([]string(nil), t.names...),
		byName:  make(map[string]int, len(t.byName)),
		rows:    make([]*Row, len(t.rows)),
		byKey:   make(map[int]int, len(t.byKey)),
	}
	for name, idx := range t.byName {
		c.byName[name] = idx
	}
	for i, r := range t.rows {
		c.rows[i] = &Row{key: r.key, cells: append([]float64(nil), r.cells...)}
		c.byKey[r.key] = i
	}
	return c
}
