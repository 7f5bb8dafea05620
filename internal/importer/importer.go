// Package importer converts external geometry-bearing tables into maps.
//
// An import is all-or-nothing: any structural problem (missing marker,
// missing geometry column, unsupported column type, malformed coordinates)
// fails the whole call and no map is returned. Degenerate geometry is the
// exception. Such rows are skipped, logged at WARN and reported in
// Result.Skipped, and the import carries on.
package importer

import (
	"errors"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/jward/sightline/internal/errs"
	"github.com/jward/sightline/internal/geom"
	"github.com/jward/sightline/internal/logging"
	"github.com/jward/sightline/internal/spatial"
)

// RowNameColumn holds each imported row's original identity. It is always
// the first attribute column of an imported map.
const RowNameColumn = "df_row_name"

const op = "import"

// Skip records a row dropped for degenerate geometry.
type Skip struct {
	Row    int
	Reason string
}

// Result is a successful import.
type Result struct {
	Map     *spatial.Map
	Skipped []Skip
	// MultiPart lists rows whose multi-part geometry was reduced to its
	// first part.
	MultiPart []int
}

// Imported returns the number of shapes created.
func (r *Result) Imported() int { return r.Map.Len() }

// Option configures Import.
type Option func(*options)

type options struct {
	name      string
	keyName   string
	columns   []string
	positions []int
	logger    *zap.Logger
}

// WithName sets the name of the resulting map.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithKeyColumn sets the name under which the map exposes its key column.
func WithKeyColumn(name string) Option {
	return func(o *options) { o.keyName = name }
}

// WithColumns requests extra columns by name. A name shared by several
// columns selects the first; use WithColumnPositions for the others.
func WithColumns(names ...string) Option {
	return func(o *options) { o.columns = append(o.columns, names...) }
}

// WithColumnPositions requests extra columns by 1-based position.
func WithColumnPositions(positions ...int) Option {
	return func(o *options) { o.positions = append(o.positions, positions...) }
}

// WithLogger sets the logger used for skipped-row warnings.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

type extraColumn struct {
	index  int
	name   string
	values []Value
}

// Import decodes f into a new map. Shapes get keys 0, 1, 2, ... in row
// order; skipped rows do not consume a key.
func Import(f *Frame, opts ...Option) (*Result, error) {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	log := logging.OrNop(o.logger)

	if f == nil {
		return nil, errs.New(errs.KindUnsupportedFormat, op, "nil frame")
	}
	if !f.HasClass(GeometryClass) {
		return nil, errs.Newf(errs.KindUnsupportedFormat, op, "class %q does not include %q", f.Class, GeometryClass)
	}
	geoPos, geoCol, ok := f.Column(f.GeometryColumn)
	if !ok {
		if f.GeometryColumn == "" {
			return nil, errs.New(errs.KindMissingGeometryColumn, op, "no geometry column named")
		}
		return nil, errs.Named(errs.KindMissingGeometryColumn, op, f.GeometryColumn)
	}
	if geoCol.Type != TypeNested {
		return nil, errs.At(errs.KindUnsupportedColumnType, op, geoPos, geoCol.Name).
			WithDetail("geometry column is %s, want nested", geoCol.Type)
	}

	n := len(geoCol.Values)
	for i, c := range f.Columns {
		if len(c.Values) != n {
			return nil, errs.At(errs.KindUnsupportedFormat, op, i+1, c.Name).
				WithDetail("%d values, want %d", len(c.Values), n)
		}
	}
	rowNames, err := resolveRowNames(f.RowNames, n)
	if err != nil {
		return nil, err
	}

	m := spatial.New(o.name, o.keyName)
	rowNameIdx, err := m.Attributes.AddColumn(RowNameColumn)
	if err != nil {
		return nil, err
	}
	extras, err := addExtraColumns(f, m, geoPos, o)
	if err != nil {
		return nil, err
	}

	res := &Result{Map: m}
	key := 0
	for row := range n {
		pts, parts, cerr := coordinates(geoCol.Values[row])
		if cerr == nil {
			var shape geom.Shape
			if shape, err = geom.FromPoints(pts); err == nil {
				_, err = m.Add(shape, key)
			}
		} else {
			cerr.Op, cerr.Index, cerr.Name = op, row, geoCol.Name
			err = cerr
		}
		if err != nil {
			if errors.Is(err, errs.ErrDegenerateGeometry) {
				reason := degenerateReason(err)
				log.Warn("skipping degenerate geometry", zap.Int("row", row), zap.String("reason", reason))
				res.Skipped = append(res.Skipped, Skip{Row: row, Reason: reason})
				continue
			}
			return nil, err
		}
		if parts > 1 {
			log.Debug("multi-part geometry reduced to first part", zap.Int("row", row), zap.Int("parts", parts))
			res.MultiPart = append(res.MultiPart, row)
		}

		r, err := m.Attributes.Row(key)
		if err != nil {
			return nil, err
		}
		if err := m.Attributes.SetValue(r, rowNameIdx, rowNames[row]); err != nil {
			return nil, err
		}
		for _, x := range extras {
			v, ok := Number(x.values[row])
			if !ok {
				return nil, errs.At(errs.KindUnsupportedFormat, op, row, x.name).
					WithDetail("non-numeric cell %T in numeric column", x.values[row])
			}
			if err := m.Attributes.SetValue(r, x.index, v); err != nil {
				return nil, err
			}
		}
		key++
	}

	log.Debug("import complete",
		zap.String("map", m.Name),
		zap.Int("rows", n),
		zap.Int("imported", m.Len()),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

// addExtraColumns validates the requested columns and creates their
// attribute columns, named after their position and external name.
func addExtraColumns(f *Frame, m *spatial.Map, geoPos int, o options) ([]extraColumn, error) {
	positions := make([]int, 0, len(o.columns)+len(o.positions))
	for _, name := range o.columns {
		pos, _, ok := f.Column(name)
		if !ok {
			return nil, errs.Named(errs.KindNotFound, op, name).WithDetail("requested column does not exist")
		}
		positions = append(positions, pos)
	}
	positions = append(positions, o.positions...)

	extras := make([]extraColumn, 0, len(positions))
	for _, pos := range positions {
		if pos < 1 || pos > len(f.Columns) {
			return nil, errs.At(errs.KindInvalidArgument, op, pos, "").
				WithDetail("column position out of range [1, %d]", len(f.Columns))
		}
		c := &f.Columns[pos-1]
		switch {
		case pos == geoPos:
			return nil, errs.At(errs.KindUnsupportedColumnType, op, pos, c.Name).WithDetail("geometry column")
		case c.Type != TypeInt && c.Type != TypeReal:
			return nil, errs.At(errs.KindUnsupportedColumnType, op, pos, c.Name).WithDetail("%s column", c.Type)
		case c.Factor:
			return nil, errs.At(errs.KindUnsupportedColumnType, op, pos, c.Name).WithDetail("factor column")
		}
		idx, err := m.Attributes.AddColumn(columnName(pos, c.Name))
		if err != nil {
			return nil, err
		}
		extras = append(extras, extraColumn{index: idx, name: c.Name, values: c.Values})
	}
	return extras, nil
}

func resolveRowNames(names []Value, n int) ([]float64, error) {
	out := make([]float64, n)
	if names == nil {
		for i := range out {
			out[i] = float64(i)
		}
		return out, nil
	}
	if len(names) != n {
		return nil, errs.Newf(errs.KindUnsupportedFormat, op, "%d row names for %d rows", len(names), n)
	}
	for i, v := range names {
		switch v := v.(type) {
		case Int:
			out[i] = float64(v)
		case Real:
			out[i] = float64(v)
		default:
			return nil, errs.At(errs.KindUnsupportedFormat, op, i, "").
				WithDetail("row names must be numeric, got %T", v)
		}
	}
	return out, nil
}

// coordinates flattens a geometry cell into points. Multi-part cells yield
// their first part and the number of parts.
func coordinates(v Value) ([]geom.Point, int, *errs.Error) {
	var cell Nested
	switch v := v.(type) {
	case Nested:
		cell = v
	case Null, nil:
		return nil, 0, &errs.Error{Kind: errs.KindDegenerateGeometry, Detail: "empty geometry"}
	default:
		return nil, 0, &errs.Error{Kind: errs.KindUnsupportedFormat, Detail: "geometry cell is not a list"}
	}
	if len(cell) == 0 {
		return nil, 0, &errs.Error{Kind: errs.KindDegenerateGeometry, Detail: "empty geometry"}
	}

	parts := 1
	if _, multi := cell[0].(Nested); multi {
		for i, p := range cell {
			if _, ok := p.(Nested); !ok {
				return nil, 0, &errs.Error{Kind: errs.KindUnsupportedFormat,
					Detail: "mixed multi-part geometry at part " + strconv.Itoa(i)}
			}
		}
		parts = len(cell)
		cell = cell[0].(Nested)
		if len(cell) == 0 {
			return nil, parts, &errs.Error{Kind: errs.KindDegenerateGeometry, Detail: "empty first part"}
		}
	}
	if len(cell)%2 != 0 {
		return nil, parts, &errs.Error{Kind: errs.KindUnsupportedFormat,
			Detail: "odd number of coordinates (" + strconv.Itoa(len(cell)) + ")"}
	}

	pts := make([]geom.Point, 0, len(cell)/2)
	for i := 0; i < len(cell); i += 2 {
		x, okx := Number(cell[i])
		y, oky := Number(cell[i+1])
		if !okx || !oky {
			return nil, parts, &errs.Error{Kind: errs.KindUnsupportedFormat,
				Detail: "non-numeric coordinate at " + strconv.Itoa(i)}
		}
		if math.IsNaN(x) || math.IsNaN(y) {
			return nil, parts, &errs.Error{Kind: errs.KindDegenerateGeometry, Detail: "missing coordinate"}
		}
		pts = append(pts, geom.Point{X: x, Y: y})
	}
	return pts, parts, nil
}

func degenerateReason(err error) string {
	var e *errs.Error
	if errors.As(err, &e) && e.Detail != "" {
		return e.Detail
	}
	return err.Error()
}
