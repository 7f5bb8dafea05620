package runtime

import (
	"context"
	"math"
	"slices"

	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/sightline/internal/geom"
	"github.com/jward/sightline/internal/spatial"
)

// session is the per-run state behind the host functions: the working map,
// the progress sink, and the columns the script has touched.
type session struct {
	m    *spatial.Map
	sink spatial.ProgressSink
	log  *zap.Logger

	touched   []string
	completed bool
	cancelled bool
}

func newSession(m *spatial.Map, sink spatial.ProgressSink, log *zap.Logger) *session {
	return &session{m: m, sink: sink, log: log, completed: true}
}

func (s *session) touch(name string) {
	if !slices.Contains(s.touched, name) {
		s.touched = append(s.touched, name)
	}
}

func (s *session) written() []string { return slices.Clone(s.touched) }

// globals constructs the full set of globals exposed to a script run.
func (s *session) globals() map[string]any {
	return map[string]any{
		"map_name":             object.NewString(s.m.Name),
		"key_column":           object.NewString(s.m.Attributes.KeyName()),
		"num_rows":             s.numRowsFn(),
		"keys":                 s.keysFn(),
		"column_names":         s.columnNamesFn(),
		"column":               s.columnFn(),
		"column_index":         s.columnIndexFn(),
		"add_column":           s.addColumnFn("add_column", false),
		"get_or_insert_column": s.addColumnFn("get_or_insert_column", true),
		"get":                  s.getFn(),
		"set":                  s.setFn(),
		"shape":                s.shapeFn(),
		"shape_attributes":     s.shapeAttributesFn(),
		"shapes_in_region":     s.shapesInRegionFn(),
		"region":               s.regionFn(),
		"is_nan":               isNaNFn(),
		"tick":                 s.tickFn(),
		"completed":            s.completedFn(),
		"log":                  mustProxy(&logObject{log: s.log}),
	}
}

// num_rows() → int
func (s *session) numRowsFn() *object.Builtin {
	return object.NewBuiltin("num_rows", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("num_rows", 0, len(args))
		}
		return object.NewInt(int64(s.m.Attributes.NumRows()))
	})
}

// keys() → []int, in row insertion order
func (s *session) keysFn() *object.Builtin {
	return object.NewBuiltin("keys", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("keys", 0, len(args))
		}
		keys := s.m.Attributes.Keys()
		out := make([]object.Object, len(keys))
		for i, k := range keys {
			out[i] = object.NewInt(int64(k))
		}
		return object.NewList(out)
	})
}

// column_names() → []string, key column first
func (s *session) columnNamesFn() *object.Builtin {
	return object.NewBuiltin("column_names", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("column_names", 0, len(args))
		}
		return stringList(s.m.Attributes.ColumnNames())
	})
}

// column(name) → []float, one value per row in insertion order
func (s *session) columnFn() *object.Builtin {
	return object.NewBuiltin("column", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("column", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("column: name: %v", err)
		}
		vals, err := s.m.Attributes.ColumnValues(name)
		if err != nil {
			return object.NewError(err)
		}
		return floatList(vals)
	})
}

// column_index(name) → int
func (s *session) columnIndexFn() *object.Builtin {
	return object.NewBuiltin("column_index", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("column_index", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("column_index: name: %v", err)
		}
		idx, err := s.m.Attributes.ColumnIndex(name)
		if err != nil {
			return object.NewError(err)
		}
		return object.NewInt(int64(idx))
	})
}

// add_column(name) → int, fails on a duplicate name
// get_or_insert_column(name) → int
func (s *session) addColumnFn(fn string, reuse bool) *object.Builtin {
	return object.NewBuiltin(fn, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(fn, 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("%s: name: %v", fn, err)
		}
		var idx int
		if reuse {
			idx, err = s.m.Attributes.GetOrInsertColumn(name)
		} else {
			idx, err = s.m.Attributes.AddColumn(name)
		}
		if err != nil {
			return object.NewError(err)
		}
		s.touch(name)
		return object.NewInt(int64(idx))
	})
}

// get(key, name) → float; name may be the key column
func (s *session) getFn() *object.Builtin {
	return object.NewBuiltin("get", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("get", 2, len(args))
		}
		key, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("get: key: %v", err)
		}
		name, err := toString(args[1])
		if err != nil {
			return object.Errorf("get: column: %v", err)
		}
		ref, err := s.m.Attributes.Resolve(name)
		if err != nil {
			return object.NewError(err)
		}
		row, err := s.m.Attributes.Row(int(key))
		if err != nil {
			return object.NewError(err)
		}
		return object.NewFloat(s.m.Attributes.Value(row, ref))
	})
}

// set(key, name, value) → nil
func (s *session) setFn() *object.Builtin {
	return object.NewBuiltin("set", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("set", 3, len(args))
		}
		key, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("set: key: %v", err)
		}
		name, err := toString(args[1])
		if err != nil {
			return object.Errorf("set: column: %v", err)
		}
		v, err := toFloat(args[2])
		if err != nil {
			return object.Errorf("set: value: %v", err)
		}
		idx, err := s.m.Attributes.ColumnIndex(name)
		if err != nil {
			return object.NewError(err)
		}
		row, err := s.m.Attributes.Row(int(key))
		if err != nil {
			return object.NewError(err)
		}
		if err := s.m.Attributes.SetValue(row, idx, v); err != nil {
			return object.NewError(err)
		}
		s.touch(name)
		return object.Nil
	})
}

// shape(key) → {"kind": string, "points": [[x, y], ...], "closed": bool}
func (s *session) shapeFn() *object.Builtin {
	return object.NewBuiltin("shape", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("shape", 1, len(args))
		}
		key, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("shape: key: %v", err)
		}
		shape, err := s.m.Shapes.Get(int(key))
		if err != nil {
			return object.NewError(err)
		}
		return shapeObject(shape)
	})
}

// shape_attributes(key) → {column: float}
func (s *session) shapeAttributesFn() *object.Builtin {
	return object.NewBuiltin("shape_attributes", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("shape_attributes", 1, len(args))
		}
		key, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("shape_attributes: key: %v", err)
		}
		vals, err := s.m.ShapeAttributes(int(key))
		if err != nil {
			return object.NewError(err)
		}
		out := make(map[string]object.Object, len(vals))
		for name, v := range vals {
			out[name] = object.NewFloat(v)
		}
		return object.NewMap(out)
	})
}

// shapes_in_region(min_x, min_y, max_x, max_y) → []int in key order
func (s *session) shapesInRegionFn() *object.Builtin {
	return object.NewBuiltin("shapes_in_region", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 4 {
			return object.NewArgsError("shapes_in_region", 4, len(args))
		}
		var c [4]float64
		for i, a := range args {
			v, err := toFloat(a)
			if err != nil {
				return object.Errorf("shapes_in_region: argument %d: %v", i+1, err)
			}
			c[i] = v
		}
		out := []object.Object{}
		for key := range s.m.Shapes.ShapesInRegion(geom.NewRegion(c[0], c[1], c[2], c[3])) {
			out = append(out, object.NewInt(int64(key)))
		}
		return object.NewList(out)
	})
}

// region() → {"min_x", "min_y", "max_x", "max_y"} or nil for an empty map
func (s *session) regionFn() *object.Builtin {
	return object.NewBuiltin("region", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("region", 0, len(args))
		}
		r := s.m.Region()
		if r.Empty() {
			return object.Nil
		}
		return object.NewMap(map[string]object.Object{
			"min_x": object.NewFloat(r.MinX),
			"min_y": object.NewFloat(r.MinY),
			"max_x": object.NewFloat(r.MaxX),
			"max_y": object.NewFloat(r.MaxY),
		})
	})
}

// is_nan(value) → bool
func isNaNFn() *object.Builtin {
	return object.NewBuiltin("is_nan", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("is_nan", 1, len(args))
		}
		v, err := toFloat(args[0])
		if err != nil {
			return object.Errorf("is_nan: %v", err)
		}
		return object.NewBool(math.IsNaN(v))
	})
}

// tick(current, total) → true
//
// Raises an error that ends the script once the caller has asked for
// cancellation. Without a sink every tick continues.
func (s *session) tickFn() *object.Builtin {
	return object.NewBuiltin("tick", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("tick", 2, len(args))
		}
		current, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("tick: current: %v", err)
		}
		total, err := toInt64(args[1])
		if err != nil {
			return object.Errorf("tick: total: %v", err)
		}
		if s.cancelled {
			return object.Errorf("tick: cancelled")
		}
		if s.sink != nil && s.sink.Tick(int(current), int(total)) == spatial.Cancel {
			s.cancelled = true
			s.log.Debug("script cancelled", zap.Int64("current", current), zap.Int64("total", total))
			return object.Errorf("tick: cancelled at %d of %d", current, total)
		}
		return object.True
	})
}

// completed(flag) → nil; a script calls completed(false) to report a
// partial result.
func (s *session) completedFn() *object.Builtin {
	return object.NewBuiltin("completed", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("completed", 1, len(args))
		}
		b, ok := args[0].(*object.Bool)
		if !ok {
			return object.Errorf("completed: expected bool, got %s", args[0].Type())
		}
		s.completed = b.Value()
		return object.Nil
	})
}

func shapeObject(shape geom.Shape) object.Object {
	pts := shape.Points()
	list := make([]object.Object, len(pts))
	for i, p := range pts {
		list[i] = object.NewList([]object.Object{object.NewFloat(p.X), object.NewFloat(p.Y)})
	}
	return object.NewMap(map[string]object.Object{
		"kind":   object.NewString(shape.Kind().String()),
		"points": object.NewList(list),
		"closed": object.NewBool(shape.Closed()),
	})
}

// logObject provides log.Info/Warn/Error/Debug methods for Risor scripts.
type logObject struct {
	log *zap.Logger
}

func (l *logObject) Debug(msg string) { l.log.Debug(msg) }
func (l *logObject) Info(msg string)  { l.log.Info(msg) }
func (l *logObject) Warn(msg string)  { l.log.Warn(msg) }
func (l *logObject) Error(msg string) { l.log.Error(msg) }
