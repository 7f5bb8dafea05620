package importer

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/jward/sightline/internal/attr"
	"github.com/jward/sightline/internal/spatial"
)

// Schema metadata keys read by FromArrow and written by WriteArrow.
const (
	MetaClass    = "class"     // comma-separated class list, e.g. "sf,data.frame"
	MetaGeometry = "sf_column" // name of the geometry column
	MetaRowNames = "row_names" // optional column holding row identity
)

// DefaultGeometryColumn is the geometry column name WriteArrow uses.
const DefaultGeometryColumn = "geometry"

// FromArrow converts an Arrow record into a Frame. Integer and float fields
// become numeric columns, dictionary fields factor columns, string fields
// text columns and list fields nested columns. A field named by the
// row_names metadata key supplies RowNames and is not a column.
func FromArrow(rec arrow.Record) (*Frame, error) {
	return fromArrow(rec.Schema(), rec)
}

func fromArrow(schema *arrow.Schema, rec arrow.Record) (*Frame, error) {
	md := schema.Metadata()
	f := &Frame{
		Class:          splitClass(metaValue(md, MetaClass)),
		GeometryColumn: metaValue(md, MetaGeometry),
	}
	rowNamesField := metaValue(md, MetaRowNames)
	n := int(rec.NumRows())

	for i, field := range schema.Fields() {
		col := rec.Column(i)
		if rowNamesField != "" && field.Name == rowNamesField {
			names := make([]Value, n)
			for r := range n {
				names[r] = arrowValue(col, r)
			}
			f.RowNames = names
			continue
		}
		c := Column{Name: field.Name, Type: arrowColumnType(field.Type)}
		if _, ok := field.Type.(*arrow.DictionaryType); ok {
			c.Factor = true
		}
		c.Values = make([]Value, n)
		for r := range n {
			c.Values[r] = arrowValue(col, r)
		}
		f.Columns = append(f.Columns, c)
	}
	if rowNamesField != "" && f.RowNames == nil {
		return nil, fmt.Errorf("row names column %q not in schema", rowNamesField)
	}
	return f, nil
}

// ReadArrow reads every record batch of an Arrow IPC file into one Frame.
func ReadArrow(r ipc.ReadAtSeeker) (*Frame, error) {
	reader, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("open arrow file: %w", err)
	}
	defer reader.Close()

	var frame *Frame
	for i := 0; i < reader.NumRecords(); i++ {
		rec, err := reader.Record(i)
		if err != nil {
			return nil, fmt.Errorf("read record batch %d: %w", i, err)
		}
		f, err := fromArrow(reader.Schema(), rec)
		if err != nil {
			return nil, err
		}
		if frame == nil {
			frame = f
			continue
		}
		if err := frame.Append(f); err != nil {
			return nil, fmt.Errorf("record batch %d: %w", i, err)
		}
	}
	if frame == nil {
		// No batches: keep the schema so the marker checks still apply.
		md := reader.Schema().Metadata()
		frame = &Frame{
			Class:          splitClass(metaValue(md, MetaClass)),
			GeometryColumn: metaValue(md, MetaGeometry),
		}
		for _, field := range reader.Schema().Fields() {
			frame.Columns = append(frame.Columns, Column{Name: field.Name, Type: arrowColumnType(field.Type)})
		}
	}
	return frame, nil
}

// ReadArrowFile opens path and reads it with ReadArrow.
func ReadArrowFile(path string) (*Frame, error) {
	file, err := os.Open(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadArrow(file)
}

// WriteArrow writes m as a single-batch Arrow IPC file that ReadArrow and
// Import accept: the key column as int64 row names, every attribute column
// as float64 and the geometry as a list<float64> of interleaved
// coordinates.
func WriteArrow(w io.Writer, m *spatial.Map) error {
	tbl := m.Attributes
	fields := []arrow.Field{{Name: tbl.KeyName(), Type: arrow.PrimitiveTypes.Int64}}
	for i := range tbl.NumColumns() {
		fields = append(fields, arrow.Field{
			Name:     tbl.ColumnName(attr.ColumnAt(i)),
			Type:     arrow.PrimitiveTypes.Float64,
			Nullable: true,
		})
	}
	fields = append(fields, arrow.Field{Name: DefaultGeometryColumn, Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)})
	md := arrow.NewMetadata(
		[]string{MetaClass, MetaGeometry, MetaRowNames},
		[]string{GeometryClass + ",data.frame", DefaultGeometryColumn, tbl.KeyName()},
	)
	schema := arrow.NewSchema(fields, &md)

	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()

	keys := b.Field(0).(*array.Int64Builder)
	geomCol := b.Field(len(fields) - 1).(*array.ListBuilder)
	coords := geomCol.ValueBuilder().(*array.Float64Builder)
	for key, row := range tbl.Rows() {
		keys.Append(int64(key))
		for i := range tbl.NumColumns() {
			fb := b.Field(i + 1).(*array.Float64Builder)
			if v := row.Value(i); math.IsNaN(v) {
				fb.AppendNull()
			} else {
				fb.Append(v)
			}
		}
		shape, err := m.Shapes.Get(key)
		if err != nil {
			return err
		}
		geomCol.Append(true)
		for _, p := range shape.Points() {
			coords.Append(p.X)
			coords.Append(p.Y)
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err != nil {
		return fmt.Errorf("create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close arrow writer: %w", err)
	}
	return nil
}

func metaValue(md arrow.Metadata, key string) string {
	if i := md.FindKey(key); i >= 0 {
		return md.Values()[i]
	}
	return ""
}

func splitClass(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func arrowColumnType(dt arrow.DataType) ColumnType {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.DICTIONARY:
		return TypeInt
	case arrow.FLOAT32, arrow.FLOAT64:
		return TypeReal
	case arrow.STRING, arrow.LARGE_STRING:
		return TypeText
	case arrow.LIST, arrow.LARGE_LIST, arrow.FIXED_SIZE_LIST:
		return TypeNested
	default:
		return TypeOther
	}
}

// arrowValue converts one cell. Dictionary cells yield their code.
func arrowValue(col arrow.Array, i int) Value {
	if col.IsNull(i) {
		return Null{}
	}
	switch c := col.(type) {
	case *array.Int8:
		return Int(c.Value(i))
	case *array.Int16:
		return Int(c.Value(i))
	case *array.Int32:
		return Int(c.Value(i))
	case *array.Int64:
		return Int(c.Value(i))
	case *array.Uint8:
		return Int(c.Value(i))
	case *array.Uint16:
		return Int(c.Value(i))
	case *array.Uint32:
		return Int(c.Value(i))
	case *array.Uint64:
		if v := c.Value(i); v > math.MaxInt64 {
			return Real(float64(v))
		}
		return Int(c.Value(i))
	case *array.Float32:
		return Real(c.Value(i))
	case *array.Float64:
		return Real(c.Value(i))
	case *array.String:
		return Text(c.Value(i))
	case *array.LargeString:
		return Text(c.Value(i))
	case *array.Dictionary:
		return Int(c.GetValueIndex(i))
	case array.ListLike:
		start, end := c.ValueOffsets(i)
		values := c.ListValues()
		out := make(Nested, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, arrowValue(values, int(j)))
		}
		return out
	default:
		return Text(col.ValueStr(i))
	}
}
