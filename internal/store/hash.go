package store

import (
	"crypto/sha256"
	"fmt"
	"math"

	"github.com/jward/sightline/internal/attr"
	"github.com/jward/sightline/internal/spatial"
)

// ComputeMapHash computes a deterministic hash of a map's content: key
// column name, column names in order, and every row's key, shape and cells
// in iteration order. The map name does not affect the hash.
func ComputeMapHash(m *spatial.Map) string {
	h := sha256.New()
	tbl := m.Attributes

	fmt.Fprintf(h, "key:%s\n", tbl.KeyName())
	for i := range tbl.NumColumns() {
		fmt.Fprintf(h, "column:%d:%s\n", i, tbl.ColumnName(attr.ColumnAt(i)))
	}
	for key, row := range tbl.Rows() {
		fmt.Fprintf(h, "row:%d\n", key)
		if shape, err := m.Shapes.Get(key); err == nil {
			fmt.Fprintf(h, "shape:%s", shape.Kind())
			for _, p := range shape.Points() {
				fmt.Fprintf(h, ":%x,%x", math.Float64bits(p.X), math.Float64bits(p.Y))
			}
			fmt.Fprintln(h)
		}
		for i := range row.Width() {
			v := row.Value(i)
			if math.IsNaN(v) {
				continue
			}
			fmt.Fprintf(h, "cell:%d:%x\n", i, math.Float64bits(v))
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
