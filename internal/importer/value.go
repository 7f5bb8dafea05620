package importer

import (
	"fmt"
	"math"
)

// Value is one cell of an import Frame. It is a closed union: Int, Real,
// Text, Nested and Null are the only implementations.
type Value interface {
	isValue()
}

// Int is an integer cell.
type Int int64

// Real is a floating-point cell.
type Real float64

// Text is a string cell.
type Text string

// Nested is a list cell: a coordinate vector or a multi-part geometry.
type Nested []Value

// Null is a missing cell.
type Null struct{}

func (Int) isValue()    {}
func (Real) isValue()   {}
func (Text) isValue()   {}
func (Nested) isValue() {}
func (Null) isValue()   {}

// Number converts a numeric cell to float64. Null converts to NaN. ok is
// false for Text and Nested.
func Number(v Value) (f float64, ok bool) {
	switch v := v.(type) {
	case Int:
		return float64(v), true
	case Real:
		return float64(v), true
	case Null, nil:
		return math.NaN(), true
	case Text, Nested:
		return 0, false
	default:
		panic(fmt.Sprintf("importer: unknown value type %T", v))
	}
}

// Reals builds a Nested of Real values, handy for coordinate vectors.
func Reals(fs ...float64) Nested {
	out := make(Nested, len(fs))
	for i, f := range fs {
		out[i] = Real(f)
	}
	return out
}

// ColumnType is the declared type of a Frame column.
type ColumnType int

const (
	TypeInt ColumnType = iota
	TypeReal
	TypeText
	TypeNested
	TypeOther
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeReal:
		return "real"
	case TypeText:
		return "text"
	case TypeNested:
		return "nested"
	default:
		return "other"
	}
}
