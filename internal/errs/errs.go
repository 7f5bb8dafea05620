// Package errs defines the error taxonomy shared by the ingestion, table and
// orchestration layers.
//
// Every error carries a Kind. Sentinel values (ErrDuplicateColumn, ...) match
// any *Error of the same Kind through errors.Is, so callers can branch on the
// category without caring about the offending index or name:
//
//	if errors.Is(err, errs.ErrUnsupportedColumnType) { ... }
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes an error.
type Kind string

const (
	KindUnsupportedFormat     Kind = "unsupported_format"
	KindMissingGeometryColumn Kind = "missing_geometry_column"
	KindUnsupportedColumnType Kind = "unsupported_column_type"
	KindDuplicateColumn       Kind = "duplicate_column"
	KindDuplicateKey          Kind = "duplicate_key"
	KindNotFound              Kind = "not_found"
	KindDegenerateGeometry    Kind = "degenerate_geometry"
	KindOutOfRegion           Kind = "out_of_region"
	KindNotOnFilledCell       Kind = "not_on_filled_cell"
	KindCancelled             Kind = "cancelled"
	KindMismatchedInputSizes  Kind = "mismatched_input_sizes"
	KindInvalidArgument       Kind = "invalid_argument"
)

// NoIndex marks an Error that does not refer to a row or column position.
const NoIndex = -1

// Error is the structured error type used throughout sightline.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "add column"
	Index  int    // offending row/column index, NoIndex if not applicable
	Name   string // offending column name, if any
	Detail string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	switch {
	case e.Index != NoIndex && e.Name != "":
		fmt.Fprintf(&b, " (%d: %s)", e.Index, e.Name)
	case e.Index != NoIndex:
		fmt.Fprintf(&b, " (%d)", e.Index)
	case e.Name != "":
		fmt.Fprintf(&b, " (%s)", e.Name)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind. Only the Kind is
// compared, which lets the package sentinels match detailed errors.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnsupportedFormat     = &Error{Kind: KindUnsupportedFormat, Index: NoIndex}
	ErrMissingGeometryColumn = &Error{Kind: KindMissingGeometryColumn, Index: NoIndex}
	ErrUnsupportedColumnType = &Error{Kind: KindUnsupportedColumnType, Index: NoIndex}
	ErrDuplicateColumn       = &Error{Kind: KindDuplicateColumn, Index: NoIndex}
	ErrDuplicateKey          = &Error{Kind: KindDuplicateKey, Index: NoIndex}
	ErrNotFound              = &Error{Kind: KindNotFound, Index: NoIndex}
	ErrDegenerateGeometry    = &Error{Kind: KindDegenerateGeometry, Index: NoIndex}
	ErrOutOfRegion           = &Error{Kind: KindOutOfRegion, Index: NoIndex}
	ErrNotOnFilledCell       = &Error{Kind: KindNotOnFilledCell, Index: NoIndex}
	ErrCancelled             = &Error{Kind: KindCancelled, Index: NoIndex}
	ErrMismatchedInputSizes  = &Error{Kind: KindMismatchedInputSizes, Index: NoIndex}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument, Index: NoIndex}
)

// New returns an Error of the given kind with no index or name.
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Index: NoIndex, Detail: detail}
}

// Newf is New with a formatted detail.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// At returns an Error naming the offending index and name.
func At(kind Kind, op string, index int, name string) *Error {
	return &Error{Kind: kind, Op: op, Index: index, Name: name}
}

// Named returns an Error naming the offending column or key.
func Named(kind Kind, op, name string) *Error {
	return &Error{Kind: kind, Op: op, Index: NoIndex, Name: name}
}

// WithDetail sets the detail message and returns e.
func (e *Error) WithDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
