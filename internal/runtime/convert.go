package runtime

import (
	"fmt"

	"github.com/risor-io/risor/object"
)

// --- Argument conversion helpers ---

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toFloat(obj object.Object) (float64, error) {
	if f, ok := obj.(*object.Float); ok {
		return f.Value(), nil
	}
	if i, ok := obj.(*object.Int); ok {
		return float64(i.Value()), nil
	}
	return 0, fmt.Errorf("expected number, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// --- Result builders ---

func stringList(vals []string) *object.List {
	out := make([]object.Object, len(vals))
	for i, v := range vals {
		out[i] = object.NewString(v)
	}
	return object.NewList(out)
}

func floatList(vals []float64) *object.List {
	out := make([]object.Object, len(vals))
	for i, v := range vals {
		out[i] = object.NewFloat(v)
	}
	return object.NewList(out)
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
