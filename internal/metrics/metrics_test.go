package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveImport(t *testing.T) {
	t.Parallel()
	r := New(nil)

	r.ObserveImport(9, 1, nil)
	r.ObserveImport(0, 0, errors.New("unsupported column type"))

	assert.Equal(t, 9.0, testutil.ToFloat64(r.RowsImported.WithLabelValues("imported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RowsImported.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Imports.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Imports.WithLabelValues("failure")))
}

func TestObserveAnalysis(t *testing.T) {
	t.Parallel()
	r := New(nil)
	r.ObserveAnalysis("cancelled", "cloned", 5*time.Millisecond)
	r.ObserveAnalysis("cancelled", "cloned", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Analyses.WithLabelValues("cancelled", "cloned")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Analyses.WithLabelValues("completed", "cloned")))
}

func TestNilRecorder(t *testing.T) {
	t.Parallel()
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveImport(1, 0, nil)
		r.ObserveAnalysis("completed", "borrowed", time.Second)
	})
}

func TestNew_Registers(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.ObserveImport(3, 0, nil)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sightline_import_rows_total")
	assert.Contains(t, names, "sightline_imports_total")
}
