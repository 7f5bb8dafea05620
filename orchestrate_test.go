package sightline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jward/sightline/internal/errs"
	"github.com/jward/sightline/internal/metrics"
	"github.com/jward/sightline/internal/spatial"
)

// addColumns returns an analysis that creates the named columns and fills
// them on every row.
func addColumns(names ...string) AnalysisFunc {
	return func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error) {
		res := EngineResult{Completed: true}
		for _, name := range names {
			col, err := m.Attributes.GetOrInsertColumn(name)
			if err != nil {
				return res, err
			}
			res.Columns = append(res.Columns, name)
			for key, row := range m.Attributes.Rows() {
				if err := m.Attributes.SetValue(row, col, float64(key)); err != nil {
					return res, err
				}
			}
		}
		return res, nil
	}
}

// tickingAnalysis writes "visited" row by row, polling sink before each
// row. interruptAt > 0 interrupts w after that many ticks.
func tickingAnalysis(w *WorkingMap, interruptAt int, ticks *int) AnalysisFunc {
	return func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error) {
		res := EngineResult{Completed: true, Columns: []string{"visited"}}
		col, err := m.Attributes.AddColumn("visited")
		if err != nil {
			return EngineResult{}, err
		}
		total := m.Attributes.NumRows()
		i := 0
		for _, row := range m.Attributes.Rows() {
			i++
			*ticks = i
			if sink.Tick(i, total) == spatial.Cancel {
				res.Completed = false
				return res, errs.New(errs.KindCancelled, "visit", "interrupted")
			}
			if err := m.Attributes.SetValue(row, col, 1); err != nil {
				return res, err
			}
			if i == interruptAt {
				w.Interrupt()
			}
		}
		return res, nil
	}
}

// =============================================================================
// Map access
// =============================================================================

func TestAnalyse_ClonedLeavesOriginalUntouched(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	h := e.Register(filledMap(t))

	rep, err := e.Analyse(context.Background(), h, Cloned, addColumns("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, Completed, rep.State)
	assert.True(t, rep.Completed)
	assert.False(t, rep.Cancelled)
	assert.Equal(t, []string{"a", "b"}, rep.Columns)
	assert.Equal(t, h, rep.Source)
	assert.NotEqual(t, h, rep.Handle)
	assert.NotEmpty(t, rep.RunID)

	orig, err := e.Map(h)
	require.NoError(t, err)
	assert.Equal(t, 1, orig.Attributes.NumColumns(), "original keeps its column count")
	depth, err := orig.Attributes.ColumnValues("depth")
	require.NoError(t, err)
	assert.Len(t, depth, 10)

	result, err := e.Map(rep.Handle)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attributes.NumColumns())
	assert.Equal(t, Results, e.Handles()[1].Registry)
}

func TestAnalyse_BorrowedMutatesInPlace(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	h := e.Register(filledMap(t))

	rep, err := e.Analyse(context.Background(), h, Borrowed, addColumns("a"))
	require.NoError(t, err)
	assert.Equal(t, h, rep.Handle)

	m, err := e.Map(h)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Attributes.NumColumns())
	require.Len(t, e.Handles(), 1)
	assert.Equal(t, Imported, e.Handles()[0].Registry)
}

func TestAnalyse_OwnedMovesToResults(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	h := e.Register(filledMap(t))

	rep, err := e.Analyse(context.Background(), h, Owned, addColumns("a"))
	require.NoError(t, err)
	assert.Equal(t, h, rep.Handle)
	assert.Equal(t, Owned, rep.Access)

	infos := e.Handles()
	require.Len(t, infos, 1)
	assert.Equal(t, h, infos[0].Handle)
	assert.Equal(t, Results, infos[0].Registry)
	assert.Equal(t, 2, infos[0].Columns)
}

func TestWithMap_States(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	h := e.Register(filledMap(t))

	w, err := e.WithMap(context.Background(), h, Cloned)
	require.NoError(t, err)
	assert.Equal(t, Copying, w.State())
	assert.Equal(t, Cloned, w.Access())
	orig, _ := e.Map(h)
	assert.NotSame(t, orig, w.Map())

	b, err := e.WithMap(context.Background(), h, Borrowed)
	require.NoError(t, err)
	assert.Equal(t, Idle, b.State())
	assert.Same(t, orig, b.Map())

	_, err = e.WithMap(context.Background(), h, MapAccess(9))
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	_, err = e.WithMap(context.Background(), Handle(99), Borrowed)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestParseMapAccess(t *testing.T) {
	t.Parallel()
	for _, a := range []MapAccess{Borrowed, Owned, Cloned} {
		got, err := ParseMapAccess(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	_, err := ParseMapAccess("shared")
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
	assert.Equal(t, "state(42)", State(42).String())
}

// =============================================================================
// Cancellation
// =============================================================================

func TestRun_CancelAfterNTicks(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	h := e.Register(filledMap(t))

	w, err := e.WithMap(context.Background(), h, Cloned)
	require.NoError(t, err)
	var ticks int
	rep, err := e.Run(context.Background(), w, tickingAnalysis(w, 4, &ticks))
	require.NoError(t, err, "cancellation is not an error")

	assert.Equal(t, Cancelled, rep.State)
	assert.True(t, rep.Cancelled)
	assert.False(t, rep.Completed)
	assert.Equal(t, []string{"visited"}, rep.Columns)
	assert.Zero(t, rep.Handle, "cancelled copy is discarded")
	assert.Equal(t, 5, ticks, "fifth tick observes the interrupt")
	assert.Equal(t, Cancelled, w.State())

	orig, err := e.Map(h)
	require.NoError(t, err)
	assert.Equal(t, 1, orig.Attributes.NumColumns())
	assert.Len(t, e.Handles(), 1)
}

func TestRun_NoInterruptCompletes(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	h := e.Register(filledMap(t))

	w, err := e.WithMap(context.Background(), h, Cloned)
	require.NoError(t, err)
	var ticks int
	rep, err := e.Run(context.Background(), w, tickingAnalysis(w, 0, &ticks))
	require.NoError(t, err)
	assert.Equal(t, Completed, rep.State)
	assert.True(t, rep.Completed)
	assert.Equal(t, 10, ticks)
}

func TestRun_ContextCancelled(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	h := e.Register(filledMap(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, err := e.WithMap(ctx, h, Borrowed)
	require.NoError(t, err)
	var ticks int
	rep, err := e.Run(ctx, w, tickingAnalysis(w, 0, &ticks))
	require.NoError(t, err)
	assert.True(t, rep.Cancelled)
	assert.Equal(t, 1, ticks)
	assert.Equal(t, h, rep.Handle, "borrowed map stays registered")
}

func TestRun_RunContextCancelsSink(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	h := e.Register(filledMap(t))

	w, err := e.WithMap(context.Background(), h, Cloned)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ticks int
	rep, err := e.Run(ctx, w, tickingAnalysis(w, 0, &ticks))
	require.NoError(t, err)

	assert.Equal(t, Cancelled, rep.State)
	assert.True(t, rep.Cancelled)
	assert.False(t, rep.Completed)
	assert.Equal(t, 1, ticks)
	assert.Zero(t, rep.Handle, "cancelled copy is discarded")
	assert.Len(t, e.Handles(), 1)
}

func TestWithMap_DoneContextSkipsCopy(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	h := e.Register(filledMap(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.WithMap(ctx, h, Cloned)
	assert.True(t, errors.Is(err, errs.ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))

	called := false
	rep, err := e.Analyse(ctx, h, Cloned, func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error) {
		called = true
		return EngineResult{Completed: true}, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, Cancelled, rep.State)
	assert.True(t, rep.Cancelled)
	assert.Zero(t, rep.Handle)
	assert.Len(t, e.Handles(), 1, "no copy registered")
}

func TestRun_WorkingMapSingleUse(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	h := e.Register(filledMap(t))

	w, err := e.WithMap(context.Background(), h, Borrowed)
	require.NoError(t, err)
	_, err = e.Run(context.Background(), w, addColumns("a"))
	require.NoError(t, err)
	_, err = e.Run(context.Background(), w, addColumns("b"))
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

// =============================================================================
// Failure
// =============================================================================

func TestAnalyse_EngineErrorFails(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	h := e.Register(filledMap(t))

	boom := errors.New("engine exploded")
	fn := Phases(addColumns("a"), func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error) {
		return EngineResult{Columns: []string{"b"}}, boom
	})
	rep, err := e.Analyse(context.Background(), h, Cloned, fn)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, rep.State)
	assert.False(t, rep.Completed)
	assert.Equal(t, []string{"a", "b"}, rep.Columns, "earlier phases keep their columns")
	assert.Zero(t, rep.Handle)
	assert.Len(t, e.Handles(), 1, "failed copy is discarded")
}

func TestAnalyse_UnknownHandleFails(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	rep, err := e.Analyse(context.Background(), Handle(7), Cloned, addColumns("a"))
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Equal(t, Failed, rep.State)
	assert.Equal(t, Handle(7), rep.Source)
}

// =============================================================================
// Aggregation
// =============================================================================

func TestPhases_AndsCompletedAndUnionsColumns(t *testing.T) {
	t.Parallel()
	partial := func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error) {
		return EngineResult{Completed: false, Columns: []string{"b", "a"}}, nil
	}
	res, err := Phases(addColumns("a"), partial, addColumns("c"))(context.Background(), nil, filledMap(t))
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, []string{"a", "b", "c"}, res.Columns)
}

func TestPhases_StopsAtError(t *testing.T) {
	t.Parallel()
	calls := 0
	count := func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error) {
		calls++
		return EngineResult{Completed: true}, nil
	}
	fail := func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error) {
		return EngineResult{}, errs.New(errs.KindCancelled, "phase", "stop")
	}
	_, err := Phases(count, fail, count)(context.Background(), nil, filledMap(t))
	assert.True(t, errors.Is(err, errs.ErrCancelled))
	assert.Contains(t, err.Error(), "phase 2")
	assert.Equal(t, 1, calls)
}

func TestReport_Merge(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		a, b      Report
		completed bool
		cancelled bool
		state     State
		columns   []string
	}{
		{
			name:      "both complete",
			a:         Report{State: Completed, Completed: true, Columns: []string{"x"}},
			b:         Report{State: Completed, Completed: true, Columns: []string{"y", "x"}},
			completed: true,
			state:     Completed,
			columns:   []string{"x", "y"},
		},
		{
			name:      "later cancelled",
			a:         Report{State: Completed, Completed: true, Columns: []string{"x"}},
			b:         Report{State: Cancelled, Cancelled: true},
			cancelled: true,
			state:     Cancelled,
			columns:   []string{"x"},
		},
		{
			name:    "earlier failure is kept",
			a:       Report{State: Failed, Columns: []string{"x"}},
			b:       Report{State: Completed, Completed: true, Columns: []string{"z"}},
			state:   Failed,
			columns: []string{"x", "z"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.a.Merge(tt.b)
			assert.Equal(t, tt.completed, got.Completed)
			assert.Equal(t, tt.cancelled, got.Cancelled)
			assert.Equal(t, tt.state, got.State)
			assert.Equal(t, tt.columns, got.Columns)
		})
	}
}

// =============================================================================
// Observability
// =============================================================================

func TestRun_RecordsMetricsAndLogs(t *testing.T) {
	t.Parallel()
	rec := metrics.New(nil)
	core, logs := observer.New(zap.DebugLevel)
	e := newTestEngine(t, WithMetrics(rec), WithLogger(zap.New(core)))
	h := e.Register(filledMap(t))

	_, err := e.Analyse(context.Background(), h, Cloned, addColumns("a"))
	require.NoError(t, err)
	w, err := e.WithMap(context.Background(), h, Cloned)
	require.NoError(t, err)
	var ticks int
	_, err = e.Run(context.Background(), w, tickingAnalysis(w, 1, &ticks))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Analyses.WithLabelValues("completed", "cloned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Analyses.WithLabelValues("cancelled", "cloned")))

	finished := logs.FilterMessage("analysis finished").All()
	require.Len(t, finished, 2)
	fields := finished[1].ContextMap()
	assert.Equal(t, "cancelled", fields["state"])
	assert.Equal(t, "cloned", fields["access"])
	assert.NotEmpty(t, fields["run_id"])
	assert.Len(t, logs.FilterMessage("analysis started").All(), 2)
}

// =============================================================================
// Scripts
// =============================================================================

func TestRunScript(t *testing.T) {
	t.Parallel()
	scripts := fstest.MapFS{
		"scale.risor": &fstest.MapFile{Data: []byte(`
add_column("scaled")
ks := keys()
for i := 0; i < len(ks); i++ {
    tick(i + 1, len(ks))
    set(ks[i], "scaled", get(ks[i], "depth") * 10)
}
`)},
		"partial.risor": &fstest.MapFile{Data: []byte(`completed(false)`)},
	}
	e := newTestEngine(t, WithScriptsFS(scripts))
	h := e.Register(filledMap(t))

	names, err := e.Scripts()
	require.NoError(t, err)
	assert.Equal(t, []string{"partial", "scale"}, names)

	rep, err := e.RunScript(context.Background(), h, Cloned, "scale")
	require.NoError(t, err)
	assert.True(t, rep.Completed)
	assert.Equal(t, []string{"scaled"}, rep.Columns)

	m, err := e.Map(rep.Handle)
	require.NoError(t, err)
	vals, err := m.Attributes.ColumnValues("scaled")
	require.NoError(t, err)
	assert.Equal(t, 90.0, vals[9])

	rep, err = e.RunScript(context.Background(), h, Borrowed, "partial")
	require.NoError(t, err)
	assert.Equal(t, Completed, rep.State)
	assert.False(t, rep.Completed)

	rep, err = e.RunScript(context.Background(), h, Cloned, "missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Equal(t, Failed, rep.State)
}

func TestRunScript_Cancelled(t *testing.T) {
	t.Parallel()
	scripts := fstest.MapFS{
		"loop.risor": &fstest.MapFile{Data: []byte(`
add_column("seen")
for i := 0; i < 10; i++ {
    tick(i + 1, 10)
}
`)},
	}
	e := newTestEngine(t, WithScriptsFS(scripts))
	h := e.Register(filledMap(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := e.RunScript(ctx, h, Cloned, "loop")
	require.NoError(t, err)
	assert.True(t, rep.Cancelled, fmt.Sprintf("state %s", rep.State))
	assert.Zero(t, rep.Handle)
}
