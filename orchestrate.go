package sightline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jward/sightline/internal/errs"
	"github.com/jward/sightline/internal/spatial"
)

// MapAccess says how an analysis gets at the map it runs on.
type MapAccess int

const (
	// Borrowed runs on the registered map in place. The map stays where it
	// is registered.
	Borrowed MapAccess = iota
	// Owned runs on the registered map in place and moves it to the
	// results registry under the same handle.
	Owned
	// Cloned runs on a deep copy. The original is never touched; a copy
	// that completes is registered as a new result, a cancelled or failed
	// copy is discarded.
	Cloned
)

func (a MapAccess) String() string {
	switch a {
	case Owned:
		return "owned"
	case Cloned:
		return "cloned"
	default:
		return "borrowed"
	}
}

// ParseMapAccess parses the String form of a MapAccess.
func ParseMapAccess(s string) (MapAccess, error) {
	for _, a := range []MapAccess{Borrowed, Owned, Cloned} {
		if a.String() == s {
			return a, nil
		}
	}
	return Borrowed, errs.Named(errs.KindInvalidArgument, "parse access", s)
}

// State is the stage an orchestrated call is in.
//
//	Idle -> Copying? -> Running -> {Completed | Cancelled | Failed}
type State int

const (
	Idle State = iota
	Copying
	Running
	Completed
	Cancelled
	Failed
)

var stateNames = [...]string{"idle", "copying", "running", "completed", "cancelled", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// EngineResult is what an analysis reports back: whether it ran to the end
// and which attribute columns it created or wrote.
type EngineResult struct {
	Completed bool
	Columns   []string
}

// AnalysisFunc is the boundary to an analysis engine. It must poll sink
// periodically and return an error matching errs.ErrCancelled once the sink
// answers spatial.Cancel. On error it should still report the columns it
// had written.
type AnalysisFunc func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error)

// Report is the outcome of one orchestrated call.
type Report struct {
	RunID string
	// Source is the handle the call was made on.
	Source Handle
	// Handle holds the map carrying the results. It is zero when the
	// working copy was discarded.
	Handle    Handle
	Access    MapAccess
	State     State
	Completed bool
	Cancelled bool
	Columns   []string
}

// Merge combines the reports of two phases of one analysis: completion is
// AND-ed, columns are unioned in first-seen order and the worse state is
// kept (Failed over Cancelled over Completed).
func (r Report) Merge(o Report) Report {
	out := r
	out.Completed = r.Completed && o.Completed
	out.Cancelled = r.Cancelled || o.Cancelled
	out.Columns = unionColumns(r.Columns, o.Columns)
	out.State = max(r.State, o.State)
	if o.Handle != 0 {
		out.Handle = o.Handle
	}
	return out
}

// Merge combines two phase results the way Report.Merge does.
func (r EngineResult) Merge(o EngineResult) EngineResult {
	return EngineResult{
		Completed: r.Completed && o.Completed,
		Columns:   unionColumns(r.Columns, o.Columns),
	}
}

func unionColumns(a, b []string) []string {
	out := slices.Clone(a)
	for _, c := range b {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Phases runs fns one after the other on the same map and merges their
// results. It stops at the first error, returning it together with the
// columns the earlier phases and the failing phase reported.
func Phases(fns ...AnalysisFunc) AnalysisFunc {
	return func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error) {
		acc := EngineResult{Completed: true}
		for i, fn := range fns {
			res, err := fn(ctx, sink, m)
			acc = acc.Merge(res)
			if err != nil {
				acc.Completed = false
				return acc, fmt.Errorf("phase %d: %w", i+1, err)
			}
		}
		return acc, nil
	}
}

// WorkingMap is a map prepared for one orchestrated call.
type WorkingMap struct {
	source   Handle
	access   MapAccess
	m        *spatial.Map
	progress *spatial.Progress
	state    State
	used     bool
}

// Map returns the map the analysis will run on.
func (w *WorkingMap) Map() *spatial.Map { return w.m }

// Access returns how the working map was obtained.
func (w *WorkingMap) Access() MapAccess { return w.access }

// State returns the stage the call has reached.
func (w *WorkingMap) State() State { return w.state }

// Interrupt asks the running analysis to stop at its next progress poll.
// It is safe to call from another goroutine.
func (w *WorkingMap) Interrupt() { w.progress.Interrupt() }

// WithMap prepares the map under h for an analysis. Cloned access copies the
// map here, before anything runs, unless ctx is already done. Owned access
// takes the map out of the imported registry straight away.
func (e *Engine) WithMap(ctx context.Context, h Handle, access MapAccess) (*WorkingMap, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, reg, ok := e.lookupLocked(h)
	if !ok {
		return nil, handleNotFound("with map", h)
	}
	if access == Cloned {
		if err := ctx.Err(); err != nil {
			return nil, &errs.Error{Kind: errs.KindCancelled, Op: "with map", Index: int(h), Name: "handle", Cause: err}
		}
	}
	w := &WorkingMap{source: h, access: access, m: m, progress: spatial.NewProgress(ctx), state: Idle}
	switch access {
	case Cloned:
		w.state = Copying
		w.m = m.Clone()
	case Owned:
		if reg == Imported {
			delete(e.imported, h)
			e.results[h] = m
		}
	case Borrowed:
	default:
		return nil, errs.Newf(errs.KindInvalidArgument, "with map", "unknown access %d", int(access))
	}
	return w, nil
}

// Run invokes fn on the working map. The progress sink cancels when either
// the WithMap context or ctx is done. Cancellation is not an error: it comes
// back as a report with Cancelled set. Any other error from fn yields a
// Failed report together with the error.
func (e *Engine) Run(ctx context.Context, w *WorkingMap, fn AnalysisFunc) (Report, error) {
	if w == nil || w.used {
		return Report{State: Failed}, errs.New(errs.KindInvalidArgument, "run", "working map already used")
	}
	w.used = true

	rep := Report{RunID: uuid.NewString(), Source: w.source, Access: w.access}
	log := e.log.With(
		zap.String("run_id", rep.RunID),
		zap.Int("handle", int(w.source)),
		zap.String("access", w.access.String()),
	)
	start := time.Now()

	w.progress.Watch(ctx)
	w.state = Running
	log.Debug("analysis started", zap.String("map", w.m.Name))
	res, err := fn(ctx, w.progress, w.m)
	rep.Columns = slices.Clone(res.Columns)

	switch {
	case errors.Is(err, errs.ErrCancelled) || (err == nil && w.progress.Cancelled()):
		rep.State = Cancelled
		rep.Cancelled = true
	case err != nil:
		rep.State = Failed
	default:
		rep.State = Completed
		rep.Completed = res.Completed
	}
	w.state = rep.State

	if w.access == Cloned {
		if rep.State == Completed {
			e.mu.Lock()
			rep.Handle = e.registerLocked(Results, w.m)
			e.mu.Unlock()
		}
	} else {
		rep.Handle = w.source
	}

	elapsed := time.Since(start)
	e.metrics.ObserveAnalysis(rep.State.String(), w.access.String(), elapsed)
	fields := []zap.Field{
		zap.String("state", rep.State.String()),
		zap.Bool("completed", rep.Completed),
		zap.Strings("columns", rep.Columns),
		zap.Duration("elapsed", elapsed),
	}
	if rep.State == Failed {
		log.Warn("analysis failed", append(fields, zap.Error(err))...)
		return rep, fmt.Errorf("sightline: run: %w", err)
	}
	log.Info("analysis finished", fields...)
	return rep, nil
}

// Analyse prepares the map under h with the given access and runs fn on it.
// A context already done before a copy is made gives a Cancelled report.
func (e *Engine) Analyse(ctx context.Context, h Handle, access MapAccess, fn AnalysisFunc) (Report, error) {
	w, err := e.WithMap(ctx, h, access)
	if errors.Is(err, errs.ErrCancelled) {
		e.metrics.ObserveAnalysis(Cancelled.String(), access.String(), 0)
		return Report{Source: h, Access: access, State: Cancelled, Cancelled: true}, nil
	}
	if err != nil {
		return e.failed(h, access, err)
	}
	return e.Run(ctx, w, fn)
}

// Script returns an analysis that runs the Risor script at scriptPath.
func (e *Engine) Script(scriptPath string) AnalysisFunc {
	return func(ctx context.Context, sink spatial.ProgressSink, m *spatial.Map) (EngineResult, error) {
		res, err := e.runtime.RunScript(ctx, sink, m, scriptPath)
		return EngineResult{Completed: res.Completed, Columns: res.Columns}, err
	}
}

// RunScript runs the Risor script at scriptPath on the map under h.
func (e *Engine) RunScript(ctx context.Context, h Handle, access MapAccess, scriptPath string) (Report, error) {
	return e.Analyse(ctx, h, access, e.Script(scriptPath))
}
