package spatial

import (
	"context"
	"sync/atomic"
)

// Flow is the answer a ProgressSink gives to a progress update.
type Flow int

const (
	// Continue tells the analysis to keep going.
	Continue Flow = iota
	// Cancel tells the analysis to stop and return errs.ErrCancelled.
	Cancel
)

func (f Flow) String() string {
	if f == Cancel {
		return "cancel"
	}
	return "continue"
}

// ProgressSink receives periodic progress updates from a long-running
// analysis. Cancellation is only observed at these poll points.
type ProgressSink interface {
	Tick(current, total int) Flow
}

// Progress is the ProgressSink handed to orchestrated analyses. It cancels
// once any watched context is done or Interrupt has been called, and stays
// cancelled from then on. Interrupt may be called from any goroutine.
type Progress struct {
	ctxs        []context.Context
	interrupted atomic.Bool
	cancelled   atomic.Bool
	ticks       atomic.Int64
	current     atomic.Int64
	total       atomic.Int64
}

// NewProgress returns a Progress watching ctx.
func NewProgress(ctx context.Context) *Progress {
	p := &Progress{}
	p.Watch(ctx)
	return p
}

// Watch adds ctx to the contexts that cancel p. It must be called before
// the analysis starts ticking.
func (p *Progress) Watch(ctx context.Context) {
	if ctx != nil {
		p.ctxs = append(p.ctxs, ctx)
	}
}

func (p *Progress) ctxDone() bool {
	for _, ctx := range p.ctxs {
		if ctx.Err() != nil {
			return true
		}
	}
	return false
}

// Interrupt requests cancellation at the next poll point.
func (p *Progress) Interrupt() { p.interrupted.Store(true) }

// Tick records the update and reports whether the analysis may continue.
func (p *Progress) Tick(current, total int) Flow {
	p.ticks.Add(1)
	p.current.Store(int64(current))
	p.total.Store(int64(total))
	if p.cancelled.Load() {
		return Cancel
	}
	if p.interrupted.Load() || p.ctxDone() {
		p.cancelled.Store(true)
		return Cancel
	}
	return Continue
}

// Cancelled reports whether a Tick has returned Cancel.
func (p *Progress) Cancelled() bool { return p.cancelled.Load() }

// Ticks returns the number of updates received.
func (p *Progress) Ticks() int { return int(p.ticks.Load()) }

// Last returns the most recent update.
func (p *Progress) Last() (current, total int) {
	return int(p.current.Load()), int(p.total.Load())
}
