// Package xtrace is a thin wrapper over golang.org/x/net/trace. Rather than
// threading a context.Context carrying a *trace.Trace through each call (as
// an addTrace(ctx, format, args...) helper would), this broker's Connection
// and delivery coordinator are not per-request-context-scoped — they're
// per-connection and per-unconfirmed-entry, respectively — so traces are
// attached directly to those long-lived values instead of to a Context.
package xtrace

import "golang.org/x/net/trace"

// Trace wraps a golang.org/x/net/trace.Trace, tolerating a nil receiver so
// callers that construct a Connection or delivery entry without tracing
// enabled don't need to branch.
type Trace struct {
	t trace.Trace
}

// New starts a new trace.Trace of the given family and title.
func New(family, title string) *Trace {
	return &Trace{t: trace.New(family, title)}
}

// Printf records a formatted event on the trace.
func (x *Trace) Printf(format string, args ...interface{}) {
	if x == nil || x.t == nil {
		return
	}
	x.t.LazyPrintf(format, args...)
}

// Errorf records a formatted event and marks the trace as having an error.
func (x *Trace) Errorf(format string, args ...interface{}) {
	if x == nil || x.t == nil {
		return
	}
	x.t.LazyPrintf(format, args...)
	x.t.SetError()
}

// Finish marks the trace as complete and eligible for eventual discard.
func (x *Trace) Finish() {
	if x == nil || x.t == nil {
		return
	}
	x.t.Finish()
}
