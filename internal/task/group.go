// Package task provides a small run-to-completion primitive used by the
// broker Server façade, built atop golang.org/x/sync/errgroup: Queue
// registers a named goroutine, the first to return a non-nil error cancels
// the Group's Context, and Wait blocks until every queued goroutine has
// returned.
package task

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Executor runs a unit of work, typically on a new goroutine. It exists so
// that the Server façade is injectable (an analogue of the original source's
// `Executor` trait in server/src/executor.rs). Server.Serve hands the
// reactor run loop to its Executor and registers the listener only after
// the Executor returns, so an Executor that runs its argument inline blocks
// Serve until the loop exits.
type Executor func(func())

// GoExecutor runs its argument on a new goroutine.
func GoExecutor(fn func()) { go fn() }

// Group queues named tasks and tracks their completion, exposing a single
// Context that is cancelled as soon as any task fails or the Group is
// explicitly cancelled.
type Group struct {
	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGroup returns a Group deriving its Context from parent.
func NewGroup(parent context.Context) *Group {
	var eg, gctx = errgroup.WithContext(parent)
	var ctx, cancel = context.WithCancel(gctx)
	return &Group{eg: eg, ctx: ctx, cancel: cancel}
}

// Queue registers fn to run under name. fn's error (if any) is returned by
// Wait and cancels the Group's Context, unblocking other tasks that select
// on Context().Done().
func (g *Group) Queue(name string, fn func() error) {
	g.eg.Go(func() error {
		var err = fn()
		if err != nil {
			log.WithFields(log.Fields{"task": name, "error": err}).Warn("task exited with error")
		} else {
			log.WithField("task", name).Debug("task exited")
		}
		return err
	})
}

// Context returns the Group's Context, cancelled on the first task failure
// or an explicit call to Cancel.
func (g *Group) Context() context.Context { return g.ctx }

// Cancel cancels the Group's Context without recording an error.
func (g *Group) Cancel() { g.cancel() }

// Wait blocks until every queued task has returned, and returns the first
// non-nil error encountered (if any).
func (g *Group) Wait() error {
	defer g.cancel()
	return g.eg.Wait()
}
