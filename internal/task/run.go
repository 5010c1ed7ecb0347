package task

import (
	"fmt"
	"time"

	"github.com/aristath/gitbridge/internal/scheduler"
)

// job adapts a node to the scheduler's Job interface.
type job struct{ n *Node }

func (j job) Run(lane scheduler.Lane) { j.n.execute(lane) }
func (j job) Cancel(err error)        { j.n.abort(err) }

// execute runs the node on lane. Nodes that are no longer Created are left alone.
func (n *Node) execute(lane scheduler.Lane) {
	if !n.isFinally() {
		if err := n.ctx.Err(); err != nil {
			n.skip(err, Cancelled, false, lane)
			return
		}
	}
	if !n.state.CompareAndSwap(int32(Created), int32(Running)) {
		return
	}
	n.scheduled.Store(true)

	n.mu.Lock()
	n.startedAt = time.Now()
	starts := append([]func(Task){}, n.startHandlers...)
	n.mu.Unlock()

	n.manager.started(n)
	for _, h := range starts {
		n.guard("start handler", func() { h(n.body) })
	}

	success := true
	if d := n.dep(); d != nil {
		success = d.Successful()
	}

	if p, ok := n.body.(placeholder); ok {
		if err := n.invoke(func() error { return p.resolve(success) }); err != nil {
			n.complete(err, lane)
		}
		return
	}

	n.complete(n.invoke(func() error { return n.body.Run(n.ctx, success) }), lane)
}

// invoke runs fn, turning a panic into an ErrPanic fault.
func (n *Node) invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}

// guard runs a user callback, logging instead of propagating a panic.
func (n *Node) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.manager.logger.Printf("ERROR: %s of task %q panicked: %v", what, n.name, r)
		}
	}()
	fn()
}

// complete finishes a running node with the outcome of its unit of work.
func (n *Node) complete(err error, lane scheduler.Lane) {
	final := RanToCompletion
	switch {
	case err == nil:
	case IsCancellation(err):
		final = Cancelled
	default:
		final = Faulted
	}

	handled := false
	if final == Faulted {
		n.mu.Lock()
		n.err = err
		if n.errors == "" {
			n.errors = err.Error()
		}
		n.mu.Unlock()

		handled = n.raiseFault(err)
		if !handled {
			n.manager.unhandled(n, err)
		}
	}
	n.settle(Running, final, err, handled, lane)
}

func (n *Node) raiseFault(err error) bool {
	n.mu.Lock()
	handlers := append([]FaultHandler(nil), n.faultHandlers...)
	n.mu.Unlock()

	for _, h := range handlers {
		claimed := false
		n.guard("fault handler", func() { claimed = h(err) })
		if claimed {
			return true
		}
	}
	return false
}

// skip moves a node that never ran to Faulted or Cancelled and cascades to its
// continuation. handled carries a claim made for the predecessor's fault.
func (n *Node) skip(err error, final State, handled bool, lane scheduler.Lane) {
	if n.State() != Created {
		return
	}
	if final != Cancelled {
		final = Faulted
	}
	n.scheduled.Store(true)
	if n.isFinally() && final == Cancelled && n.ctx.Err() != nil {
		n.execute(lane)
		return
	}
	n.mu.Lock()
	if final == Faulted && err != nil && n.errors == "" {
		n.errors = err.Error()
	}
	n.mu.Unlock()
	n.settle(Created, final, err, handled && final == Faulted, lane)
}

// abort is called when the scheduler drops a queued node.
func (n *Node) abort(err error) {
	if n.isFinally() {
		n.execute(scheduler.LaneNone)
		return
	}
	n.skip(err, Cancelled, false, scheduler.LaneNone)
}

// settle publishes the terminal state exactly once, then runs end handlers and hooks
// and hands off to the continuation.
func (n *Node) settle(from, final State, err error, handled bool, lane scheduler.Lane) bool {
	n.mu.Lock()
	if !n.state.CompareAndSwap(int32(from), int32(final)) {
		n.mu.Unlock()
		return false
	}
	n.err = err
	n.handled = handled
	ends := append([]EndHandler(nil), n.endHandlers...)
	hooks := append([]func(scheduler.Lane){}, n.terminalHooks...)
	n.mu.Unlock()

	if !handled {
		success := final == RanToCompletion
		for _, h := range ends {
			n.guard("end handler", func() { h(n.body, success, err) })
		}
	}
	n.manager.settled(n, final)
	close(n.done)

	for _, hook := range hooks {
		hook(lane)
	}
	n.proceed(lane)
	return true
}
