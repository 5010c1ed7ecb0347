// Package task implements chainable units of work with explicit continuation
// semantics, fault propagation and lane affinity.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/gitbridge/internal/scheduler"
)

// FaultHandler observes a fault. Returning true claims it: later handlers are not
// consulted and the node's end handlers are suppressed.
type FaultHandler func(err error) bool

// EndHandler runs once when a node reaches a terminal state, unless a fault handler
// claimed the node's fault.
type EndHandler func(t Task, success bool, err error)

// Task is the chaining surface shared by every node variant.
type Task interface {
	ID() string
	Name() string
	Affinity() Affinity
	State() State
	Successful() bool
	Err() error
	Errors() string
	Blocking() bool
	Critical() bool

	// DependsOn returns the predecessor, or nil for the head of a chain.
	DependsOn() Task

	// ThrownException returns the error of the nearest faulted ancestor.
	ThrownException() error

	// Start schedules the earliest not-yet-started ancestor. StartOn does the same
	// on an explicit scheduler.
	Start() Task
	StartOn(s scheduler.Scheduler) Task

	// Then links next as the continuation and returns it. With always set, next runs
	// even when this node faults or is cancelled.
	Then(next Task, always bool) Task
	Catch(h FaultHandler) Task
	Finally(fn func(success bool, err error), affinity Affinity) Task
	FinallyTask(t Task) Task
	OnStart(fn func(Task)) Task
	OnEnd(fn EndHandler) Task

	Wait() error
	WaitTimeout(d time.Duration) (bool, error)
	Done() <-chan struct{}

	node() *Node
}

// Body is implemented by node variants. Run performs the unit of work; success
// reports whether the predecessor ran to completion.
type Body interface {
	Task
	Run(ctx context.Context, success bool) error
}

// placeholder bodies resolve into another task instead of running inline.
type placeholder interface {
	resolve(success bool) error
}

// Node carries the state machine shared by every task variant. Variants embed a
// *Node and construct it with NewNode.
type Node struct {
	id       string
	name     string
	affinity Affinity
	blocking bool
	critical bool
	manager  *Manager
	ctx      context.Context
	body     Body

	state     atomic.Int32
	scheduled atomic.Bool
	done      chan struct{}

	mu                 sync.Mutex
	dependsOn          *Node
	continuation       *Node
	continuationAlways bool
	finally            bool
	faultHandlers      []FaultHandler
	startHandlers      []func(Task)
	endHandlers        []EndHandler
	terminalHooks      []func(lane scheduler.Lane)
	err                error
	errors             string
	handled            bool
	startedAt          time.Time
}

// NewNode builds the node for body. It panics when m or body is nil.
func NewNode(m *Manager, body Body, opts ...Option) *Node {
	if m == nil {
		panic("task: nil manager")
	}
	if body == nil {
		panic("task: nil body")
	}

	o := options{affinity: Concurrent}
	for _, opt := range opts {
		opt(&o)
	}

	n := &Node{
		id:       uuid.NewString(),
		name:     o.name,
		affinity: o.affinity,
		blocking: o.blocking,
		critical: o.critical,
		manager:  m,
		ctx:      m.Token(),
		body:     body,
		done:     make(chan struct{}),
	}
	if n.name == "" {
		n.name = "task-" + n.id[:8]
	}
	return n
}

func (n *Node) node() *Node { return n }

func (n *Node) ID() string         { return n.id }
func (n *Node) Name() string       { return n.name }
func (n *Node) Affinity() Affinity { return n.affinity }
func (n *Node) Blocking() bool     { return n.blocking }
func (n *Node) Critical() bool     { return n.critical }
func (n *Node) State() State       { return State(n.state.Load()) }
func (n *Node) Successful() bool   { return n.State() == RanToCompletion }

// Done is closed once the node is terminal and its handlers have run.
func (n *Node) Done() <-chan struct{} { return n.done }

// Err returns the node's own error, or nil.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Errors returns the human-readable failure text, such as a process's stderr.
func (n *Node) Errors() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errors
}

// SetErrors records failure text to surface alongside the error.
func (n *Node) SetErrors(text string) {
	n.mu.Lock()
	n.errors = text
	n.mu.Unlock()
}

// Handled reports whether a fault handler claimed this node's fault.
func (n *Node) Handled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.handled
}

// Context returns the cancellation token the node observes.
func (n *Node) Context() context.Context { return n.ctx }

func (n *Node) DependsOn() Task {
	if d := n.dep(); d != nil {
		return d.body
	}
	return nil
}

func (n *Node) dep() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dependsOn
}

func (n *Node) next() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.continuation
}

func (n *Node) isFinally() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finally
}

func (n *Node) ThrownException() error {
	for cur := n.dep(); cur != nil; cur = cur.dep() {
		if cur.State() == Faulted {
			return cur.Err()
		}
	}
	return nil
}

// upstreamErr is the error of the nearest faulted or cancelled ancestor.
func (n *Node) upstreamErr() error {
	for cur := n.dep(); cur != nil; cur = cur.dep() {
		switch cur.State() {
		case Faulted, Cancelled:
			if err := cur.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Node) OnStart(fn func(Task)) Task {
	if fn == nil {
		panic("task: nil start handler")
	}
	n.mu.Lock()
	n.startHandlers = append(n.startHandlers, fn)
	n.mu.Unlock()
	return n.body
}

func (n *Node) OnEnd(fn EndHandler) Task {
	if fn == nil {
		panic("task: nil end handler")
	}
	n.mu.Lock()
	n.endHandlers = append(n.endHandlers, fn)
	n.mu.Unlock()
	return n.body
}

// onTerminal registers a hook that always runs after the node settles, whether or
// not its fault was handled. It returns false, without registering, once the node
// has reached a terminal state.
func (n *Node) onTerminal(fn func(lane scheduler.Lane)) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.State().Terminal() {
		return false
	}
	n.terminalHooks = append(n.terminalHooks, fn)
	return true
}

func (n *Node) Wait() error {
	select {
	case <-n.done:
		return n.outcome()
	case <-n.ctx.Done():
		select {
		case <-n.done:
			return n.outcome()
		default:
			return n.ctx.Err()
		}
	}
}

// WaitTimeout waits up to d. It returns false if the node is still running, with
// the token's error when the wait ended because the manager was cancelled.
func (n *Node) WaitTimeout(d time.Duration) (bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-n.done:
		return true, n.outcome()
	case <-n.ctx.Done():
		select {
		case <-n.done:
			return true, n.outcome()
		default:
			return false, n.ctx.Err()
		}
	case <-timer.C:
		return false, nil
	}
}

func (n *Node) outcome() error {
	switch n.State() {
	case RanToCompletion:
		return nil
	case Cancelled:
		if err := n.Err(); err != nil {
			return err
		}
		return context.Canceled
	default:
		return n.Err()
	}
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.name, n.State())
}
