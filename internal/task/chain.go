package task

import (
	"context"
	"fmt"

	"github.com/gammazero/toposort"

	"github.com/aristath/gitbridge/internal/scheduler"
)

func (n *Node) Then(next Task, always bool) Task {
	if next == nil {
		panic("task: nil continuation")
	}
	nn := next.node()
	if nn.manager != n.manager {
		panic("task: continuation belongs to a different manager")
	}
	if err := validateLink(n, nn); err != nil {
		panic(fmt.Sprintf("task: cannot chain %s -> %s: %v", n.name, nn.name, err))
	}

	// Link the back pointer first so the continuation never runs without it.
	nn.mu.Lock()
	if nn.dependsOn != nil {
		nn.mu.Unlock()
		panic(fmt.Sprintf("task: %s already depends on %s", nn.name, nn.dependsOn.name))
	}
	nn.dependsOn = n
	nn.mu.Unlock()

	n.mu.Lock()
	if n.continuation != nil {
		existing := n.continuation.name
		n.mu.Unlock()
		nn.mu.Lock()
		nn.dependsOn = nil
		nn.mu.Unlock()
		panic(fmt.Sprintf("task: %s already continues with %s", n.name, existing))
	}
	n.continuation = nn
	n.continuationAlways = always
	n.mu.Unlock()

	return next
}

// validateLink rejects a link from -> to that would close a cycle in the chain.
func validateLink(from, to *Node) error {
	if from == to {
		return fmt.Errorf("task cannot continue with itself")
	}

	seen := make(map[*Node]bool)
	var edges []toposort.Edge
	collect := func(start *Node) {
		head := start
		for d := head.dep(); d != nil && !seen[d]; d = head.dep() {
			seen[head] = true
			head = d
		}
		edges = append(edges, toposort.Edge{nil, head.id})
		for cur := head; cur != nil; {
			seen[cur] = true
			nx := cur.next()
			if nx == nil || seen[nx] {
				if nx != nil {
					edges = append(edges, toposort.Edge{cur.id, nx.id})
				}
				return
			}
			edges = append(edges, toposort.Edge{cur.id, nx.id})
			cur = nx
		}
	}
	collect(from)
	if !seen[to] {
		collect(to)
	}
	edges = append(edges, toposort.Edge{from.id, to.id})

	if _, err := toposort.Toposort(edges); err != nil {
		return err
	}
	return nil
}

func (n *Node) Catch(h FaultHandler) Task {
	if h == nil {
		panic("task: nil fault handler")
	}
	for cur := n; cur != nil; cur = cur.dep() {
		cur.mu.Lock()
		cur.faultHandlers = append(cur.faultHandlers, h)
		cur.mu.Unlock()
	}
	return n.body
}

// Finally appends a node that always runs after this one. fn receives whether the
// chain succeeded and the upstream fault or cancellation cause.
func (n *Node) Finally(fn func(success bool, err error), affinity Affinity) Task {
	if fn == nil {
		panic("task: nil finally handler")
	}
	var f *ActionTask
	f = NewAction(n.manager, func(_ context.Context, success bool, _ error) error {
		fn(success, f.upstreamErr())
		return nil
	}, WithName(n.name+" finally"), WithAffinity(affinity))
	return n.FinallyTask(f)
}

// FinallyTask appends t as an always-run continuation. It runs inline when the
// lanes allow and still runs after the manager's token is cancelled.
func (n *Node) FinallyTask(t Task) Task {
	tn := t.node()
	tn.mu.Lock()
	tn.finally = true
	tn.mu.Unlock()
	return n.Then(t, true)
}

func (n *Node) Start() Task { return n.start(nil) }

func (n *Node) StartOn(s scheduler.Scheduler) Task { return n.start(s) }

func (n *Node) start(s scheduler.Scheduler) Task {
	top, inMotion := n.firstUnstarted()
	switch {
	case inMotion:
	case top == nil:
		// Already terminal: make sure the continuation gets its turn.
		n.proceed(scheduler.LaneNone)
	case top.dep() == nil:
		n.manager.schedule(top, s)
	default:
		top.dep().proceed(scheduler.LaneNone)
	}
	return n.body
}

// firstUnstarted walks up from n to the top-most node still in Created. inMotion is
// true when an ancestor is queued or running and will trigger the rest of the chain.
func (n *Node) firstUnstarted() (top *Node, inMotion bool) {
	for cur := n; cur != nil; cur = cur.dep() {
		st := cur.State()
		if st == Running {
			return nil, true
		}
		if st != Created {
			break
		}
		if cur.scheduled.Load() {
			return nil, true
		}
		top = cur
	}
	return top, false
}

// proceed hands the continuation of a terminal node to the manager, or skips it when
// the edge does not run after failure.
func (n *Node) proceed(lane scheduler.Lane) {
	st := n.State()
	if !st.Terminal() {
		return
	}

	n.mu.Lock()
	next, always := n.continuation, n.continuationAlways
	n.mu.Unlock()
	if next == nil {
		return
	}

	if st == RanToCompletion || always {
		n.manager.dispatch(next, lane)
		return
	}
	next.skip(n.Err(), st, n.Handled(), lane)
}
