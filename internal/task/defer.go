package task

import (
	"context"
	"sync"

	"github.com/aristath/gitbridge/internal/scheduler"
)

// DeferTask is a placeholder continuation. When it runs it builds the real task from
// the previous result, starts it and completes with that task's outcome and result.
type DeferTask[T, R any] struct {
	*Node
	build func(ctx context.Context, success bool, prev T) (ResultTask[R], error)
	prev  previous[T]

	mu     sync.Mutex
	result R
	built  ResultTask[R]
}

// Defer links a placeholder after prev whose real work is only known once prev
// finishes. Fault handlers registered on the placeholder are carried over to the
// built task.
func Defer[T, R any](prev Task, build func(ctx context.Context, success bool, prev T) (ResultTask[R], error), always bool, opts ...Option) *DeferTask[T, R] {
	if build == nil {
		panic("task: nil deferred builder")
	}
	pn := prev.node()
	d := &DeferTask[T, R]{build: build}
	opts = append([]Option{WithName(pn.name + " deferred"), WithAffinity(pn.affinity)}, opts...)
	d.Node = NewNode(pn.manager, d, opts...)
	prev.Then(d, always)
	return d
}

func (d *DeferTask[T, R]) SetPreviousResult(v T) { d.prev.set(v) }

func (d *DeferTask[T, R]) WithPrevious(get func() T) *DeferTask[T, R] {
	d.prev.setGetter(get)
	return d
}

func (d *DeferTask[T, R]) Result() R {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result
}

// Built returns the task the placeholder resolved to, or nil before resolution.
func (d *DeferTask[T, R]) Built() ResultTask[R] {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.built
}

// Run is never reached: the node resolves through its placeholder.
func (d *DeferTask[T, R]) Run(ctx context.Context, success bool) error {
	return d.resolve(success)
}

func (d *DeferTask[T, R]) resolve(success bool) error {
	built, err := d.build(d.ctx, success, d.prev.resolve(d.DependsOn()))
	if err != nil {
		return err
	}
	if built == nil {
		return ErrNoTask
	}

	d.mu.Lock()
	d.built = built
	d.mu.Unlock()

	d.Node.mu.Lock()
	handlers := append([]FaultHandler(nil), d.Node.faultHandlers...)
	d.Node.mu.Unlock()
	for _, h := range handlers {
		built.Catch(h)
	}

	bn := built.node()
	if !bn.onTerminal(func(lane scheduler.Lane) { d.mirror(built, lane) }) {
		// Already settled or settling: its hooks are taken, so mirror once it is done.
		<-bn.done
		d.mirror(built, scheduler.LaneNone)
		return nil
	}
	built.Start()
	return nil
}

// mirror settles the placeholder with the built task's outcome. The built task has
// already run the fault handlers and reported an unhandled fault.
func (d *DeferTask[T, R]) mirror(built ResultTask[R], lane scheduler.Lane) {
	bn := built.node()
	final := bn.State()

	d.mu.Lock()
	d.result = built.Result()
	d.mu.Unlock()

	if text := bn.Errors(); text != "" {
		d.SetErrors(text)
	}

	d.settle(Running, final, bn.Err(), bn.Handled(), lane)
}
