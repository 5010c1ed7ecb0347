package process

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aristath/gitbridge/internal/events"
	"github.com/aristath/gitbridge/internal/task"
)

// Task is a task node backed by a process whose output is parsed by a
// ResultProcessor. Errors() carries the captured stderr on failure.
type Task[R any] struct {
	*task.Node
	wrapper *Wrapper
	spec    Spec
	proc    ResultProcessor[R]
	bus     *events.EventBus
	check   func(Result) error
	mapErr  func(error) error

	mu     sync.Mutex
	result R
	exit   Result
}

// New builds a process-backed task node.
func New[R any](m *task.Manager, w *Wrapper, spec Spec, proc ResultProcessor[R], opts ...task.Option) *Task[R] {
	if w == nil || proc == nil {
		panic("process: nil wrapper or processor")
	}
	if spec.Executable == "" {
		panic("process: empty executable")
	}
	t := &Task[R]{wrapper: w, spec: spec, proc: proc}
	t.Node = task.NewNode(m, t, append([]task.Option{task.WithName(spec.String())}, opts...)...)
	return t
}

// WithEvents publishes each output line on bus.
func (t *Task[R]) WithEvents(bus *events.EventBus) *Task[R] {
	t.bus = bus
	return t
}

// WithCheck installs a post-exit check. It runs after a successful exit and may fail
// the task, for example when stderr reports a partial failure despite exit code 0.
func (t *Task[R]) WithCheck(fn func(Result) error) *Task[R] {
	t.check = fn
	return t
}

// WithErrorMap rewrites a failure before the task faults with it. Cancellation is
// passed through unchanged.
func (t *Task[R]) WithErrorMap(fn func(error) error) *Task[R] {
	t.mapErr = fn
	return t
}

// Spec returns the invocation.
func (t *Task[R]) Spec() Spec { return t.spec }

// Processor returns the output processor.
func (t *Task[R]) Processor() ResultProcessor[R] { return t.proc }

// Result returns the processor's result once the task succeeded.
func (t *Task[R]) Result() R {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Exit returns the details of the last run.
func (t *Task[R]) Exit() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exit
}

func (t *Task[R]) Run(ctx context.Context, _ bool) error {
	cb := Callbacks{}
	if t.bus != nil {
		cb.OnLine = func(line string) {
			t.bus.Publish(events.TopicTask, events.TaskOutputEvent{ID: t.ID(), Line: line, Timestamp: time.Now()})
		}
	}

	res, err := t.wrapper.Run(ctx, t.spec, t.proc, cb)
	t.mu.Lock()
	t.exit = res
	t.mu.Unlock()

	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			t.SetErrors(exitErr.Error())
		}
		if t.mapErr != nil && !task.IsCancellation(err) {
			err = t.mapErr(err)
		}
		return err
	}
	if t.check != nil {
		if err := t.check(res); err != nil {
			t.SetErrors(err.Error())
			return err
		}
	}

	t.mu.Lock()
	t.result = t.proc.Result()
	t.mu.Unlock()
	return nil
}

// ListTask is a process task whose processor streams entries.
type ListTask[E any] struct {
	*Task[[]E]
	entries EntryProcessor[E]
}

// NewList builds a process task producing a list of entries.
func NewList[E any](m *task.Manager, w *Wrapper, spec Spec, proc EntryProcessor[E], opts ...task.Option) *ListTask[E] {
	return &ListTask[E]{Task: New[[]E](m, w, spec, proc, opts...), entries: proc}
}

// OnEntry registers an observer for each entry as the process produces it.
func (t *ListTask[E]) OnEntry(fn func(E)) *ListTask[E] {
	t.entries.OnEntry(fn)
	return t
}
