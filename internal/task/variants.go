package task

import (
	"context"
	"sync"
)

// None is the input type of tasks that take no previous result.
type None struct{}

// ResultTask is a task that produces a value of type R.
type ResultTask[R any] interface {
	Task
	Result() R
}

// previous resolves the value fed into a typed task. An explicit getter wins, then
// the predecessor's result when its type matches, then the manually set value.
type previous[T any] struct {
	mu     sync.Mutex
	getter func() T
	value  T
}

func (p *previous[T]) resolve(dep Task) T {
	p.mu.Lock()
	getter, value := p.getter, p.value
	p.mu.Unlock()

	if getter != nil {
		return getter()
	}
	if r, ok := dep.(ResultTask[T]); ok {
		return r.Result()
	}
	return value
}

func (p *previous[T]) set(v T) {
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
}

func (p *previous[T]) get() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *previous[T]) setGetter(fn func() T) {
	p.mu.Lock()
	p.getter = fn
	p.mu.Unlock()
}

// ActionTask runs a callback that produces no value. The callback receives whether
// the predecessor succeeded and the nearest upstream fault.
type ActionTask struct {
	*Node
	fn func(ctx context.Context, success bool, thrown error) error
}

// NewAction builds an action node. It panics when fn is nil.
func NewAction(m *Manager, fn func(ctx context.Context, success bool, thrown error) error, opts ...Option) *ActionTask {
	if fn == nil {
		panic("task: nil action")
	}
	t := &ActionTask{fn: fn}
	t.Node = NewNode(m, t, opts...)
	return t
}

func (t *ActionTask) Run(ctx context.Context, success bool) error {
	return t.fn(ctx, success, t.ThrownException())
}

// FuncTask computes a value of type R from a previous value of type T.
type FuncTask[T, R any] struct {
	*Node
	fn   func(ctx context.Context, success bool, prev T) (R, error)
	prev previous[T]

	mu     sync.Mutex
	result R
}

// NewFunc builds a value-producing node that takes no input.
func NewFunc[R any](m *Manager, fn func(ctx context.Context, success bool) (R, error), opts ...Option) *FuncTask[None, R] {
	if fn == nil {
		panic("task: nil func")
	}
	return NewFuncFrom(m, func(ctx context.Context, success bool, _ None) (R, error) {
		return fn(ctx, success)
	}, opts...)
}

// NewFuncFrom builds a value-producing node fed by a previous result.
func NewFuncFrom[T, R any](m *Manager, fn func(ctx context.Context, success bool, prev T) (R, error), opts ...Option) *FuncTask[T, R] {
	if fn == nil {
		panic("task: nil func")
	}
	t := &FuncTask[T, R]{fn: fn}
	t.Node = NewNode(m, t, opts...)
	return t
}

// RunAsync builds a value-producing node and starts it.
func RunAsync[R any](m *Manager, fn func(ctx context.Context) (R, error), opts ...Option) *FuncTask[None, R] {
	t := NewFunc(m, func(ctx context.Context, _ bool) (R, error) { return fn(ctx) }, opts...)
	t.Start()
	return t
}

// WithPrevious installs a getter that takes precedence over the predecessor's result.
func (t *FuncTask[T, R]) WithPrevious(get func() T) *FuncTask[T, R] {
	t.prev.setGetter(get)
	return t
}

// SetPreviousResult sets the input used when no getter or typed predecessor exists.
func (t *FuncTask[T, R]) SetPreviousResult(v T) { t.prev.set(v) }

func (t *FuncTask[T, R]) PreviousResult() T { return t.prev.get() }

// Result returns the computed value, or the zero value until the node completes.
func (t *FuncTask[T, R]) Result() R {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *FuncTask[T, R]) Run(ctx context.Context, success bool) error {
	r, err := t.fn(ctx, success, t.prev.resolve(t.DependsOn()))
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.result = r
	t.mu.Unlock()
	return nil
}

// ListTask produces a list of E one entry at a time. OnEntry observers see each
// entry as it is emitted.
type ListTask[T, E any] struct {
	*Node
	fn   func(ctx context.Context, success bool, prev T, emit func(E)) error
	prev previous[T]

	mu      sync.Mutex
	entries []E
	onEntry []func(E)
}

// NewList builds a list-producing node that takes no input.
func NewList[E any](m *Manager, fn func(ctx context.Context, success bool, emit func(E)) error, opts ...Option) *ListTask[None, E] {
	if fn == nil {
		panic("task: nil list func")
	}
	return NewListFrom(m, func(ctx context.Context, success bool, _ None, emit func(E)) error {
		return fn(ctx, success, emit)
	}, opts...)
}

// NewListFrom builds a list-producing node fed by a previous result.
func NewListFrom[T, E any](m *Manager, fn func(ctx context.Context, success bool, prev T, emit func(E)) error, opts ...Option) *ListTask[T, E] {
	if fn == nil {
		panic("task: nil list func")
	}
	t := &ListTask[T, E]{fn: fn}
	t.Node = NewNode(m, t, opts...)
	return t
}

// OnEntry registers an observer for each emitted entry.
func (t *ListTask[T, E]) OnEntry(fn func(E)) *ListTask[T, E] {
	t.mu.Lock()
	t.onEntry = append(t.onEntry, fn)
	t.mu.Unlock()
	return t
}

func (t *ListTask[T, E]) WithPrevious(get func() T) *ListTask[T, E] {
	t.prev.setGetter(get)
	return t
}

func (t *ListTask[T, E]) SetPreviousResult(v T) { t.prev.set(v) }

func (t *ListTask[T, E]) PreviousResult() T { return t.prev.get() }

// Result returns a copy of the entries emitted so far.
func (t *ListTask[T, E]) Result() []E {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]E(nil), t.entries...)
}

func (t *ListTask[T, E]) Run(ctx context.Context, success bool) error {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()

	return t.fn(ctx, success, t.prev.resolve(t.DependsOn()), t.emit)
}

func (t *ListTask[T, E]) emit(e E) {
	t.mu.Lock()
	t.entries = append(t.entries, e)
	observers := append([]func(E){}, t.onEntry...)
	t.mu.Unlock()

	for _, fn := range observers {
		t.guard("entry observer", func() { fn(e) })
	}
}
