package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/aristath/gitbridge/internal/events"
	"github.com/aristath/gitbridge/internal/scheduler"
)

// Config holds manager settings.
type Config struct {
	// MaxConcurrency bounds the concurrent lane. Defaults to GOMAXPROCS.
	MaxConcurrency int

	// UI is the host's UI loop. Nil until the host calls SetUIScheduler; UI tasks
	// fall back to the concurrent lane meanwhile.
	UI scheduler.Scheduler

	Logger *log.Logger
	Bus    *events.EventBus
}

// Manager owns the cancellation token, the interleaving scheduler and the UI lane,
// and routes every started task to the lane its affinity names.
type Manager struct {
	ctx        context.Context
	cancel     context.CancelCauseFunc
	interleave *scheduler.Interleave
	logger     *log.Logger
	bus        *events.EventBus

	mu          sync.RWMutex
	ui          scheduler.Scheduler
	onUnhandled []func(t Task, err error)
	warnedUI    bool
}

// NewManager creates a manager whose token is derived from parent.
func NewManager(parent context.Context, cfg Config) *Manager {
	ctx, cancel := context.WithCancelCause(parent)
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		interleave: scheduler.NewInterleave(ctx, scheduler.InterleaveConfig{
			MaxConcurrency: cfg.MaxConcurrency,
			Excluded:       scheduler.LaneUI,
		}),
		logger: cfg.Logger,
		bus:    cfg.Bus,
		ui:     cfg.UI,
	}
}

// Token is the cancellation token every task built by this manager observes.
func (m *Manager) Token() context.Context { return m.ctx }

// Cancel cancels the token. Queued work is dropped, running work observes the
// token cooperatively and Finally nodes still run. Safe to call more than once.
func (m *Manager) Cancel() { m.cancel(context.Canceled) }

// Interleave exposes the concurrent/exclusive scheduler.
func (m *Manager) Interleave() *scheduler.Interleave { return m.interleave }

// SetUIScheduler installs the host's UI loop.
func (m *Manager) SetUIScheduler(s scheduler.Scheduler) {
	m.mu.Lock()
	m.ui = s
	m.mu.Unlock()
}

// OnUnhandled registers a callback for faults no fault handler claimed.
func (m *Manager) OnUnhandled(fn func(t Task, err error)) {
	m.mu.Lock()
	m.onUnhandled = append(m.onUnhandled, fn)
	m.mu.Unlock()
}

// Schedule starts t's chain. Equivalent to t.Start().
func (m *Manager) Schedule(t Task) Task { return t.Start() }

// Wait blocks until the concurrent and exclusive lanes are drained.
func (m *Manager) Wait() { m.interleave.Wait() }

// Stop cancels the token and waits for running work to return.
func (m *Manager) Stop() {
	m.Cancel()
	m.interleave.Wait()
}

func (m *Manager) schedulerFor(a Affinity) scheduler.Scheduler {
	switch a {
	case Exclusive:
		return m.interleave.ExclusiveScheduler()
	case UI:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.ui != nil {
			return m.ui
		}
		if !m.warnedUI {
			m.warnedUI = true
			m.logger.Printf("WARNING: no UI scheduler installed, running UI tasks on the concurrent lane")
		}
	}
	return m.interleave.ConcurrentScheduler()
}

// schedule queues n on s, or on the lane its affinity selects when s is nil.
func (m *Manager) schedule(n *Node, s scheduler.Scheduler) {
	if n.State() != Created || !n.scheduled.CompareAndSwap(false, true) {
		return
	}
	j := job{n}
	if err := m.ctx.Err(); err != nil {
		j.Cancel(err)
		return
	}
	if s == nil {
		s = m.schedulerFor(n.affinity)
	}
	s.Schedule(j)
}

// dispatch hands a continuation over after its predecessor settled on lane from.
// Finally nodes run inline when the lanes allow it, or unconditionally once the
// token is cancelled.
func (m *Manager) dispatch(n *Node, from scheduler.Lane) {
	if n.isFinally() && (m.ctx.Err() != nil || m.canInline(from, n.affinity)) {
		if n.State() == Created && n.scheduled.CompareAndSwap(false, true) {
			n.execute(from)
		}
		return
	}
	m.schedule(n, nil)
}

func (m *Manager) canInline(from scheduler.Lane, to Affinity) bool {
	if to == UI {
		return from == scheduler.LaneUI
	}
	return m.interleave.CanInline(from, to.lane())
}

func (m *Manager) started(n *Node) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.TopicTask, events.TaskStartedEvent{
		ID:        n.id,
		Name:      n.name,
		Affinity:  n.affinity.String(),
		Blocking:  n.blocking,
		Timestamp: time.Now(),
	})
}

func (m *Manager) settled(n *Node, final State) {
	if m.bus == nil {
		return
	}
	n.mu.Lock()
	err, handled, startedAt := n.err, n.handled, n.startedAt
	n.mu.Unlock()

	var elapsed time.Duration
	if !startedAt.IsZero() {
		elapsed = time.Since(startedAt)
	}
	now := time.Now()

	switch final {
	case RanToCompletion:
		m.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
			ID: n.id, Name: n.name, Blocking: n.blocking, Duration: elapsed, Timestamp: now,
		})
	case Faulted:
		m.bus.Publish(events.TopicTask, events.TaskFailedEvent{
			ID: n.id, Name: n.name, Blocking: n.blocking, Err: err, Handled: handled, Duration: elapsed, Timestamp: now,
		})
	case Cancelled:
		m.bus.Publish(events.TopicTask, events.TaskCancelledEvent{
			ID: n.id, Name: n.name, Blocking: n.blocking, Timestamp: now,
		})
	}

	st := m.interleave.Stats()
	m.bus.Publish(events.TopicQueue, events.QueueStatsEvent{
		QueuedConcurrent:  st.QueuedConcurrent,
		QueuedExclusive:   st.QueuedExclusive,
		RunningConcurrent: st.RunningConcurrent,
		RunningExclusive:  st.RunningExclusive,
		Timestamp:         now,
	})
}

// unhandled reports a fault nothing claimed. A critical node takes the manager
// down with it.
func (m *Manager) unhandled(n *Node, err error) {
	m.logger.Printf("ERROR: task %q (%s) faulted: %v", n.name, n.id, err)

	m.mu.RLock()
	hooks := append([]func(Task, error){}, m.onUnhandled...)
	m.mu.RUnlock()
	for _, h := range hooks {
		n.guard("unhandled fault hook", func() { h(n.body, err) })
	}

	if n.critical {
		m.logger.Printf("ERROR: critical task %q failed, cancelling all work", n.name)
		m.cancel(err)
	}
}
