package tui

import (
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/gitbridge/internal/scheduler"
)

// ErrUIClosed cancels UI jobs that were still queued when the program exited.
var ErrUIClosed = errors.New("tui: program closed")

// runUIMsg asks the model to run queued UI jobs.
type runUIMsg struct{}

// UIScheduler runs UI-affine jobs inside the Bubble Tea update loop. Jobs queue up
// until the program delivers a wake message, then run in Update, so they may touch
// state the model renders without locking.
type UIScheduler struct {
	loop *scheduler.Loop

	mu     sync.Mutex
	send   func(tea.Msg)
	woken  bool
	closed bool
}

// NewUIScheduler creates a scheduler. Jobs queue until Attach is called.
func NewUIScheduler() *UIScheduler {
	return &UIScheduler{loop: scheduler.NewLoop()}
}

// Attach connects the scheduler to a running program.
func (s *UIScheduler) Attach(p *tea.Program) {
	s.attach(p.Send)
}

func (s *UIScheduler) attach(send func(tea.Msg)) {
	s.mu.Lock()
	s.send = send
	s.mu.Unlock()
	if s.loop.Len() > 0 {
		s.wake()
	}
}

// Lane returns LaneUI.
func (s *UIScheduler) Lane() scheduler.Lane { return scheduler.LaneUI }

// Schedule queues job for the UI loop. Safe to call from any goroutine, including
// the UI loop itself.
func (s *UIScheduler) Schedule(job scheduler.Job) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		job.Cancel(ErrUIClosed)
		return
	}
	s.mu.Unlock()

	s.loop.Schedule(job)
	s.wake()
}

func (s *UIScheduler) wake() {
	s.mu.Lock()
	send := s.send
	if send == nil || s.woken || s.closed {
		s.mu.Unlock()
		return
	}
	s.woken = true
	s.mu.Unlock()

	// Send blocks until Update reads it, and Schedule may be called from Update.
	go send(runUIMsg{})
}

// RunPending runs queued jobs on the calling goroutine, which must be the UI loop.
func (s *UIScheduler) RunPending() int {
	s.mu.Lock()
	s.woken = false
	s.mu.Unlock()
	return s.loop.Drain()
}

// Close cancels queued jobs and rejects new ones.
func (s *UIScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.loop.CancelQueued(ErrUIClosed)
}
