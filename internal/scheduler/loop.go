package scheduler

import (
	"context"
	"sync"
)

// Loop is a UI-affine scheduler for hosts that own a plain main loop instead of a
// UI toolkit. Every job runs on the goroutine that calls Run or Drain.
type Loop struct {
	mu    sync.Mutex
	queue []Job
	wake  chan struct{}
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Schedule queues job for the loop goroutine. Safe to call from any goroutine.
func (l *Loop) Schedule(job Job) {
	l.mu.Lock()
	l.queue = append(l.queue, job)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Lane returns LaneUI.
func (l *Loop) Lane() Lane { return LaneUI }

// Run executes jobs on the calling goroutine until ctx is done. Jobs still queued at
// that point are cancelled with ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()

		select {
		case <-ctx.Done():
			l.CancelQueued(ctx.Err())
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Drain runs queued jobs, including ones queued while draining, until the queue is
// empty. Returns the number of jobs run.
func (l *Loop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		job := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		job.Run(LaneUI)
		n++
	}
}

// Len returns the number of queued jobs.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// CancelQueued removes every queued job and cancels it with err.
func (l *Loop) CancelQueued(err error) {
	l.mu.Lock()
	queued := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, job := range queued {
		job.Cancel(err)
	}
}
