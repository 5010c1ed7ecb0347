package scheduler

import (
	"context"
	"log"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// InterleaveConfig configures an Interleave.
type InterleaveConfig struct {
	MaxConcurrency int  // Max concurrent-lane jobs running at once (default GOMAXPROCS)
	Excluded       Lane // Lane never used for inline execution (default LaneUI)
}

// Stats is a point-in-time snapshot of the interleave queues.
type Stats struct {
	QueuedConcurrent  int
	QueuedExclusive   int
	RunningConcurrent int
	RunningExclusive  bool
	Pending           int // Queued plus running
}

// Interleave exposes two logical schedulers over one bounded pool of goroutines.
//
// Jobs on the exclusive lane run one at a time, never alongside concurrent-lane
// jobs. Jobs on the concurrent lane run with up to MaxConcurrency parallelism, but
// no new concurrent job is admitted while the exclusive queue is non-empty. A single
// coordinator goroutine makes all admission decisions; it exits when both queues are
// empty and is restarted by the next enqueue.
type Interleave struct {
	ctx            context.Context
	maxConcurrency int64
	excluded       Lane
	slots          *semaphore.Weighted

	mu           sync.Mutex
	idle         *sync.Cond
	concurrent   []Job
	exclusive    []Job
	coordinating bool
	pending      int
	running      int
	exclusiveRun bool

	concurrentLane *laneScheduler
	exclusiveLane  *laneScheduler
}

// NewInterleave creates an Interleave bound to ctx. Once ctx is cancelled the
// coordinator stops admitting work and cancels every queued job; jobs already
// running are left to finish.
func NewInterleave(ctx context.Context, cfg InterleaveConfig) *Interleave {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = runtime.GOMAXPROCS(0)
	}
	if cfg.Excluded == LaneNone {
		cfg.Excluded = LaneUI
	}

	i := &Interleave{
		ctx:            ctx,
		maxConcurrency: int64(cfg.MaxConcurrency),
		excluded:       cfg.Excluded,
		slots:          semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
	}
	i.idle = sync.NewCond(&i.mu)
	i.concurrentLane = &laneScheduler{i: i, lane: LaneConcurrent}
	i.exclusiveLane = &laneScheduler{i: i, lane: LaneExclusive}
	return i
}

// ConcurrentScheduler returns the bounded-parallel lane.
func (i *Interleave) ConcurrentScheduler() Scheduler { return i.concurrentLane }

// ExclusiveScheduler returns the serial lane.
func (i *Interleave) ExclusiveScheduler() Scheduler { return i.exclusiveLane }

// MaxConcurrency returns the concurrent-lane bound.
func (i *Interleave) MaxConcurrency() int { return int(i.maxConcurrency) }

// CanInline reports whether work destined for lane to may run synchronously on a
// goroutine currently executing on lane from. The excluded lane never executes
// inlined interleave work; a concurrent slot never runs exclusive work.
func (i *Interleave) CanInline(from, to Lane) bool {
	if from == LaneNone || from == i.excluded {
		return false
	}
	switch to {
	case LaneConcurrent:
		return from == LaneConcurrent || from == LaneExclusive
	case LaneExclusive:
		return from == LaneExclusive
	default:
		return false
	}
}

// Wait blocks until both queues are empty and no job is running.
func (i *Interleave) Wait() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for i.pending > 0 {
		i.idle.Wait()
	}
}

// Stats returns a snapshot of the queue state.
func (i *Interleave) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Stats{
		QueuedConcurrent:  len(i.concurrent),
		QueuedExclusive:   len(i.exclusive),
		RunningConcurrent: i.running,
		RunningExclusive:  i.exclusiveRun,
		Pending:           i.pending,
	}
}

func (i *Interleave) enqueue(lane Lane, job Job) {
	i.mu.Lock()
	if err := i.ctx.Err(); err != nil {
		i.mu.Unlock()
		job.Cancel(err)
		return
	}

	if lane == LaneExclusive {
		i.exclusive = append(i.exclusive, job)
	} else {
		i.concurrent = append(i.concurrent, job)
	}
	i.pending++

	start := !i.coordinating
	i.coordinating = true
	i.mu.Unlock()

	if start {
		go i.coordinate()
	}
}

// coordinate is the single decision loop: exclusive first, then concurrent until
// exclusive work shows up again, then exit when idle.
func (i *Interleave) coordinate() {
	for {
		i.mu.Lock()

		if err := i.ctx.Err(); err != nil {
			dropped := make([]Job, 0, len(i.exclusive)+len(i.concurrent))
			dropped = append(dropped, i.exclusive...)
			dropped = append(dropped, i.concurrent...)
			i.exclusive = nil
			i.concurrent = nil
			i.coordinating = false
			i.mu.Unlock()

			for _, job := range dropped {
				job.Cancel(err)
				i.finish()
			}
			return
		}

		if len(i.exclusive) > 0 {
			job := i.exclusive[0]
			i.exclusive[0] = nil
			i.exclusive = i.exclusive[1:]
			i.mu.Unlock()

			i.runExclusive(job)
			continue
		}

		if len(i.concurrent) > 0 {
			i.mu.Unlock()
			i.admitConcurrent()
			continue
		}

		i.coordinating = false
		i.mu.Unlock()
		return
	}
}

// runExclusive takes every slot, which waits out in-flight concurrent jobs, and runs
// job on the coordinator goroutine.
func (i *Interleave) runExclusive(job Job) {
	if err := i.slots.Acquire(i.ctx, i.maxConcurrency); err != nil {
		job.Cancel(err)
		i.finish()
		return
	}

	i.mu.Lock()
	i.exclusiveRun = true
	i.mu.Unlock()

	i.execute(job, LaneExclusive)

	i.mu.Lock()
	i.exclusiveRun = false
	i.mu.Unlock()

	i.slots.Release(i.maxConcurrency)
	i.finish()
}

// admitConcurrent starts at most one concurrent job. It yields without starting
// anything if exclusive work arrived while it was waiting for a slot.
func (i *Interleave) admitConcurrent() {
	if err := i.slots.Acquire(i.ctx, 1); err != nil {
		return // the loop head drains the queues
	}

	i.mu.Lock()
	if len(i.exclusive) > 0 || len(i.concurrent) == 0 || i.ctx.Err() != nil {
		i.mu.Unlock()
		i.slots.Release(1)
		return
	}
	job := i.concurrent[0]
	i.concurrent[0] = nil
	i.concurrent = i.concurrent[1:]
	i.running++
	i.mu.Unlock()

	go func() {
		i.execute(job, LaneConcurrent)

		i.mu.Lock()
		i.running--
		i.mu.Unlock()

		i.slots.Release(1)
		i.finish()
	}()
}

func (i *Interleave) execute(job Job, lane Lane) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: job panicked on %s lane: %v", lane, r)
		}
	}()
	job.Run(lane)
}

func (i *Interleave) finish() {
	i.mu.Lock()
	i.pending--
	if i.pending == 0 {
		i.idle.Broadcast()
	}
	i.mu.Unlock()
}

// laneScheduler is the Scheduler handle for one interleave lane.
type laneScheduler struct {
	i    *Interleave
	lane Lane
}

func (s *laneScheduler) Schedule(job Job) { s.i.enqueue(s.lane, job) }
func (s *laneScheduler) Lane() Lane       { return s.lane }
