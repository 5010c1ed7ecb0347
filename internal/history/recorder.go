package history

import (
	"context"
	"log"
	"sync"

	"github.com/aristath/gitbridge/internal/events"
)

// DefaultMaxOutputLines caps the lines kept per run.
const DefaultMaxOutputLines = 500

// Recorder writes task lifecycle events from a bus into a Store.
type Recorder struct {
	store    Store
	bus      *events.EventBus
	sub      <-chan events.Event
	logger   *log.Logger
	maxLines int

	mu    sync.Mutex
	lines map[string]int
}

// NewRecorder subscribes to task events on bus. Call Run to start recording.
func NewRecorder(store Store, bus *events.EventBus, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		store:    store,
		bus:      bus,
		sub:      bus.Subscribe(events.TopicTask, 1024),
		logger:   logger,
		maxLines: DefaultMaxOutputLines,
		lines:    make(map[string]int),
	}
}

// SetMaxOutputLines changes the per-run line cap. 0 disables output capture.
func (r *Recorder) SetMaxOutputLines(n int) {
	r.mu.Lock()
	r.maxLines = n
	r.mu.Unlock()
}

// Run records events until ctx is done or the bus is closed. Events already
// buffered when ctx is cancelled are still written.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case ev, ok := <-r.sub:
			if !ok {
				return
			}
			r.record(ev)
		case <-ctx.Done():
			r.bus.Unsubscribe(r.sub)
			for ev := range r.sub {
				r.record(ev)
			}
			return
		}
	}
}

func (r *Recorder) record(ev events.Event) {
	// Writes outlive the caller's context so shutdown does not lose the final states
	ctx := context.Background()

	var err error
	switch e := ev.(type) {
	case events.TaskStartedEvent:
		err = r.store.RecordStart(ctx, Run{
			ID:        e.ID,
			Name:      e.Name,
			Affinity:  e.Affinity,
			Blocking:  e.Blocking,
			StartedAt: e.Timestamp,
		})
	case events.TaskOutputEvent:
		if !r.keepLine(e.ID) {
			return
		}
		err = r.store.AppendOutput(ctx, e.ID, e.Line, e.Timestamp)
	case events.TaskCompletedEvent:
		r.forget(e.ID)
		err = r.store.RecordFinish(ctx, Run{
			ID:         e.ID,
			Name:       e.Name,
			Blocking:   e.Blocking,
			State:      StateCompleted,
			FinishedAt: e.Timestamp,
			Duration:   e.Duration,
		})
	case events.TaskFailedEvent:
		r.forget(e.ID)
		run := Run{
			ID:         e.ID,
			Name:       e.Name,
			Blocking:   e.Blocking,
			State:      StateFaulted,
			Handled:    e.Handled,
			FinishedAt: e.Timestamp,
			Duration:   e.Duration,
		}
		if e.Err != nil {
			run.Error = e.Err.Error()
		}
		err = r.store.RecordFinish(ctx, run)
	case events.TaskCancelledEvent:
		r.forget(e.ID)
		err = r.store.RecordFinish(ctx, Run{
			ID:         e.ID,
			Name:       e.Name,
			Blocking:   e.Blocking,
			State:      StateCancelled,
			FinishedAt: e.Timestamp,
		})
	default:
		return
	}

	if err != nil {
		r.logger.Printf("WARNING: history: %v", err)
	}
}

func (r *Recorder) keepLine(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lines[id] >= r.maxLines {
		return false
	}
	r.lines[id]++
	return true
}

func (r *Recorder) forget(id string) {
	r.mu.Lock()
	delete(r.lines, id)
	r.mu.Unlock()
}
