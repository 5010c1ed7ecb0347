package scheduler

// Lane identifies where a job executes.
type Lane int

const (
	LaneNone       Lane = iota // Not running on any scheduler (caller goroutine)
	LaneConcurrent             // Bounded-parallel lane of the interleave
	LaneExclusive              // Serial lane of the interleave, excludes all other work
	LaneUI                     // The host's single-threaded UI loop
)

// String returns the lane name.
func (l Lane) String() string {
	switch l {
	case LaneConcurrent:
		return "concurrent"
	case LaneExclusive:
		return "exclusive"
	case LaneUI:
		return "ui"
	default:
		return "none"
	}
}

// Job is a unit of work handed to a Scheduler.
//
// Exactly one of Run or Cancel is called for every scheduled job. Run receives the
// lane the job is executing on so that it can decide whether follow-up work may be
// executed inline.
type Job interface {
	Run(lane Lane)
	Cancel(err error)
}

// Scheduler accepts jobs for execution on a single lane.
type Scheduler interface {
	Schedule(job Job)
	Lane() Lane
}

// JobFunc adapts a plain function to the Job interface. Cancellation is ignored.
type JobFunc func(lane Lane)

// Run calls f(lane).
func (f JobFunc) Run(lane Lane) { f(lane) }

// Cancel is a no-op.
func (f JobFunc) Cancel(error) {}
