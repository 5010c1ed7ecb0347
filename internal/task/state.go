package task

import "github.com/aristath/gitbridge/internal/scheduler"

// State is the lifecycle state of a task node. Transitions are monotonic:
// Created -> Running -> {RanToCompletion | Faulted | Cancelled}, with Created jumping
// straight to Faulted or Cancelled when the node is skipped without running.
type State int32

const (
	Created         State = iota // Built, not yet run
	Running                      // Unit of work executing
	RanToCompletion              // Finished successfully
	Faulted                      // Finished with an error, or skipped after an upstream fault
	Cancelled                    // Cancelled before or during execution
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case RanToCompletion:
		return "completed"
	case Faulted:
		return "faulted"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == RanToCompletion || s == Faulted || s == Cancelled
}

// Affinity selects the lane a task runs on. It is fixed at construction.
type Affinity int

const (
	Concurrent Affinity = iota // May run alongside other concurrent tasks
	Exclusive                  // Runs alone; nothing else runs meanwhile
	UI                         // Runs on the host's UI loop
)

// String returns the affinity name.
func (a Affinity) String() string {
	switch a {
	case Concurrent:
		return "concurrent"
	case Exclusive:
		return "exclusive"
	case UI:
		return "ui"
	default:
		return "unknown"
	}
}

func (a Affinity) lane() scheduler.Lane {
	switch a {
	case Exclusive:
		return scheduler.LaneExclusive
	case UI:
		return scheduler.LaneUI
	default:
		return scheduler.LaneConcurrent
	}
}
