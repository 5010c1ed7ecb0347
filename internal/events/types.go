package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicQueue    = "queue"
	TopicDownload = "download"
)

// Event type constants
const (
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskOutput       = "task.output"
	EventTypeTaskCompleted    = "task.completed"
	EventTypeTaskFailed       = "task.failed"
	EventTypeTaskCancelled    = "task.cancelled"
	EventTypeQueueStats       = "queue.stats"
	EventTypeDownloadProgress = "download.progress"
)

// TaskStartedEvent is published when a task begins execution. Blocking tasks ask
// the host to show a busy indicator until the matching terminal event arrives.
type TaskStartedEvent struct {
	ID        string
	Name      string
	Affinity  string
	Blocking  bool
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskOutputEvent is published for each line a process task reads.
type TaskOutputEvent struct {
	ID        string
	Line      string
	Timestamp time.Time
}

func (e TaskOutputEvent) EventType() string { return EventTypeTaskOutput }
func (e TaskOutputEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task ran to completion.
type TaskCompletedEvent struct {
	ID        string
	Name      string
	Blocking  bool
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task faults. Handled is true when a fault
// handler claimed the error.
type TaskFailedEvent struct {
	ID        string
	Name      string
	Blocking  bool
	Err       error
	Handled   bool
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskCancelledEvent is published when a task is cancelled, whether or not it ran.
type TaskCancelledEvent struct {
	ID        string
	Name      string
	Blocking  bool
	Timestamp time.Time
}

func (e TaskCancelledEvent) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) TaskID() string    { return e.ID }

// QueueStatsEvent is a snapshot of the scheduler queues.
type QueueStatsEvent struct {
	QueuedConcurrent  int
	QueuedExclusive   int
	RunningConcurrent int
	RunningExclusive  bool
	Timestamp         time.Time
}

func (e QueueStatsEvent) EventType() string { return EventTypeQueueStats }
func (e QueueStatsEvent) TaskID() string    { return "" }

// DownloadProgressEvent reports bytes written for a download task. Total is -1 when
// the server did not announce a length.
type DownloadProgressEvent struct {
	ID        string
	URL       string
	Written   int64
	Total     int64
	Timestamp time.Time
}

func (e DownloadProgressEvent) EventType() string { return EventTypeDownloadProgress }
func (e DownloadProgressEvent) TaskID() string    { return e.ID }
