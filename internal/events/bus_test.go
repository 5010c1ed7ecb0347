package events

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskStartedEvent{
		ID:        "task-1",
		Name:      "git status",
		Affinity:  "concurrent",
		Timestamp: time.Now(),
	})

	select {
	case received := <-ch:
		if received.TaskID() != "task-1" {
			t.Errorf("expected task ID 'task-1', got '%s'", received.TaskID())
		}
		if received.EventType() != EventTypeTaskStarted {
			t.Errorf("expected event type '%s', got '%s'", EventTypeTaskStarted, received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

// TestMultipleSubscribers verifies every subscriber receives the same event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)

	bus.Publish(TopicTask, TaskCompletedEvent{
		ID:        "task-2",
		Duration:  100 * time.Millisecond,
		Timestamp: time.Now(),
	})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.TaskID() != "task-2" {
				t.Errorf("subscriber %d: expected task ID 'task-2', got '%s'", i+1, received.TaskID())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout waiting for event", i+1)
		}
	}
}

// TestNonBlockingSend verifies publishing to a full subscriber drops instead of blocking.
func TestNonBlockingSend(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TopicTask, TaskOutputEvent{ID: fmt.Sprintf("task-%d", i), Line: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked (expected non-blocking behavior)")
	}

	if got := bus.Dropped(ch); got != 9 {
		t.Errorf("expected 9 dropped events, got %d", got)
	}

	received := <-ch
	if received.TaskID() != "task-0" {
		t.Errorf("expected the first event to be buffered, got %s", received.TaskID())
	}
}

// TestCloseSignalsSubscribers verifies that closing the bus closes subscriber channels.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TopicTask, 10)
	all := bus.SubscribeAll(10)

	bus.Close()
	bus.Close()

	for range ch {
		t.Error("unexpected event after close")
	}
	for range all {
		t.Error("unexpected event after close")
	}

	late := bus.Subscribe(TopicTask, 1)
	if _, ok := <-late; ok {
		t.Error("subscribing to a closed bus should return a closed channel")
	}
}

// TestPublishAfterClose verifies publishing after close doesn't panic.
func TestPublishAfterClose(t *testing.T) {
	bus := NewEventBus()
	bus.Close()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("publishing after close caused panic: %v", r)
		}
	}()
	bus.Publish(TopicTask, TaskCancelledEvent{ID: "task-1"})
}

// TestTopicsAndSubscribeAll verifies topic isolation and cross-topic subscribers.
func TestTopicsAndSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	queueCh := bus.Subscribe(TopicQueue, 10)
	allCh := bus.SubscribeAll(10)

	bus.Publish(TopicTask, TaskFailedEvent{ID: "t1", Err: errors.New("exit status 128")})
	bus.Publish(TopicQueue, QueueStatsEvent{QueuedConcurrent: 3})

	if ev := <-taskCh; ev.EventType() != EventTypeTaskFailed {
		t.Errorf("task topic got %s", ev.EventType())
	}
	if ev := <-queueCh; ev.EventType() != EventTypeQueueStats {
		t.Errorf("queue topic got %s", ev.EventType())
	}
	select {
	case ev := <-taskCh:
		t.Errorf("task topic received foreign event %s", ev.EventType())
	default:
	}

	var types []string
	for i := 0; i < 2; i++ {
		types = append(types, (<-allCh).EventType())
	}
	if types[0] != EventTypeTaskFailed || types[1] != EventTypeQueueStats {
		t.Errorf("SubscribeAll got %v", types)
	}
}

// TestUnsubscribe verifies an unsubscribed channel is closed and receives nothing more.
func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	keep := bus.Subscribe(TopicDownload, 10)
	gone := bus.Subscribe(TopicDownload, 10)
	all := bus.SubscribeAll(10)

	bus.Unsubscribe(gone)
	bus.Unsubscribe(all)
	bus.Unsubscribe(gone) // unknown now, ignored

	bus.Publish(TopicDownload, DownloadProgressEvent{ID: "d1", Written: 10, Total: -1})

	if _, ok := <-gone; ok {
		t.Error("unsubscribed channel should be closed")
	}
	if _, ok := <-all; ok {
		t.Error("unsubscribed SubscribeAll channel should be closed")
	}
	if ev := <-keep; ev.TaskID() != "d1" {
		t.Errorf("remaining subscriber got %s", ev.TaskID())
	}
}
