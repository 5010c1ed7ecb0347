package history

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/gitbridge/internal/events"
	"github.com/aristath/gitbridge/internal/task"
)

func TestRecorder_RecordsTaskLifecycle(t *testing.T) {
	store := testStore(t)
	bus := events.NewEventBus()
	defer bus.Close()
	logger := log.New(io.Discard, "", 0)

	rec := NewRecorder(store, bus, logger)
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	m := task.NewManager(context.Background(), task.Config{MaxConcurrency: 2, Logger: logger, Bus: bus})
	defer m.Stop()

	ok := task.RunAsync(m, func(context.Context) (int, error) { return 1, nil }, task.WithName("works"), task.WithBlocking())
	bad := task.RunAsync(m, func(context.Context) (int, error) { return 0, errors.New("boom") }, task.WithName("breaks"))
	bad.Catch(func(error) bool { return true })
	ok.Start()
	bad.Start()
	require.NoError(t, ok.Wait())
	require.Error(t, bad.Wait())

	bus.Publish(events.TopicTask, events.TaskOutputEvent{ID: ok.ID(), Line: "hello"})

	stop()
	<-done

	run, err := store.GetRun(context.Background(), ok.ID())
	require.NoError(t, err)
	assert.Equal(t, "works", run.Name)
	assert.Equal(t, StateCompleted, run.State)
	assert.True(t, run.Blocking)
	assert.False(t, run.StartedAt.IsZero())

	failed, err := store.GetRun(context.Background(), bad.ID())
	require.NoError(t, err)
	assert.Equal(t, StateFaulted, failed.State)
	assert.Equal(t, "boom", failed.Error)
	assert.True(t, failed.Handled)

	lines, err := store.Output(context.Background(), ok.ID())
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "hello", lines[0].Line)
}

func TestRecorder_CapsOutputLines(t *testing.T) {
	store := testStore(t)
	bus := events.NewEventBus()
	defer bus.Close()

	rec := NewRecorder(store, bus, log.New(io.Discard, "", 0))
	rec.SetMaxOutputLines(2)

	rec.record(events.TaskStartedEvent{ID: "r", Name: "chatty"})
	for _, l := range []string{"1", "2", "3"} {
		rec.record(events.TaskOutputEvent{ID: "r", Line: l})
	}

	lines, err := store.Output(context.Background(), "r")
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestRecorder_StopsWhenBusCloses(t *testing.T) {
	bus := events.NewEventBus()
	rec := NewRecorder(testStore(t), bus, log.New(io.Discard, "", 0))

	done := make(chan struct{})
	go func() {
		rec.Run(context.Background())
		close(done)
	}()
	bus.Close()
	<-done
}
