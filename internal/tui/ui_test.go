package tui

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/gitbridge/internal/scheduler"
	"github.com/aristath/gitbridge/internal/task"
)

type recordingJob struct {
	ran       atomic.Int32
	lane      atomic.Int32
	cancelErr atomic.Value
}

func (j *recordingJob) Run(lane scheduler.Lane) {
	j.ran.Add(1)
	j.lane.Store(int32(lane))
}

func (j *recordingJob) Cancel(err error) { j.cancelErr.Store(err) }

func TestUIScheduler_QueuesUntilAttached(t *testing.T) {
	s := NewUIScheduler()
	assert.Equal(t, scheduler.LaneUI, s.Lane())

	job := &recordingJob{}
	s.Schedule(job)
	assert.Zero(t, job.ran.Load(), "jobs must only run from RunPending")

	msgs := make(chan tea.Msg, 4)
	s.attach(func(msg tea.Msg) { msgs <- msg })

	select {
	case msg := <-msgs:
		assert.IsType(t, runUIMsg{}, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("attach did not wake the program")
	}

	assert.Equal(t, 1, s.RunPending())
	assert.EqualValues(t, 1, job.ran.Load())
	assert.EqualValues(t, scheduler.LaneUI, job.lane.Load())
	assert.Zero(t, s.RunPending())
}

func TestUIScheduler_CoalescesWakeups(t *testing.T) {
	s := NewUIScheduler()
	var sent atomic.Int32
	woke := make(chan struct{}, 8)
	s.attach(func(tea.Msg) {
		sent.Add(1)
		woke <- struct{}{}
	})

	for range 5 {
		s.Schedule(&recordingJob{})
	}
	<-woke
	assert.Equal(t, 5, s.RunPending())
	assert.EqualValues(t, 1, sent.Load())

	s.Schedule(&recordingJob{})
	<-woke
	assert.EqualValues(t, 2, sent.Load())
}

func TestUIScheduler_CloseCancelsQueuedAndLaterJobs(t *testing.T) {
	s := NewUIScheduler()
	queued := &recordingJob{}
	s.Schedule(queued)

	s.Close()
	assert.Equal(t, ErrUIClosed, queued.cancelErr.Load())

	late := &recordingJob{}
	s.Schedule(late)
	assert.Equal(t, ErrUIClosed, late.cancelErr.Load())
	assert.Zero(t, s.RunPending())
	assert.Zero(t, late.ran.Load())
}

func TestUIScheduler_RunsUIAffineTasks(t *testing.T) {
	ui := NewUIScheduler()
	m := task.NewManager(context.Background(), task.Config{
		UI:     ui,
		Logger: log.New(io.Discard, "", 0),
	})
	t.Cleanup(m.Stop)

	var ranOn atomic.Int64
	produce := task.NewFunc(m, func(context.Context, bool) (int, error) {
		return 21, nil
	}, task.WithName("produce"))
	show := task.NewFuncFrom(m, func(_ context.Context, _ bool, prev int) (int, error) {
		ranOn.Add(1)
		return prev * 2, nil
	}, task.WithName("show"), task.WithAffinity(task.UI))
	produce.Then(show, false)
	show.Start()

	require.Eventually(t, func() bool {
		ui.RunPending()
		return show.State().Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, show.Wait())
	assert.Equal(t, 42, show.Result())
	assert.EqualValues(t, 1, ranOn.Load())
}
