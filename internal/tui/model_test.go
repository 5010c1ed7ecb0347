package tui

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/gitbridge/internal/config"
	"github.com/aristath/gitbridge/internal/events"
)

func newTestModel(t *testing.T, refresh func()) Model {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Close)
	dir := t.TempDir()
	return New(Options{
		Bus:         bus,
		UI:          NewUIScheduler(),
		Config:      config.DefaultConfig(),
		GlobalPath:  filepath.Join(dir, "global.json"),
		ProjectPath: filepath.Join(dir, "project.json"),
		Repo:        &RepoView{Path: dir},
		Refresh:     refresh,
	})
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case KeyTab:
		return tea.KeyMsg{Type: tea.KeyTab}
	case KeyShiftTab:
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case KeyEsc:
		return tea.KeyMsg{Type: tea.KeyEsc}
	case KeyCtrlC:
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_TracksBlockingTasks(t *testing.T) {
	m := newTestModel(t, nil)
	now := time.Now()

	m, cmd := update(t, m, events.TaskStartedEvent{ID: "a", Name: "git fetch", Blocking: true, Timestamp: now})
	assert.NotNil(t, cmd)
	assert.True(t, m.Busy())

	m, _ = update(t, m, events.TaskStartedEvent{ID: "b", Name: "git status", Timestamp: now})
	assert.Len(t, m.blocking, 1, "non-blocking tasks do not show the spinner")

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Contains(t, m.View(), "git fetch")

	m, _ = update(t, m, events.TaskFailedEvent{ID: "a", Name: "git fetch", Blocking: true, Err: errors.New("boom")})
	assert.False(t, m.Busy())
	assert.Equal(t, StatusFailed, m.tasksPane.Task("a").Status)
	assert.Equal(t, StatusRunning, m.tasksPane.Task("b").Status)
	assert.Contains(t, m.View(), "Tab: cycle focus")
}

func TestModel_CancelledBlockingTaskClearsSpinner(t *testing.T) {
	m := newTestModel(t, nil)
	m, _ = update(t, m, events.TaskStartedEvent{ID: "a", Name: "clone", Blocking: true})
	m, _ = update(t, m, events.TaskCancelledEvent{ID: "a", Name: "clone", Blocking: true})
	assert.False(t, m.Busy())
	assert.Equal(t, StatusCancelled, m.tasksPane.Task("a").Status)
}

func TestModel_EventsFeedQueuePane(t *testing.T) {
	m := newTestModel(t, nil)
	m, _ = update(t, m, events.QueueStatsEvent{QueuedConcurrent: 2, QueuedExclusive: 1, RunningConcurrent: 3})
	assert.Equal(t, 3, m.queuePane.Running())
	assert.Equal(t, 3, m.queuePane.Queued())

	m, _ = update(t, m, events.QueueStatsEvent{RunningExclusive: true})
	assert.Equal(t, 1, m.queuePane.Running())

	m, _ = update(t, m, events.DownloadProgressEvent{ID: "d", URL: "https://example.com/a", Written: 50, Total: 100})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 50})
	assert.Contains(t, m.queuePane.View(), "50%")

	m, _ = update(t, m, events.TaskCompletedEvent{ID: "d"})
	assert.NotContains(t, m.queuePane.View(), "example.com")
}

func TestModel_FocusCycling(t *testing.T) {
	m := newTestModel(t, nil)
	assert.Equal(t, PaneTasks, m.focusedPane)

	m, _ = update(t, m, key(KeyTab))
	assert.Equal(t, PaneRepo, m.focusedPane)
	m, _ = update(t, m, key(KeyTab))
	m, _ = update(t, m, key(KeyTab))
	assert.Equal(t, PaneTasks, m.focusedPane)

	m, _ = update(t, m, key(KeyShiftTab))
	assert.Equal(t, PaneQueue, m.focusedPane)

	m, _ = update(t, m, key("2"))
	assert.Equal(t, PaneRepo, m.focusedPane)
	assert.True(t, m.repoPane.focused)
	assert.False(t, m.tasksPane.focused)
}

func TestModel_RefreshAndQuit(t *testing.T) {
	refreshed := 0
	m := newTestModel(t, func() { refreshed++ })

	m.Init()
	assert.Equal(t, 1, refreshed)

	m, _ = update(t, m, key(KeyRefresh))
	assert.Equal(t, 2, refreshed)

	m, cmd := update(t, m, key(KeyQuit))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, "Goodbye!\n", m.View())
}

func TestModel_SettingsToggle(t *testing.T) {
	m := newTestModel(t, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	m, _ = update(t, m, key(KeySettings))
	assert.True(t, m.showSettings)
	assert.Contains(t, m.View(), "Settings")

	// q goes to the form while settings are open
	m, _ = update(t, m, key(KeyQuit))
	assert.False(t, m.quitting)

	m, _ = update(t, m, key(KeyEsc))
	assert.False(t, m.showSettings)
}

func TestModel_RunUIMsgDrainsScheduler(t *testing.T) {
	m := newTestModel(t, nil)
	job := &recordingJob{}
	m.ui.Schedule(job)

	m, _ = update(t, m, runUIMsg{})
	assert.EqualValues(t, 1, job.ran.Load())
}

func TestTasksPane_OutputCapAndUnknownTasks(t *testing.T) {
	p := NewTasksPaneModel()
	p, _ = p.Update(events.TaskCancelledEvent{ID: "never-started"})
	assert.Nil(t, p.Task("never-started"))
	assert.Zero(t, p.Len())

	p, _ = p.Update(events.TaskStartedEvent{ID: "a", Name: "log"})
	for i := range maxTaskOutput + 10 {
		p, _ = p.Update(events.TaskOutputEvent{ID: "a", Line: strings.Repeat("x", i%3)})
	}
	assert.Len(t, p.Task("a").Output, maxTaskOutput)
}

func TestTasksPane_ClearFinishedKeepsRunning(t *testing.T) {
	p := NewTasksPaneModel()
	p.SetFocused(true)
	for _, id := range []string{"a", "b", "c"} {
		p, _ = p.Update(events.TaskStartedEvent{ID: id, Name: id})
	}
	p, _ = p.Update(events.TaskCompletedEvent{ID: "a"})
	p, _ = p.Update(events.TaskFailedEvent{ID: "c", Err: errors.New("boom")})
	p, _ = p.Update(key(KeyJ))

	p, _ = p.Update(key(KeyClear))
	assert.Equal(t, 1, p.Len())
	assert.NotNil(t, p.Task("b"))
	assert.Nil(t, p.Task("a"))
	assert.Nil(t, p.Task("c"))
	assert.Equal(t, "b", p.selectedID())
}

func TestHelpView_FollowsFocusedPane(t *testing.T) {
	assert.Contains(t, HelpView(PaneTasks), "c: clear finished")
	assert.NotContains(t, HelpView(PaneQueue), "clear finished")
	assert.Contains(t, HelpView(PaneRepo), "r: refresh")
}
