// Package tui is the terminal front end. It renders task events from the bus and
// hosts the UI lane, so UI-affine tasks run inside the Bubble Tea update loop.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/gitbridge/internal/config"
	"github.com/aristath/gitbridge/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneRepo
	PaneQueue
)

const paneCount = 3

// Options wires a Model to the rest of the program.
type Options struct {
	Bus         *events.EventBus
	UI          *UIScheduler // may be nil when no task uses the UI lane
	Config      *config.Config
	GlobalPath  string
	ProjectPath string
	Repo        *RepoView
	Refresh     func() // starts a repository refresh; may be nil
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	tasksPane    TasksPaneModel
	repoPane     RepoPaneModel
	queuePane    QueuePaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	ui           *UIScheduler
	refresh      func()
	spinner      spinner.Model
	blocking     map[string]string // task ID -> name of running blocking tasks
	width        int
	height       int
	quitting     bool
	showSettings bool
}

// New creates the root model and subscribes to every topic on the bus.
func New(opts Options) Model {
	return Model{
		tasksPane:    NewTasksPaneModel(),
		repoPane:     NewRepoPaneModel(opts.Repo),
		queuePane:    NewQueuePaneModel(),
		settingsPane: NewSettingsPaneModel(opts.Config, opts.GlobalPath, opts.ProjectPath),
		focusedPane:  PaneTasks,
		eventSub:     opts.Bus.SubscribeAll(256),
		ui:           opts.UI,
		refresh:      opts.Refresh,
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(StyleBusy)),
		blocking:     make(map[string]string),
	}
}

// Init starts listening for events and kicks off the first refresh.
func (m Model) Init() tea.Cmd {
	if m.refresh != nil {
		m.refresh()
	}
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showSettings {
			return m.updateSettings(msg)
		}
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case runUIMsg:
		if m.ui != nil {
			m.ui.RunPending()
		}

	case spinner.TickMsg:
		if len(m.blocking) > 0 {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tickMsg:
		var cmd tea.Cmd
		m.tasksPane, cmd = m.tasksPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.Event:
		cmds = append(cmds, m.handleEvent(msg), waitForEvent(m.eventSub))

	default:
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// handleEvent routes a bus event to the panes and tracks blocking tasks.
func (m *Model) handleEvent(ev events.Event) tea.Cmd {
	var cmds []tea.Cmd

	switch e := ev.(type) {
	case events.TaskStartedEvent:
		if e.Blocking {
			if len(m.blocking) == 0 {
				cmds = append(cmds, m.spinner.Tick)
			}
			m.blocking[e.ID] = e.Name
		}
	case events.TaskCompletedEvent, events.TaskFailedEvent, events.TaskCancelledEvent:
		delete(m.blocking, e.TaskID())
	}

	switch ev.(type) {
	case events.TaskStartedEvent, events.TaskOutputEvent, events.TaskCompletedEvent,
		events.TaskFailedEvent, events.TaskCancelledEvent:
		var cmd tea.Cmd
		m.tasksPane, cmd = m.tasksPane.Update(ev)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.queuePane, cmd = m.queuePane.Update(ev)
	cmds = append(cmds, cmd)

	return tea.Batch(cmds...)
}

func (m Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == KeyEsc {
		m.showSettings = false
		m.settingsPane.SetVisible(false)
		return m, nil
	}

	var cmd tea.Cmd
	m.settingsPane, cmd = m.settingsPane.Update(msg)
	if !m.settingsPane.IsVisible() {
		m.showSettings = false
	}
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyCtrlC:
		m.quitting = true
		return m, tea.Quit

	case KeySettings:
		m.showSettings = true
		m.settingsPane.SetVisible(true)
		return m, m.settingsPane.Init()

	case KeyRefresh:
		if m.refresh != nil {
			m.refresh()
		}

	case KeyTab:
		m.focusedPane = (m.focusedPane + 1) % paneCount
		m.updateFocusStates()

	case KeyShiftTab:
		m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
		m.updateFocusStates()

	default:
		if pane, ok := paneKeys[msg.String()]; ok {
			m.focusedPane = pane
			m.updateFocusStates()
			break
		}
		var cmd tea.Cmd
		switch m.focusedPane {
		case PaneTasks:
			m.tasksPane, cmd = m.tasksPane.Update(msg)
		case PaneRepo:
			m.repoPane, cmd = m.repoPane.Update(msg)
		case PaneQueue:
			m.queuePane, cmd = m.queuePane.Update(msg)
		}
		return m, cmd
	}

	return m, nil
}

// Busy reports whether a blocking task is running.
func (m Model) Busy() bool { return len(m.blocking) > 0 }

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showSettings {
		return m.settingsPane.View()
	}

	right := lipgloss.JoinVertical(lipgloss.Left, m.repoPane.View(), m.queuePane.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.tasksPane.View(), right)
	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusBar())
}

// statusBar shows the spinner and blocking task names while any blocking task runs,
// and the key help otherwise.
func (m Model) statusBar() string {
	if len(m.blocking) == 0 {
		return HelpView(m.focusedPane)
	}
	names := make([]string, 0, len(m.blocking))
	for _, name := range m.blocking {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s %s", m.spinner.View(), StyleBusy.Render(strings.Join(names, ", ")))
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 45) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // status bar
	repoHeight := (availableHeight * 60) / 100

	m.tasksPane.SetSize(leftWidth, availableHeight)
	m.repoPane.SetSize(rightWidth, repoHeight)
	m.queuePane.SetSize(rightWidth, availableHeight-repoHeight)
	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.tasksPane.SetFocused(m.focusedPane == PaneTasks)
	m.repoPane.SetFocused(m.focusedPane == PaneRepo)
	m.queuePane.SetFocused(m.focusedPane == PaneQueue)
}
