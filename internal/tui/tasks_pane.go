package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/gitbridge/internal/events"
)

// Task display states.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// maxTaskOutput caps the lines kept per task.
const maxTaskOutput = 1000

// TaskState is what the tasks pane knows about one task.
type TaskState struct {
	ID        string
	Name      string
	Affinity  string
	Status    string
	Output    []string
	StartTime time.Time
	Duration  time.Duration
}

// TasksPaneModel lists tasks and shows the output of the selected one.
type TasksPaneModel struct {
	tasks       map[string]*TaskState
	order       []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int
}

// NewTasksPaneModel creates an empty tasks pane.
func NewTasksPaneModel() TasksPaneModel {
	return TasksPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg debounces viewport refreshes while output streams in.
type tickMsg struct {
	tag int
}

// Update handles messages for the tasks pane.
func (m TasksPaneModel) Update(msg tea.Msg) (TasksPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		case KeyClear:
			m.clearFinished()
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		if _, exists := m.tasks[msg.ID]; exists {
			break
		}
		m.tasks[msg.ID] = &TaskState{
			ID:        msg.ID,
			Name:      msg.Name,
			Affinity:  msg.Affinity,
			Status:    StatusRunning,
			StartTime: msg.Timestamp,
		}
		m.order = append(m.order, msg.ID)
		if len(m.order) == 1 {
			m.selectedIdx = 0
			m.updateViewportContent()
		}

	case events.TaskOutputEvent:
		t, exists := m.tasks[msg.ID]
		if !exists {
			break
		}
		t.Output = append(t.Output, msg.Line)
		if len(t.Output) > maxTaskOutput {
			t.Output = t.Output[len(t.Output)-maxTaskOutput:]
		}
		if m.selectedID() == msg.ID {
			m.updateTag++
			tag := m.updateTag
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
				return tickMsg{tag: tag}
			})
		}

	case events.TaskCompletedEvent:
		m.finish(msg.ID, StatusCompleted, msg.Duration, fmt.Sprintf("[Completed in %v]", msg.Duration.Round(time.Millisecond)))

	case events.TaskFailedEvent:
		line := fmt.Sprintf("[Failed: %v]", msg.Err)
		if msg.Handled {
			line = fmt.Sprintf("[Failed, handled: %v]", msg.Err)
		}
		m.finish(msg.ID, StatusFailed, msg.Duration, line)

	case events.TaskCancelledEvent:
		m.finish(msg.ID, StatusCancelled, 0, "[Cancelled]")

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// finish marks a task terminal. Tasks that were cancelled before they started
// have no entry and are ignored.
func (m *TasksPaneModel) finish(id, status string, d time.Duration, line string) {
	t, exists := m.tasks[id]
	if !exists {
		return
	}
	t.Status = status
	t.Duration = d
	t.Output = append(t.Output, "", line)
	if m.selectedID() == id {
		m.updateViewportContent()
	}
}

// clearFinished drops tasks that are no longer running, keeping the selection on
// the same task when it survives.
func (m *TasksPaneModel) clearFinished() {
	selected := m.selectedID()
	kept := make([]string, 0, len(m.order))
	for _, id := range m.order {
		if m.tasks[id].Status == StatusRunning {
			kept = append(kept, id)
			continue
		}
		delete(m.tasks, id)
	}
	m.order = kept

	m.selectedIdx = 0
	for i, id := range m.order {
		if id == selected {
			m.selectedIdx = i
		}
	}
	m.updateViewportContent()
}

// View renders the tasks pane.
func (m TasksPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TasksPaneModel) renderList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, id := range m.order {
		t := m.tasks[id]
		name := t.Name
		if len(name) > width-6 {
			name = name[:width-9] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case StatusRunning:
		return StyleStatusRunning.Render("●")
	case StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case StatusFailed:
		return StyleStatusFailed.Render("✗")
	case StatusCancelled:
		return StyleStatusPending.Render("⊘")
	default:
		return StyleStatusPending.Render("○")
	}
}

// Task returns the state of a task, or nil if the pane has not seen it start.
func (m TasksPaneModel) Task(id string) *TaskState {
	return m.tasks[id]
}

// Len returns the number of tasks shown.
func (m TasksPaneModel) Len() int { return len(m.order) }

func (m TasksPaneModel) selectedID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

func (m *TasksPaneModel) updateViewportContent() {
	t, exists := m.tasks[m.selectedID()]
	if !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(strings.Join(t.Output, "\n"))
	m.viewport.GotoBottom()
}

func (m *TasksPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-28-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TasksPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TasksPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
