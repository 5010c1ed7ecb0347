package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/gitbridge/internal/events"
)

// QueuePaneModel shows scheduler load and task totals.
type QueuePaneModel struct {
	stats     events.QueueStatsEvent
	started   int
	completed int
	failed    int
	cancelled int
	downloads map[string]events.DownloadProgressEvent
	width     int
	height    int
	focused   bool
}

// NewQueuePaneModel creates an empty queue pane.
func NewQueuePaneModel() QueuePaneModel {
	return QueuePaneModel{downloads: make(map[string]events.DownloadProgressEvent)}
}

// Update handles messages for the queue pane.
func (m QueuePaneModel) Update(msg tea.Msg) (QueuePaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.QueueStatsEvent:
		m.stats = msg
	case events.TaskStartedEvent:
		m.started++
	case events.TaskCompletedEvent:
		m.completed++
		delete(m.downloads, msg.ID)
	case events.TaskFailedEvent:
		m.failed++
		delete(m.downloads, msg.ID)
	case events.TaskCancelledEvent:
		m.cancelled++
		delete(m.downloads, msg.ID)
	case events.DownloadProgressEvent:
		m.downloads[msg.ID] = msg
	}
	return m, nil
}

// Running returns the number of tasks currently executing.
func (m QueuePaneModel) Running() int {
	n := m.stats.RunningConcurrent
	if m.stats.RunningExclusive {
		n++
	}
	return n
}

// Queued returns the number of tasks waiting for a lane.
func (m QueuePaneModel) Queued() int {
	return m.stats.QueuedConcurrent + m.stats.QueuedExclusive
}

// View renders the queue pane.
func (m QueuePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Queue")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	exclusive := "idle"
	if m.stats.RunningExclusive {
		exclusive = StyleStatusRunning.Render("busy")
	}
	fmt.Fprintf(&b, "Concurrent: %s running, %d queued\n",
		StyleStatusRunning.Render(fmt.Sprintf("%d", m.stats.RunningConcurrent)), m.stats.QueuedConcurrent)
	fmt.Fprintf(&b, "Exclusive:  %s, %d queued\n", exclusive, m.stats.QueuedExclusive)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed)))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed)))
	fmt.Fprintf(&b, "Cancelled: %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.cancelled)))

	finished := m.completed + m.failed + m.cancelled
	total := finished + m.Running() + m.Queued()
	if total > 0 {
		barWidth := min(m.width-4, 40)
		completedWidth := m.completed * barWidth / total
		failedWidth := m.failed * barWidth / total
		runningWidth := m.Running() * barWidth / total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))
		fmt.Fprintf(&b, "\n[%s]  %d/%d\n", bar, finished, total)
	}

	for _, id := range slices.Sorted(maps.Keys(m.downloads)) {
		d := m.downloads[id]
		b.WriteString("\n")
		b.WriteString(renderDownload(d))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func renderDownload(d events.DownloadProgressEvent) string {
	if d.Total <= 0 {
		return fmt.Sprintf("↓ %s  %d bytes", d.URL, d.Written)
	}
	return fmt.Sprintf("↓ %s  %d%%", d.URL, d.Written*100/d.Total)
}

// SetSize updates the pane dimensions.
func (m *QueuePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *QueuePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
