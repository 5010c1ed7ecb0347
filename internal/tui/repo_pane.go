package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/gitbridge/internal/git"
	"github.com/aristath/gitbridge/internal/task"
)

// RepoView is the repository snapshot the repo pane renders. It is written only by
// tasks with UI affinity, so Update and View read it without locking.
type RepoView struct {
	Path     string
	Branch   string
	Upstream string
	Ahead    int
	Behind   int
	Entries  []git.StatusEntry
	Commits  []git.Commit
	Err      string
	Updated  time.Time
}

// RefreshRepo builds a chain that reads status and recent commits for view.Path and
// publishes them into view on the UI lane. The caller starts the returned task.
func RefreshRepo(m *task.Manager, c *git.Client, view *RepoView, commits int) task.Task {
	status := c.Status(view.Path)
	log := c.Log(view.Path, "", commits)
	apply := task.NewAction(m, func(_ context.Context, success bool, thrown error) error {
		view.Updated = time.Now()
		if !success {
			view.Err = "cancelled"
			if thrown != nil {
				view.Err = thrown.Error()
			}
			return nil
		}
		s := status.Status()
		view.Err = ""
		view.Branch = s.Branch
		view.Upstream = s.Upstream
		view.Ahead = s.Ahead
		view.Behind = s.Behind
		view.Entries = s.Entries
		view.Commits = log.Result()
		return nil
	}, task.WithName("show repository"), task.WithAffinity(task.UI))

	status.Then(log, false)
	log.Then(apply, true)
	// The view shows the failure, so it does not count as unhandled.
	log.Catch(func(error) bool { return true })
	return apply
}

// RepoPaneModel renders a RepoView.
type RepoPaneModel struct {
	view    *RepoView
	width   int
	height  int
	focused bool
}

// NewRepoPaneModel creates a pane for view. A nil view shows a placeholder.
func NewRepoPaneModel(view *RepoView) RepoPaneModel {
	return RepoPaneModel{view: view}
}

// Update handles messages for the repo pane.
func (m RepoPaneModel) Update(msg tea.Msg) (RepoPaneModel, tea.Cmd) {
	return m, nil
}

// View renders the repo pane.
func (m RepoPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Repository")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	switch v := m.view; {
	case v == nil:
		b.WriteString(StyleStatusPending.Render("No repository selected"))
	case v.Updated.IsZero():
		b.WriteString(StyleStatusPending.Render("Loading " + v.Path + "..."))
	case v.Err != "":
		b.WriteString(StyleStatusFailed.Render("Error: " + v.Err))
	default:
		b.WriteString(m.renderRepo(v))
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

func (m RepoPaneModel) renderRepo(v *RepoView) string {
	var b strings.Builder

	branch := v.Branch
	if v.Upstream != "" {
		branch += " → " + v.Upstream
	}
	fmt.Fprintf(&b, "%s  %s\n", StyleBranch.Render(branch), trackingSummary(v.Ahead, v.Behind))

	if len(v.Entries) == 0 {
		b.WriteString(StyleStatusComplete.Render("Working tree clean"))
		b.WriteString("\n")
	}
	for _, e := range v.Entries {
		b.WriteString(renderEntry(e))
		b.WriteString("\n")
	}

	if len(v.Commits) > 0 {
		b.WriteString("\n")
		for _, c := range v.Commits {
			hash := c.Hash
			if len(hash) > 7 {
				hash = hash[:7]
			}
			fmt.Fprintf(&b, "%s %s\n", StyleHash.Render(hash), c.Subject)
		}
	}

	return b.String()
}

func trackingSummary(ahead, behind int) string {
	var parts []string
	if ahead > 0 {
		parts = append(parts, fmt.Sprintf("↑%d", ahead))
	}
	if behind > 0 {
		parts = append(parts, fmt.Sprintf("↓%d", behind))
	}
	return strings.Join(parts, " ")
}

func renderEntry(e git.StatusEntry) string {
	code := e.String()
	switch {
	case e.Conflicted():
		return StyleStatusFailed.Render(code)
	case e.Untracked():
		return StyleStatusPending.Render(code)
	case e.Staged():
		return StyleStatusComplete.Render(code)
	default:
		return StyleStatusRunning.Render(code)
	}
}

// SetSize updates the pane dimensions.
func (m *RepoPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *RepoPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
