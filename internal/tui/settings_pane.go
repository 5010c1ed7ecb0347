package tui

import (
	"fmt"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/gitbridge/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings
	saveTarget      string
	gitExecutable   string
	gitRetryCount   string
	gitTimeout      string
	downloadRetries string
	downloadTimeout string
	downloadAgent   string
	historyEnabled  bool
	maxConcurrency  string
}

// NewSettingsPaneModel creates a settings pane editing cfg.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.loadFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFields() {
	m.saveTarget = "global"
	m.gitExecutable = m.config.Git.Executable
	m.gitRetryCount = strconv.Itoa(m.config.Git.RetryCount)
	m.gitTimeout = m.config.Git.Timeout.Std().String()
	m.downloadRetries = strconv.Itoa(m.config.Download.RetryCount)
	m.downloadTimeout = m.config.Download.Timeout.Std().String()
	m.downloadAgent = m.config.Download.UserAgent
	m.historyEnabled = m.config.History.Enabled
	m.maxConcurrency = strconv.Itoa(m.config.Engine.MaxConcurrency)
}

func validateCount(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative whole number")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fmt.Errorf("must be a duration such as 30s or 5m")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.gitbridge/config.json)", "global"),
					huh.NewOption("Project (.gitbridge/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxConcurrency").
				Title("Max Concurrent Tasks").
				Description("0 uses one per CPU").
				Value(&m.maxConcurrency).
				Validate(validateCount),

			huh.NewConfirm().
				Key("historyEnabled").
				Title("Record Run History").
				Value(&m.historyEnabled),
		).Title("Engine"),

		huh.NewGroup(
			huh.NewInput().
				Key("gitExecutable").
				Title("Git Executable").
				Value(&m.gitExecutable).
				Placeholder("git"),

			huh.NewInput().
				Key("gitRetryCount").
				Title("Retries For Read Commands").
				Value(&m.gitRetryCount).
				Validate(validateCount),

			huh.NewInput().
				Key("gitTimeout").
				Title("Command Timeout").
				Description("0s disables").
				Value(&m.gitTimeout).
				Validate(validateDuration),
		).Title("Git"),

		huh.NewGroup(
			huh.NewInput().
				Key("downloadRetries").
				Title("Download Retries").
				Value(&m.downloadRetries).
				Validate(validateCount),

			huh.NewInput().
				Key("downloadTimeout").
				Title("Request Timeout").
				Value(&m.downloadTimeout).
				Validate(validateDuration),

			huh.NewInput().
				Key("downloadAgent").
				Title("User Agent").
				Value(&m.downloadAgent).
				Placeholder("gitbridge"),
		).Title("Downloads"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.err = m.save()
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// save copies the form into a copy of the config and writes it. The live config is
// only changed once the write succeeded.
func (m *SettingsPaneModel) save() error {
	next := *m.config
	if err := m.applyForm(&next); err != nil {
		return err
	}

	targetPath := m.globalPath
	if m.saveTarget == "project" {
		targetPath = m.projectPath
	}
	if err := config.Save(&next, targetPath); err != nil {
		return err
	}
	*m.config = next
	return nil
}

// applyForm copies form field values into cfg.
func (m *SettingsPaneModel) applyForm(cfg *config.Config) error {
	var err error
	if cfg.Engine.MaxConcurrency, err = strconv.Atoi(m.maxConcurrency); err != nil {
		return fmt.Errorf("max concurrency: %w", err)
	}
	cfg.History.Enabled = m.historyEnabled

	cfg.Git.Executable = m.gitExecutable
	if cfg.Git.RetryCount, err = strconv.Atoi(m.gitRetryCount); err != nil {
		return fmt.Errorf("git retry count: %w", err)
	}
	timeout, err := time.ParseDuration(m.gitTimeout)
	if err != nil {
		return fmt.Errorf("git timeout: %w", err)
	}
	cfg.Git.Timeout = config.Duration(timeout)

	if cfg.Download.RetryCount, err = strconv.Atoi(m.downloadRetries); err != nil {
		return fmt.Errorf("download retries: %w", err)
	}
	if timeout, err = time.ParseDuration(m.downloadTimeout); err != nil {
		return fmt.Errorf("download timeout: %w", err)
	}
	cfg.Download.Timeout = config.Duration(timeout)
	cfg.Download.UserAgent = m.downloadAgent
	return nil
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it reloads the fields from
// the current config.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil
	if v {
		m.loadFields()
		m.buildForm()
		if m.width > 0 {
			m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
		}
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last form submission was written.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
