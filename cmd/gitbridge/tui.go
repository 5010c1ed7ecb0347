package main

import (
	"fmt"
	"io"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/gitbridge/internal/tui"
)

func newTUICmd(opts *rootOptions) *cobra.Command {
	var (
		logFile string
		commits int
	)
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := resolveRepo(opts.cfg, opts.repo)
			if err != nil {
				return err
			}

			// The screen belongs to Bubble Tea; logs go to a file or nowhere.
			logger := log.New(io.Discard, "", 0)
			if logFile != "" {
				f, err := tea.LogToFile(logFile, "gitbridge")
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				defer f.Close()
				logger = log.Default()
			}

			a := newApp(cmd.Context(), opts.cfg, logger, true)
			defer a.close()

			ui := tui.NewUIScheduler()
			defer ui.Close()
			a.manager.SetUIScheduler(ui)

			view := &tui.RepoView{Path: repo}
			model := tui.New(tui.Options{
				Bus:         a.bus,
				UI:          ui,
				Config:      opts.cfg,
				GlobalPath:  opts.globalPath,
				ProjectPath: opts.projectPath,
				Repo:        view,
				Refresh: func() {
					tui.RefreshRepo(a.manager, a.git, view, commits).Start()
				},
			})

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			ui.Attach(p)

			_, err = p.Run()
			if err != nil && cmd.Context().Err() != nil {
				// Interrupted by a signal; close() kills what is still running.
				logger.Println("Shutdown signal received, cleaning up...")
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file")
	cmd.Flags().IntVar(&commits, "commits", 15, "number of recent commits to show")
	return cmd
}
