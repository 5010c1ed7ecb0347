package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/gitbridge/internal/config"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	repo        string
	globalPath  string
	projectPath string
	verbose     bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "gitbridge",
		Short:        "Run git and download tasks with a shared scheduler",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.loadConfig()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.repo, "repo", "r", ".", "repository path or configured repository name")
	cmd.PersistentFlags().StringVar(&opts.globalPath, "config", "", "global config file (default ~/.gitbridge/config.json)")
	cmd.PersistentFlags().StringVar(&opts.projectPath, "project-config", ".gitbridge/config.json", "project config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log retries and task failures to stderr")

	cmd.AddCommand(
		newVersionCmd(opts),
		newStatusCmd(opts),
		newLogCmd(opts),
		newWorktreeCmd(opts),
		newLsRemoteCmd(opts),
		newDownloadCmd(opts),
		newHistoryCmd(opts),
		newTUICmd(opts),
	)
	return cmd
}

func (o *rootOptions) loadConfig() error {
	if o.globalPath == "" {
		path, err := config.GlobalPath()
		if err != nil {
			return err
		}
		o.globalPath = path
	}
	cfg, err := config.Load(o.globalPath, o.projectPath)
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// logger returns the logger for command-line runs.
func (o *rootOptions) logger() *log.Logger {
	if !o.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "gitbridge: ", log.LstdFlags)
}
