package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/gitbridge/internal/history"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded task runs",
	}

	var (
		state string
		limit int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), history.Filter{State: state, Limit: limit})
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATE\tSTARTED\tDURATION")
			for _, r := range runs {
				started := "-"
				if !r.StartedAt.IsZero() {
					started = r.StartedAt.Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, describeState(r), started, r.Duration.Round(time.Millisecond))
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&state, "state", "", "only runs in this state (running, completed, faulted, cancelled)")
	list.Flags().IntVarP(&limit, "limit", "n", 50, "maximum runs to show (0 for all)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run and its captured output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			lines, err := store.Output(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", run.ID, run.Name)
			fmt.Fprintf(out, "state:    %s\n", describeState(run))
			if run.Affinity != "" {
				fmt.Fprintf(out, "affinity: %s\n", run.Affinity)
			}
			if run.Error != "" {
				fmt.Fprintf(out, "error:    %s\n", run.Error)
			}
			fmt.Fprintf(out, "duration: %s\n", run.Duration.Round(time.Millisecond))
			for _, l := range lines {
				fmt.Fprintf(out, "  %s\n", l.Line)
			}
			return nil
		},
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			store, err := opts.openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d run(s)\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the runs to delete")

	cmd.AddCommand(list, show, prune)
	return cmd
}

func (o *rootOptions) openHistory(cmd *cobra.Command) (*history.SQLiteStore, error) {
	return openHistory(cmd.Context(), o.cfg)
}

func describeState(r history.Run) string {
	if r.State == history.StateFaulted && r.Handled {
		return r.State + " (handled)"
	}
	return r.State
}
