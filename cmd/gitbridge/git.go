package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aristath/gitbridge/internal/git"
)

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the git version in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := newApp(cmd.Context(), opts.cfg, opts.logger(), false)
			defer a.close()

			v := a.git.Version()
			if err := await(v); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "git %s (%s)\n", v.Result(), opts.cfg.Git.Executable)
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show branch and working tree status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := resolveRepo(opts.cfg, opts.repo)
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), opts.cfg, opts.logger(), true)
			defer a.close()

			st := a.git.Status(repo)
			if err := await(st); err != nil {
				return err
			}
			printStatus(cmd, st.Status())
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, s git.Status) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "On branch %s", s.Branch)
	if s.Upstream != "" {
		fmt.Fprintf(out, " tracking %s", s.Upstream)
	}
	if s.Ahead > 0 || s.Behind > 0 {
		fmt.Fprintf(out, " (ahead %d, behind %d)", s.Ahead, s.Behind)
	}
	fmt.Fprintln(out)
	if s.Clean() {
		fmt.Fprintln(out, "nothing to commit, working tree clean")
		return
	}
	for _, e := range s.Entries {
		fmt.Fprintln(out, e.String())
	}
}

func newLogCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log [revision]",
		Short: "List recent commits",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := resolveRepo(opts.cfg, opts.repo)
			if err != nil {
				return err
			}
			rev := ""
			if len(args) == 1 {
				rev = args[0]
			}
			a := newApp(cmd.Context(), opts.cfg, opts.logger(), true)
			defer a.close()

			// Commits print as the processor emits them.
			out := cmd.OutOrStdout()
			commits := a.git.Log(repo, rev, limit).OnEntry(func(c git.Commit) {
				fmt.Fprintf(out, "%s %s %s %s\n", short(c.Hash), c.Date.Format("2006-01-02"), c.Author, c.Subject)
			})
			return await(commits)
		},
	}
	cmd.Flags().IntVarP(&limit, "max-count", "n", 20, "number of commits to show (0 for all)")
	return cmd
}

func short(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func newWorktreeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worktree",
		Short: "Manage linked worktrees",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List worktrees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := resolveRepo(opts.cfg, opts.repo)
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), opts.cfg, opts.logger(), true)
			defer a.close()

			wts := a.git.WorktreeList(repo)
			if err := await(wts); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, wt := range wts.Result() {
				ref := wt.Branch
				switch {
				case wt.Bare:
					ref = "(bare)"
				case wt.Detached:
					ref = "(detached)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", wt.Path, short(wt.Head), ref)
			}
			return w.Flush()
		},
	}

	var base, branch string
	add := &cobra.Command{
		Use:   "add <path>",
		Short: "Create a worktree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := resolveRepo(opts.cfg, opts.repo)
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), opts.cfg, opts.logger(), true)
			defer a.close()
			return await(a.git.WorktreeAdd(repo, path, base, branch))
		},
	}
	add.Flags().StringVar(&base, "base", "", "commit to check out (default HEAD)")
	add.Flags().StringVarP(&branch, "branch", "b", "", "create this branch for the worktree")

	var force bool
	remove := &cobra.Command{
		Use:   "remove <path>",
		Short: "Remove a worktree and prune stale entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := resolveRepo(opts.cfg, opts.repo)
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), opts.cfg, opts.logger(), true)
			defer a.close()

			rm := a.git.WorktreeRemove(repo, path, force)
			prune := a.git.WorktreePrune(repo)
			rm.Then(prune, false)
			return await(prune)
		},
	}
	remove.Flags().BoolVarP(&force, "force", "f", false, "remove even with local changes")

	cmd.AddCommand(list, add, remove)
	return cmd
}

func newLsRemoteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls-remote [remote]",
		Short: "List the refs of a remote without prompting for credentials",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := resolveRepo(opts.cfg, opts.repo)
			if err != nil {
				return err
			}
			remote := ""
			if len(args) == 1 {
				remote = args[0]
			}
			a := newApp(cmd.Context(), opts.cfg, opts.logger(), true)
			defer a.close()

			refs := a.git.LsRemote(repo, remote)
			if err := await(refs); err != nil {
				if errors.Is(err, git.ErrCredentialsRequired) {
					return fmt.Errorf("%w; configure a credential helper or use an SSH remote", err)
				}
				return err
			}
			for _, ref := range refs.Result() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ref.Hash, ref.Name)
			}
			return nil
		},
	}
}
