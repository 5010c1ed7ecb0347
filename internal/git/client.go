// Package git builds task nodes that run the git executable and parse its output.
// Read-only commands run on the concurrent lane and may be retried; commands that
// write to a repository run on the exclusive lane and hold a lock on its path.
package git

import (
	"errors"
	"strconv"
	"strings"

	"github.com/aristath/gitbridge/internal/config"
	"github.com/aristath/gitbridge/internal/events"
	"github.com/aristath/gitbridge/internal/process"
	"github.com/aristath/gitbridge/internal/task"
)

// ErrUnknownVersion is returned when `git --version` printed nothing parseable.
var ErrUnknownVersion = errors.New("git: unrecognised version output")

// Client creates git tasks on a manager.
type Client struct {
	m   *task.Manager
	w   *process.Wrapper
	cfg config.GitConfig
	bus *events.EventBus
}

// NewClient creates a client. bus may be nil.
func NewClient(m *task.Manager, w *process.Wrapper, cfg config.GitConfig, bus *events.EventBus) *Client {
	if m == nil || w == nil {
		panic("git: nil manager or wrapper")
	}
	if cfg.Executable == "" {
		cfg.Executable = "git"
	}
	return &Client{m: m, w: w, cfg: cfg, bus: bus}
}

func (c *Client) spec(dir string, args ...string) process.Spec {
	env := append([]string{"LC_ALL=C"}, c.cfg.Env...)
	if c.cfg.DisablePrompts {
		env = append(env, "GIT_TERMINAL_PROMPT=0")
	}
	return process.Spec{
		Executable: c.cfg.Executable,
		Args:       args,
		Dir:        dir,
		Env:        env,
		Timeout:    c.cfg.Timeout.Std(),
	}
}

// read builds a spec for a command that leaves the repository untouched.
func (c *Client) read(dir string, args ...string) process.Spec {
	s := c.spec(dir, args...)
	s.Retry = process.RetryPolicy{Count: c.cfg.RetryCount, Interval: c.cfg.RetryInterval.Std()}
	return s
}

// write builds a spec for a command that modifies the repository at dir. locks
// names further paths the command touches.
func (c *Client) write(dir string, locks []string, args ...string) process.Spec {
	s := c.spec(dir, args...)
	s.Locks = append([]string{dir}, locks...)
	return s
}

func newTask[R any](c *Client, spec process.Spec, proc process.ResultProcessor[R], opts []task.Option) *process.Task[R] {
	t := process.New[R](c.m, c.w, spec, proc, opts...).WithErrorMap(mapCredentialError)
	if c.bus != nil {
		t.WithEvents(c.bus)
	}
	return t
}

func newList[E any](c *Client, spec process.Spec, proc process.EntryProcessor[E], opts []task.Option) *process.ListTask[E] {
	t := process.NewList[E](c.m, c.w, spec, proc, opts...)
	t.WithErrorMap(mapCredentialError)
	if c.bus != nil {
		t.WithEvents(c.bus)
	}
	return t
}

func exclusive(opts []task.Option) []task.Option {
	return append([]task.Option{task.WithAffinity(task.Exclusive)}, opts...)
}

// Version runs `git --version`.
func (c *Client) Version(opts ...task.Option) *process.Task[Version] {
	proc := NewVersionProcessor()
	return newTask[Version](c, c.read("", "--version"), proc, opts).
		WithCheck(func(process.Result) error {
			if !proc.Result().Valid() {
				return ErrUnknownVersion
			}
			return nil
		})
}

// StatusTask is a status run. Result holds the entries, Status adds the branch.
type StatusTask struct {
	*process.ListTask[StatusEntry]
	proc *StatusProcessor
}

// Status returns the branch header and entries once the task succeeded.
func (t *StatusTask) Status() Status { return t.proc.Status() }

// Status runs `git status --porcelain -b` in repo.
func (c *Client) Status(repo string, opts ...task.Option) *StatusTask {
	proc := NewStatusProcessor()
	spec := c.read(repo, "status", "--porcelain=v1", "-b", "--untracked-files=all")
	return &StatusTask{ListTask: newList[StatusEntry](c, spec, proc, opts), proc: proc}
}

// Log lists up to limit commits reachable from rev (HEAD when empty). A limit <= 0
// lists all of them.
func (c *Client) Log(repo, rev string, limit int, opts ...task.Option) *process.ListTask[Commit] {
	args := []string{"log", "--format=" + logFormat}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}
	if rev != "" {
		args = append(args, rev)
	}
	args = append(args, "--")
	return newList[Commit](c, c.read(repo, args...), NewLogProcessor(), opts)
}

// CurrentBranch prints the checked out branch, or HEAD when detached.
func (c *Client) CurrentBranch(repo string, opts ...task.Option) *process.Task[string] {
	return newTask[string](c, c.read(repo, "rev-parse", "--abbrev-ref", "HEAD"), process.NewFirstLineProcessor(), opts)
}

// ConfigGet reads a config value. An unset key faults with an exit code 1
// ExitError; see IsUnset.
func (c *Client) ConfigGet(repo, key string, opts ...task.Option) *process.Task[string] {
	return newTask[string](c, c.read(repo, "config", "--get", key), process.NewStringProcessor(), opts)
}

// IsUnset reports whether err is `git config --get` failing on a missing key.
func IsUnset(err error) bool {
	var exitErr *process.ExitError
	return errors.As(err, &exitErr) && exitErr.Code == 1
}

// Add stages paths.
func (c *Client) Add(repo string, paths []string, opts ...task.Option) *process.Task[string] {
	if len(paths) == 0 {
		panic("git: Add needs at least one path")
	}
	args := append([]string{"add", "--"}, paths...)
	return newTask[string](c, c.write(repo, nil, args...), process.NewStringProcessor(), exclusive(opts))
}

// Commit records the index with message, which is passed on stdin.
func (c *Client) Commit(repo, message string, opts ...task.Option) *process.Task[string] {
	if strings.TrimSpace(message) == "" {
		panic("git: empty commit message")
	}
	spec := c.write(repo, nil, "commit", "--quiet", "-F", "-")
	spec.Stdin = strings.NewReader(message)
	return newTask[string](c, spec, process.NewStringProcessor(), exclusive(opts))
}

// WorktreeList lists the worktrees of repo.
func (c *Client) WorktreeList(repo string, opts ...task.Option) *process.ListTask[Worktree] {
	return newList[Worktree](c, c.read(repo, "worktree", "list", "--porcelain"), NewWorktreeListProcessor(), opts)
}

// WorktreeAdd creates a worktree at path. With newBranch set, a branch of that
// name is created from base; otherwise base is checked out.
func (c *Client) WorktreeAdd(repo, path, base, newBranch string, opts ...task.Option) *process.Task[string] {
	args := []string{"worktree", "add"}
	if newBranch != "" {
		args = append(args, "-b", newBranch)
	}
	args = append(args, path)
	if base != "" {
		args = append(args, base)
	}
	return newTask[string](c, c.write(repo, []string{path}, args...), process.NewStringProcessor(), exclusive(opts))
}

// WorktreeRemove removes the worktree at path.
func (c *Client) WorktreeRemove(repo, path string, force bool, opts ...task.Option) *process.Task[string] {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	return newTask[string](c, c.write(repo, []string{path}, args...), process.NewStringProcessor(), exclusive(opts))
}

// WorktreePrune removes administrative data of worktrees that no longer exist.
func (c *Client) WorktreePrune(repo string, opts ...task.Option) *process.Task[string] {
	return newTask[string](c, c.write(repo, nil, "worktree", "prune"), process.NewStringProcessor(), exclusive(opts))
}

// LsRemote lists the refs of remote. The process is stopped as soon as git asks
// for credentials and the task faults with ErrCredentialsRequired.
func (c *Client) LsRemote(repo, remote string, opts ...task.Option) *process.Task[[]RemoteRef] {
	if remote == "" {
		remote = "origin"
	}
	guard := GuardCredentials[[]RemoteRef](NewRemoteRefProcessor())
	spec := c.read(repo, "ls-remote", "--refs", remote)
	return newTask[[]RemoteRef](c, spec, guard, opts).WithCheck(guard.Check)
}
