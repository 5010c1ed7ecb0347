package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/gitbridge/internal/scheduler"
)

const maxLineSize = 1024 * 1024

// Spec describes one process invocation.
type Spec struct {
	Executable string
	Args       []string
	Dir        string
	Env        []string  // KEY=VALUE overrides appended to the current environment
	Stdin      io.Reader // optional
	Locks      []string  // paths held exclusively while the process runs
	Retry      RetryPolicy
	Timeout    time.Duration // per attempt; 0 disables
}

func (s Spec) String() string {
	return strings.TrimSpace(s.Executable + " " + strings.Join(s.Args, " "))
}

// RetryPolicy re-runs a failed process up to Count more times, Interval apart.
type RetryPolicy struct {
	Count    int
	Interval time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.Interval > 0 {
		b = backoff.NewConstantBackOff(p.Interval)
	}
	count := p.Count
	if count < 0 {
		count = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(count)), ctx)
}

// Callbacks observe a run. All fields are optional.
type Callbacks struct {
	OnStart func(pid int)
	OnLine  func(line string)
	OnError func(err error)
	OnEnd   func()
}

// Result describes a finished run.
type Result struct {
	ExitCode int
	Stderr   string
	Lines    int  // stdout lines delivered to the processor
	Stopped  bool // the processor asked to stop early
	Attempts int
}

// Wrapper runs processes and streams their output into processors.
type Wrapper struct {
	procs  *ProcessManager
	locks  *scheduler.PathLocks
	logger *log.Logger
}

// NewWrapper creates a wrapper. procs and locks may be nil.
func NewWrapper(procs *ProcessManager, locks *scheduler.PathLocks, logger *log.Logger) *Wrapper {
	if locks == nil {
		locks = scheduler.NewPathLocks()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Wrapper{procs: procs, locks: locks, logger: logger}
}

// Run executes spec, feeding each stdout line to proc, and retries according to
// spec.Retry. A retry is only attempted when no line reached proc or proc can Reset.
func (w *Wrapper) Run(ctx context.Context, spec Spec, proc OutputProcessor, cb Callbacks) (Result, error) {
	if len(spec.Locks) > 0 {
		unlock := w.locks.LockAll(spec.Locks)
		defer unlock()
	}

	var res Result
	attempts := 0
	operation := func() error {
		attempts++
		if attempts > 1 {
			if r, ok := proc.(Resetter); ok && CanReset(proc) {
				r.Reset()
			}
		}

		runCtx := ctx
		if spec.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
			defer cancel()
		}

		var err error
		res, err = w.runOnce(runCtx, spec, proc, cb)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		var startErr *StartError
		if errors.As(err, &startErr) {
			return backoff.Permanent(err)
		}
		if res.Lines > 0 && !CanReset(proc) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		w.logger.Printf("WARNING: %s failed (attempt %d): %v, retrying in %s", spec, attempts, err, next)
	}
	err := backoff.RetryNotify(operation, spec.Retry.backOff(ctx), notify)
	res.Attempts = attempts

	if err != nil && cb.OnError != nil {
		cb.OnError(err)
	}
	return res, err
}

// runOnce starts the process and reads stdout on the calling goroutine while stderr
// is drained concurrently.
func (w *Wrapper) runOnce(ctx context.Context, spec Spec, proc OutputProcessor, cb Callbacks) (Result, error) {
	var res Result
	if err := ctx.Err(); err != nil {
		return res, err
	}

	cmd := newCommand(ctx, spec)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return res, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return res, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return res, newStartError(spec.Executable, err)
	}
	w.procs.Track(cmd)
	defer w.procs.Untrack(cmd)

	if cb.OnStart != nil {
		cb.OnStart(cmd.Process.Pid)
	}

	var g errgroup.Group
	var stderrBuf bytes.Buffer
	g.Go(func() error {
		_, err := io.Copy(&stderrBuf, stderr)
		return err
	})

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		res.Lines++
		if cb.OnLine != nil {
			cb.OnLine(line)
		}
		if !proc.LineReceived(&line) {
			res.Stopped = true
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	scanErr := scanner.Err()

	cancelled := ctx.Err() != nil
	if res.Stopped || cancelled || scanErr != nil {
		if err := killProcessGroup(cmd); err != nil {
			w.logger.Printf("WARNING: %s: %v", spec, err)
		}
		// Drain so Wait does not block on a full pipe.
		io.Copy(io.Discard, stdout)
	} else {
		proc.LineReceived(nil)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		w.logger.Printf("WARNING: %s: reading stderr: %v", spec, err)
	}
	waitErr := cmd.Wait()
	res.Stderr = stderrBuf.String()

	if cb.OnEnd != nil {
		cb.OnEnd()
	}

	switch {
	case res.Stopped:
		return res, nil
	case cancelled:
		return res, ctx.Err()
	case scanErr != nil:
		return res, fmt.Errorf("reading output of %s: %w", spec.Executable, scanErr)
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{Executable: spec.Executable, Code: res.ExitCode, Stderr: res.Stderr}
		}
		return res, fmt.Errorf("waiting for %s: %w", spec.Executable, waitErr)
	}
	return res, nil
}
