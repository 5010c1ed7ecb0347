package git

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aristath/gitbridge/internal/process"
)

// ErrCredentialsRequired is returned when git stopped to ask for credentials.
var ErrCredentialsRequired = errors.New("git: credentials required")

var promptMarkers = []string{
	"Username for ",
	"Password for ",
	"Enter passphrase for ",
}

// stderr markers printed when prompting is disabled
var promptFailures = []string{
	"terminal prompts disabled",
	"could not read Username",
	"could not read Password",
}

func isPrompt(line string) bool {
	for _, m := range promptMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

// CredentialPromptGuard wraps a processor and stops the process as soon as a
// credential prompt shows up in its output, instead of waiting on input that will
// never come.
type CredentialPromptGuard[R any] struct {
	inner process.ResultProcessor[R]

	mu     sync.Mutex
	prompt string
}

// GuardCredentials wraps p.
func GuardCredentials[R any](p process.ResultProcessor[R]) *CredentialPromptGuard[R] {
	return &CredentialPromptGuard[R]{inner: p}
}

func (g *CredentialPromptGuard[R]) LineReceived(line *string) bool {
	if line != nil && isPrompt(*line) {
		g.mu.Lock()
		g.prompt = strings.TrimSpace(*line)
		g.mu.Unlock()
		return false
	}
	return g.inner.LineReceived(line)
}

func (g *CredentialPromptGuard[R]) Result() R { return g.inner.Result() }

// Prompt returns the prompt that stopped the process, if any.
func (g *CredentialPromptGuard[R]) Prompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompt
}

// Check fails a run that was stopped by a prompt.
func (g *CredentialPromptGuard[R]) Check(process.Result) error {
	if p := g.Prompt(); p != "" {
		return fmt.Errorf("%w: %s", ErrCredentialsRequired, p)
	}
	return nil
}

// CanReset reports whether the wrapped processor can be reset, so a run is only
// retried after output when the inner state can be discarded.
func (g *CredentialPromptGuard[R]) CanReset() bool {
	_, ok := g.inner.(process.Resetter)
	return ok
}

func (g *CredentialPromptGuard[R]) Reset() {
	if r, ok := g.inner.(process.Resetter); ok {
		r.Reset()
	}
	g.mu.Lock()
	g.prompt = ""
	g.mu.Unlock()
}

// mapCredentialError tags failures caused by a disabled credential prompt.
func mapCredentialError(err error) error {
	var exitErr *process.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	for _, m := range promptFailures {
		if strings.Contains(exitErr.Stderr, m) {
			return fmt.Errorf("%w: %w", ErrCredentialsRequired, err)
		}
	}
	return err
}
