package process

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// StartError reports a process that could not be started, for example because the
// executable does not exist. No output was produced.
type StartError struct {
	Executable string
	Errno      syscall.Errno // zero when the failure carried no errno
	Err        error
}

func newStartError(executable string, err error) *StartError {
	se := &StartError{Executable: executable, Err: err}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		se.Errno = errno
	}
	return se
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Executable, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ExitError reports a non-zero exit. The message is the captured stderr, or
// "process failed" when the process wrote nothing to stderr.
type ExitError struct {
	Executable string
	Code       int
	Stderr     string
}

func (e *ExitError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	return "process failed"
}
