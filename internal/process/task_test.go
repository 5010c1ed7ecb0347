package process

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aristath/gitbridge/internal/events"
	"github.com/aristath/gitbridge/internal/task"
)

func newTestManager(t *testing.T) *task.Manager {
	t.Helper()
	m := task.NewManager(context.Background(), task.Config{
		MaxConcurrency: 2,
		Logger:         log.New(io.Discard, "", 0),
	})
	t.Cleanup(m.Stop)
	return m
}

func TestTask_CollectsLines(t *testing.T) {
	m := newTestManager(t)
	w, _ := newTestWrapper()
	bus := events.NewEventBus()
	defer bus.Close()
	out := bus.Subscribe(events.TopicTask, 32)

	pt := NewList[string](m, w, shell(`printf "hello\nworld\n"`), NewLineCollector()).WithEvents(bus)

	var entries []string
	pt.Processor().(*LineCollector).OnEntry(func(s string) { entries = append(entries, s) })
	pt.Start()

	if err := pt.Wait(); err != nil {
		t.Fatalf("Expected success, got: %v", err)
	}
	if !reflect.DeepEqual(pt.Result(), []string{"hello", "world"}) {
		t.Errorf("Unexpected result %q", pt.Result())
	}
	if !reflect.DeepEqual(entries, []string{"hello", "world"}) {
		t.Errorf("Unexpected streamed entries %q", entries)
	}
	if pt.Errors() != "" {
		t.Errorf("Expected empty Errors, got %q", pt.Errors())
	}

	var outputs []string
	deadline := time.After(time.Second)
	for len(outputs) < 2 {
		select {
		case ev := <-out:
			if o, ok := ev.(events.TaskOutputEvent); ok {
				outputs = append(outputs, o.Line)
			}
		case <-deadline:
			t.Fatalf("Missing output events, got %q", outputs)
		}
	}
}

func TestTask_FailureExposesStderr(t *testing.T) {
	m := newTestManager(t)
	w, _ := newTestWrapper()

	pt := New[string](m, w, shell(`echo "error: pathspec 'x' did not match" >&2; exit 1`), NewStringProcessor())
	pt.Catch(func(error) bool { return true })
	pt.Start()

	err := pt.Wait()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Expected *ExitError, got %v", err)
	}
	if pt.State() != task.Faulted {
		t.Errorf("Expected Faulted, got %s", pt.State())
	}
	if !strings.Contains(pt.Errors(), "did not match") {
		t.Errorf("Expected stderr in Errors, got %q", pt.Errors())
	}
	if pt.Exit().ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", pt.Exit().ExitCode)
	}
}

func TestTask_CheckInspectsStderr(t *testing.T) {
	m := newTestManager(t)
	w, _ := newTestWrapper()

	errPartial := errors.New("partial failure")
	pt := New[string](m, w, shell(`echo done; echo "warning: could not update ref" >&2`), NewStringProcessor()).
		WithCheck(func(r Result) error {
			if strings.Contains(r.Stderr, "could not") {
				return errPartial
			}
			return nil
		})
	pt.Catch(func(error) bool { return true })
	pt.Start()

	if err := pt.Wait(); !errors.Is(err, errPartial) {
		t.Fatalf("Expected partial failure, got %v", err)
	}
}

func TestTask_ChainsIntoTypedContinuation(t *testing.T) {
	m := newTestManager(t)
	w, _ := newTestWrapper()

	pt := New[string](m, w, shell(`echo "  feature/x  "`), NewStringProcessor())
	upper := task.NewFuncFrom(m, func(_ context.Context, _ bool, s string) (string, error) {
		return strings.ToUpper(strings.TrimSpace(s)), nil
	})
	pt.Then(upper, false)
	upper.Start()

	if err := upper.Wait(); err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if upper.Result() != "FEATURE/X" {
		t.Errorf("Unexpected result %q", upper.Result())
	}
}

func TestTask_CancelKillsProcess(t *testing.T) {
	m := newTestManager(t)
	pm := NewProcessManager()
	w := NewWrapper(pm, nil, log.New(io.Discard, "", 0))

	pt := New[[]string](m, w, shell(`echo started; sleep 30`), NewLineCollector())
	started := make(chan struct{})
	pt.OnStart(func(task.Task) { close(started) })

	finally := make(chan struct{})
	pt.Finally(func(bool, error) { close(finally) }, task.Concurrent)
	pt.Start()

	<-started
	for pm.Count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	m.Cancel()

	select {
	case <-finally:
	case <-time.After(5 * time.Second):
		t.Fatal("Cancellation did not finish the task")
	}
	<-pt.Done()
	if pt.State() != task.Cancelled {
		t.Errorf("Expected Cancelled, got %s", pt.State())
	}
	if pm.Count() != 0 {
		t.Errorf("Expected no live processes, got %d", pm.Count())
	}
}
