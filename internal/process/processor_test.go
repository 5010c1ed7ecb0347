package process

import (
	"reflect"
	"testing"
)

func TestLineCollector_FinalizedByTerminator(t *testing.T) {
	c := NewLineCollector()

	var streamed []string
	c.OnEntry(func(s string) { streamed = append(streamed, s) })

	a, b := "first", "second"
	c.LineReceived(&a)
	c.LineReceived(&b)

	if c.Finished() || c.Result() != nil {
		t.Fatal("Result must not be final before the terminator")
	}
	if !reflect.DeepEqual(streamed, []string{"first", "second"}) {
		t.Errorf("Expected entries to stream before the terminator, got %q", streamed)
	}

	c.LineReceived(nil)
	if !reflect.DeepEqual(c.Result(), []string{"first", "second"}) {
		t.Errorf("Unexpected result %q", c.Result())
	}

	c.Reset()
	if c.Finished() || c.Result() != nil {
		t.Error("Reset should discard the result")
	}
}

func TestStringProcessor(t *testing.T) {
	p := NewStringProcessor()
	Feed(p, "line one", "line two", "")

	if got := p.Result(); got != "line one\nline two" {
		t.Errorf("Unexpected result %q", got)
	}
}

func TestFirstLineProcessor_StopsAfterFirstLine(t *testing.T) {
	p := NewFirstLineProcessor()

	if Feed(p, "", "  refs/heads/main ", "ignored") {
		t.Error("Feed should report the early stop")
	}
	if !p.Found() || p.Result() != "refs/heads/main" {
		t.Errorf("Unexpected result %q", p.Result())
	}
}

func TestFeed_EmptyInput(t *testing.T) {
	c := NewLineCollector()
	if !Feed(c) {
		t.Error("Feed of no lines should complete")
	}
	if !c.Finished() || len(c.Result()) != 0 {
		t.Errorf("Expected finished empty result, got %q", c.Result())
	}
}

// fixedProcessor resets only when its wrapped state allows it.
type fixedProcessor struct{ resettable bool }

func (p *fixedProcessor) LineReceived(*string) bool { return true }
func (p *fixedProcessor) Reset()                    {}
func (p *fixedProcessor) CanReset() bool            { return p.resettable }

func TestCanReset(t *testing.T) {
	tests := []struct {
		name string
		proc OutputProcessor
		want bool
	}{
		{"collector", NewLineCollector(), true},
		{"no reset", &countingProcessor{}, false},
		{"wrapper over resettable", &fixedProcessor{resettable: true}, true},
		{"wrapper over fixed", &fixedProcessor{}, false},
	}
	for _, tt := range tests {
		if got := CanReset(tt.proc); got != tt.want {
			t.Errorf("%s: CanReset = %v, want %v", tt.name, got, tt.want)
		}
	}
}
