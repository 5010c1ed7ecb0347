package process

import (
	"strings"
	"sync"
)

// OutputProcessor consumes process output one line at a time. A nil line marks the
// end of the stream. Returning false asks the wrapper to stop reading and terminate
// the process.
type OutputProcessor interface {
	LineReceived(line *string) bool
}

// ResultProcessor exposes the value accumulated once the terminator was seen.
type ResultProcessor[R any] interface {
	OutputProcessor
	Result() R
}

// EntryProcessor streams typed entries as they are parsed.
type EntryProcessor[E any] interface {
	ResultProcessor[[]E]
	OnEntry(fn func(E))
}

// Resetter is implemented by processors that can discard partial state, which makes
// a failed run safe to retry after output was already consumed.
type Resetter interface {
	Reset()
}

// CanReset reports whether p can discard partial state. Wrapping processors whose
// answer depends on what they wrap implement CanReset() bool.
func CanReset(p OutputProcessor) bool {
	if _, ok := p.(Resetter); !ok {
		return false
	}
	if c, ok := p.(interface{ CanReset() bool }); ok {
		return c.CanReset()
	}
	return true
}

// Feed sends lines followed by the terminator to p. It returns false if p asked to
// stop before all lines were consumed; the terminator is still delivered.
func Feed(p OutputProcessor, lines ...string) bool {
	complete := true
	for i := range lines {
		line := lines[i]
		if !p.LineReceived(&line) {
			complete = false
			break
		}
	}
	p.LineReceived(nil)
	return complete
}

// ListProcessor is the base for processors that produce a list of entries. Embed it
// and call Emit from LineReceived; call Finish on the terminator.
type ListProcessor[E any] struct {
	mu       sync.Mutex
	entries  []E
	onEntry  []func(E)
	finished bool
}

// OnEntry registers an observer called for each entry as it is emitted.
func (p *ListProcessor[E]) OnEntry(fn func(E)) {
	p.mu.Lock()
	p.onEntry = append(p.onEntry, fn)
	p.mu.Unlock()
}

// Emit appends e and notifies observers.
func (p *ListProcessor[E]) Emit(e E) {
	p.mu.Lock()
	p.entries = append(p.entries, e)
	observers := append([]func(E){}, p.onEntry...)
	p.mu.Unlock()

	for _, fn := range observers {
		fn(e)
	}
}

// Finish marks the result final.
func (p *ListProcessor[E]) Finish() {
	p.mu.Lock()
	p.finished = true
	p.mu.Unlock()
}

// Finished reports whether the terminator has been seen.
func (p *ListProcessor[E]) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// Result returns the entries once finished, nil before.
func (p *ListProcessor[E]) Result() []E {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finished {
		return nil
	}
	return append([]E(nil), p.entries...)
}

// Reset discards all entries. Observers stay registered.
func (p *ListProcessor[E]) Reset() {
	p.mu.Lock()
	p.entries = nil
	p.finished = false
	p.mu.Unlock()
}

// LineCollector collects every line verbatim.
type LineCollector struct {
	ListProcessor[string]
}

func NewLineCollector() *LineCollector { return &LineCollector{} }

func (c *LineCollector) LineReceived(line *string) bool {
	if line == nil {
		c.Finish()
		return true
	}
	c.Emit(*line)
	return true
}

// StringProcessor joins all output into one string with trailing newlines trimmed.
type StringProcessor struct {
	mu    sync.Mutex
	b     strings.Builder
	value string
}

func NewStringProcessor() *StringProcessor { return &StringProcessor{} }

func (p *StringProcessor) LineReceived(line *string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if line == nil {
		p.value = strings.TrimRight(p.b.String(), "\n")
		return true
	}
	p.b.WriteString(*line)
	p.b.WriteByte('\n')
	return true
}

func (p *StringProcessor) Result() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *StringProcessor) Reset() {
	p.mu.Lock()
	p.b.Reset()
	p.value = ""
	p.mu.Unlock()
}

// FirstLineProcessor keeps the first non-empty line and stops reading.
type FirstLineProcessor struct {
	mu    sync.Mutex
	value string
	seen  bool
}

func NewFirstLineProcessor() *FirstLineProcessor { return &FirstLineProcessor{} }

func (p *FirstLineProcessor) LineReceived(line *string) bool {
	if line == nil {
		return true
	}
	if strings.TrimSpace(*line) == "" {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = strings.TrimSpace(*line)
	p.seen = true
	return false
}

func (p *FirstLineProcessor) Result() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Found reports whether a line was captured.
func (p *FirstLineProcessor) Found() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen
}

func (p *FirstLineProcessor) Reset() {
	p.mu.Lock()
	p.value, p.seen = "", false
	p.mu.Unlock()
}
