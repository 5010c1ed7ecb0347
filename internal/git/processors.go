package git

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aristath/gitbridge/internal/process"
)

// Version is a parsed `git --version`.
type Version struct {
	Major, Minor, Patch int
	Raw                 string
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Valid reports whether a version number was found.
func (v Version) Valid() bool { return v.Major > 0 }

// AtLeast compares against major.minor.
func (v Version) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

var versionRe = regexp.MustCompile(`git version (\d+)\.(\d+)(?:\.(\d+))?`)

// VersionProcessor parses the output of `git --version`.
type VersionProcessor struct {
	mu      sync.Mutex
	version Version
}

func NewVersionProcessor() *VersionProcessor { return &VersionProcessor{} }

func (p *VersionProcessor) LineReceived(line *string) bool {
	if line == nil {
		return true
	}
	m := versionRe.FindStringSubmatch(*line)
	if m == nil {
		return true
	}
	v := Version{Raw: strings.TrimSpace(*line)}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	p.mu.Lock()
	p.version = v
	p.mu.Unlock()
	return true
}

func (p *VersionProcessor) Result() Version {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

func (p *VersionProcessor) Reset() {
	p.mu.Lock()
	p.version = Version{}
	p.mu.Unlock()
}

// StatusEntry is one line of `git status --porcelain`.
type StatusEntry struct {
	Index    byte // X column
	WorkTree byte // Y column
	Path     string
	OrigPath string // source of a rename or copy
}

func (e StatusEntry) Untracked() bool { return e.Index == '?' && e.WorkTree == '?' }
func (e StatusEntry) Ignored() bool   { return e.Index == '!' && e.WorkTree == '!' }

// Staged reports whether the index differs from HEAD for this path.
func (e StatusEntry) Staged() bool {
	return e.Index != ' ' && e.Index != '?' && e.Index != '!'
}

// Conflicted reports an unmerged path.
func (e StatusEntry) Conflicted() bool {
	switch string([]byte{e.Index, e.WorkTree}) {
	case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
		return true
	}
	return false
}

func (e StatusEntry) String() string {
	if e.OrigPath != "" {
		return fmt.Sprintf("%c%c %s -> %s", e.Index, e.WorkTree, e.OrigPath, e.Path)
	}
	return fmt.Sprintf("%c%c %s", e.Index, e.WorkTree, e.Path)
}

// Status is the branch header plus the entries of a status run.
type Status struct {
	Branch   string
	Upstream string
	Ahead    int
	Behind   int
	Entries  []StatusEntry
}

// Clean reports whether there is nothing to commit.
func (s Status) Clean() bool {
	for _, e := range s.Entries {
		if !e.Ignored() {
			return false
		}
	}
	return true
}

// StatusProcessor parses `git status --porcelain -b`. Entries stream through
// OnEntry; the result is only available after the terminator.
type StatusProcessor struct {
	process.ListProcessor[StatusEntry]

	mu     sync.Mutex
	header Status
}

func NewStatusProcessor() *StatusProcessor { return &StatusProcessor{} }

func (p *StatusProcessor) LineReceived(line *string) bool {
	if line == nil {
		p.Finish()
		return true
	}
	if strings.HasPrefix(*line, "## ") {
		h := parseBranchHeader(strings.TrimPrefix(*line, "## "))
		p.mu.Lock()
		p.header = h
		p.mu.Unlock()
		return true
	}
	if e, ok := parseStatusEntry(*line); ok {
		p.Emit(e)
	}
	return true
}

// Status returns the header and entries once finished.
func (p *StatusProcessor) Status() Status {
	entries := p.Result()
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.header
	s.Entries = entries
	return s
}

func (p *StatusProcessor) Reset() {
	p.ListProcessor.Reset()
	p.mu.Lock()
	p.header = Status{}
	p.mu.Unlock()
}

func parseStatusEntry(line string) (StatusEntry, bool) {
	if len(line) < 3 {
		return StatusEntry{}, false
	}
	e := StatusEntry{Index: line[0], WorkTree: line[1]}
	path := strings.TrimLeft(line[2:], " ")
	if path == "" {
		return StatusEntry{}, false
	}
	if e.Index == 'R' || e.Index == 'C' {
		if from, to, ok := strings.Cut(path, " -> "); ok {
			e.OrigPath = unquote(from)
			path = to
		}
	}
	e.Path = unquote(path)
	return e, true
}

// unquote undoes git's C-style quoting of unusual paths.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}

var trackRe = regexp.MustCompile(`(ahead|behind) (\d+)`)

func parseBranchHeader(h string) Status {
	var s Status
	if rest, ok := strings.CutPrefix(h, "No commits yet on "); ok {
		s.Branch = rest
		return s
	}
	if rest, ok := strings.CutPrefix(h, "Initial commit on "); ok {
		s.Branch = rest
		return s
	}

	track := ""
	if i := strings.Index(h, " ["); i >= 0 {
		track = h[i+2:]
		h = h[:i]
	}
	if branch, upstream, ok := strings.Cut(h, "..."); ok {
		s.Branch, s.Upstream = branch, upstream
	} else {
		s.Branch = h
	}
	for _, m := range trackRe.FindAllStringSubmatch(track, -1) {
		n, _ := strconv.Atoi(m[2])
		if m[1] == "ahead" {
			s.Ahead = n
		} else {
			s.Behind = n
		}
	}
	return s
}

// Log record and field separators passed to --format.
const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"
	logFormat = "%x1e%H%x1f%an%x1f%ae%x1f%aI%x1f%s%x1f%b"
)

// Commit is one entry of `git log`.
type Commit struct {
	Hash    string
	Author  string
	Email   string
	Date    time.Time
	Subject string
	Body    string
}

// LogProcessor parses `git log` output produced with logFormat. A commit is only
// complete when the next record starts or the stream ends, since bodies span lines.
type LogProcessor struct {
	process.ListProcessor[Commit]

	mu      sync.Mutex
	pending *Commit
	body    []string
}

func NewLogProcessor() *LogProcessor { return &LogProcessor{} }

func (p *LogProcessor) LineReceived(line *string) bool {
	if line == nil {
		p.flush()
		p.Finish()
		return true
	}

	if rest, ok := strings.CutPrefix(*line, recordSep); ok {
		p.flush()
		fields := strings.SplitN(rest, fieldSep, 6)
		if len(fields) < 5 {
			return true
		}
		c := &Commit{Hash: fields[0], Author: fields[1], Email: fields[2], Subject: fields[4]}
		c.Date, _ = time.Parse(time.RFC3339, fields[3])
		var body []string
		if len(fields) == 6 {
			body = append(body, fields[5])
		}
		p.mu.Lock()
		p.pending, p.body = c, body
		p.mu.Unlock()
		return true
	}

	p.mu.Lock()
	if p.pending != nil {
		p.body = append(p.body, *line)
	}
	p.mu.Unlock()
	return true
}

func (p *LogProcessor) flush() {
	p.mu.Lock()
	c := p.pending
	if c != nil {
		c.Body = strings.TrimRight(strings.Join(p.body, "\n"), "\n ")
	}
	p.pending, p.body = nil, nil
	p.mu.Unlock()

	if c != nil {
		p.Emit(*c)
	}
}

func (p *LogProcessor) Reset() {
	p.ListProcessor.Reset()
	p.mu.Lock()
	p.pending, p.body = nil, nil
	p.mu.Unlock()
}

// Worktree is one block of `git worktree list --porcelain`.
type Worktree struct {
	Path     string
	Head     string
	Branch   string // short name, empty when detached
	Bare     bool
	Detached bool
	Locked   bool
	Prunable bool
}

// WorktreeListProcessor parses porcelain worktree blocks separated by blank lines.
type WorktreeListProcessor struct {
	process.ListProcessor[Worktree]

	mu      sync.Mutex
	pending *Worktree
}

func NewWorktreeListProcessor() *WorktreeListProcessor { return &WorktreeListProcessor{} }

func (p *WorktreeListProcessor) LineReceived(line *string) bool {
	if line == nil {
		p.flush()
		p.Finish()
		return true
	}
	if *line == "" {
		p.flush()
		return true
	}

	key, value, _ := strings.Cut(*line, " ")
	if key == "worktree" {
		p.flush()
		p.mu.Lock()
		p.pending = &Worktree{Path: value}
		p.mu.Unlock()
		return true
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	wt := p.pending
	if wt == nil {
		return true
	}
	switch key {
	case "HEAD":
		wt.Head = value
	case "branch":
		wt.Branch = strings.TrimPrefix(value, "refs/heads/")
	case "bare":
		wt.Bare = true
	case "detached":
		wt.Detached = true
	case "locked":
		wt.Locked = true
	case "prunable":
		wt.Prunable = true
	}
	return true
}

func (p *WorktreeListProcessor) flush() {
	p.mu.Lock()
	wt := p.pending
	p.pending = nil
	p.mu.Unlock()
	if wt != nil {
		p.Emit(*wt)
	}
}

func (p *WorktreeListProcessor) Reset() {
	p.ListProcessor.Reset()
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
}

// RemoteRef is one line of `git ls-remote`.
type RemoteRef struct {
	Hash string
	Name string
}

// RemoteRefProcessor parses `git ls-remote` output.
type RemoteRefProcessor struct {
	process.ListProcessor[RemoteRef]
}

func NewRemoteRefProcessor() *RemoteRefProcessor { return &RemoteRefProcessor{} }

func (p *RemoteRefProcessor) LineReceived(line *string) bool {
	if line == nil {
		p.Finish()
		return true
	}
	hash, name, ok := strings.Cut(*line, "\t")
	if ok && hash != "" {
		p.Emit(RemoteRef{Hash: hash, Name: name})
	}
	return true
}
