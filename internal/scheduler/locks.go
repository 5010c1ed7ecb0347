package scheduler

import (
	"path/filepath"
	"sort"
	"sync"
)

// PathLocks provides per-path mutual exclusion for processes that mutate a working
// tree. Each cleaned path gets its own mutex, so work on different repositories
// proceeds in parallel while work on the same repository is serialized.
type PathLocks struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-path mutexes
}

// NewPathLocks creates an empty lock set.
func NewPathLocks() *PathLocks {
	return &PathLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for a single path, creating it on first use.
func (p *PathLocks) Lock(path string) {
	p.get(filepath.Clean(path)).Lock()
}

// Unlock releases the mutex for a single path.
func (p *PathLocks) Unlock(path string) {
	p.mu.Lock()
	l, ok := p.locks[filepath.Clean(path)]
	p.mu.Unlock()

	if ok {
		l.Unlock()
	}
}

// LockAll acquires every path in sorted order and returns the function that
// releases them in reverse order. Duplicate paths are locked once.
func (p *PathLocks) LockAll(paths []string) (unlock func()) {
	keys := normalize(paths)
	if len(keys) == 0 {
		return func() {}
	}

	held := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		l := p.get(key)
		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (p *PathLocks) get(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	return l
}

// normalize cleans, dedupes and sorts paths so that every caller acquires in the
// same order.
func normalize(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	keys := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		key := filepath.Clean(path)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
