package models

import (
	"sort"
	"sync"
)

// Tracker maps live child pids to the hook that spawned them.
type Tracker struct {
	procs map[int]*Hook
	mu    *sync.Mutex
}

func NewTracker() *Tracker {
	return &Tracker{
		procs: make(map[int]*Hook),
		mu:    &sync.Mutex{},
	}
}

// Record stores pid as spawned by h. An existing record for pid is replaced.
func (t *Tracker) Record(pid int, h *Hook) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.procs[pid] = h
}

// Reap removes pid and returns its hook. Unknown pids report false and leave
// the tracker untouched.
func (t *Tracker) Reap(pid int) (*Hook, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.procs[pid]
	if ok {
		delete(t.procs, pid)
	}

	return h, ok
}

func (t *Tracker) Lookup(pid int) (*Hook, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.procs[pid]
	return h, ok
}

// Pids returns the tracked pids in ascending order.
func (t *Tracker) Pids() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	pids := make([]int, 0, len(t.procs))
	for pid := range t.procs {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	return pids
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.procs)
}
