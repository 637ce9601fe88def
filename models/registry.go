package models

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// WatchAdder installs one kernel watch and returns its identifier.
type WatchAdder interface {
	Add(path string, mask uint32) (int, error)
}

// Registry owns every WatchedPath, indexed by path and by kernel watch id.
type Registry struct {
	paths   map[string]*WatchedPath
	order   []*WatchedPath
	watches map[int]*WatchedPath
	mu      *sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		paths:   make(map[string]*WatchedPath),
		watches: make(map[int]*WatchedPath),
		mu:      &sync.Mutex{},
	}
}

// FindOrCreate returns the WatchedPath for path, creating it on first use.
func (r *Registry) FindOrCreate(path string) *WatchedPath {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.paths[path]; ok {
		return p
	}

	p := &WatchedPath{
		Path:    path,
		WatchID: -1,
	}
	r.paths[path] = p
	r.order = append(r.order, p)

	return p
}

// Lookup returns the WatchedPath for path without creating it.
func (r *Registry) Lookup(path string) (*WatchedPath, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.paths[path]
	return p, ok
}

// Register installs the kernel watch for p using the aggregated mask of all
// its hooks. A path is registered at most once.
func (r *Registry) Register(w WatchAdder, p *WatchedPath) (int, error) {
	if p.Registered() {
		return p.WatchID, nil
	}

	id, err := w.Add(p.Path, p.Mask)
	if err != nil {
		return -1, fmt.Errorf("failed to add watch for %s: %w", p.Path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if other, ok := r.watches[id]; ok && other != p {
		// inotify hands out one descriptor per inode
		log.Warn().Str("path", p.Path).Str("other", other.Path).Int("wd", id).Msg("paths share one kernel watch")
		other.WatchID = -1
	}

	p.WatchID = id
	r.watches[id] = p

	return id, nil
}

// RegisterAll registers every path that has at least one hook. Failures are
// logged and the path is left unregistered.
func (r *Registry) RegisterAll(w WatchAdder) int {
	registered := 0

	for _, p := range r.Paths() {
		if len(p.Hooks) == 0 {
			continue
		}

		if _, err := r.Register(w, p); err != nil {
			log.Error().Err(err).Str("path", p.Path).Msg("failed to register watch")
			continue
		}

		log.Info().Str("path", p.Path).Int("wd", p.WatchID).Msgf("added watch for %s", p.Path)
		registered++
	}

	return registered
}

// Resolve maps a kernel watch id back to its path.
func (r *Registry) Resolve(id int) (*WatchedPath, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.watches[id]
	return p, ok
}

// Forget drops the mapping for a watch the kernel has invalidated.
func (r *Registry) Forget(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.watches[id]; ok {
		p.WatchID = -1
		delete(r.watches, id)
	}
}

// Paths returns all paths in first-seen order.
func (r *Registry) Paths() []*WatchedPath {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*WatchedPath, len(r.order))
	copy(out, r.order)

	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.order)
}
