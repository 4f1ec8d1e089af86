package store

import (
	"log/slog"
	"sync"
)

// Refs counts open readers per data file. A file retired while pinned is
// deleted when its last pin is released.
type Refs struct {
	mu      sync.Mutex
	counts  map[string]int
	retired map[string]struct{}
	remove  func(name string) error
	logger  *slog.Logger
}

func newRefs(remove func(string) error, logger *slog.Logger) *Refs {
	return &Refs{
		counts:  make(map[string]int),
		retired: make(map[string]struct{}),
		remove:  remove,
		logger:  logger,
	}
}

func (r *Refs) Pin(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.counts[n]++
	}
}

// Unpin releases one pin per name and deletes retired files that are no
// longer pinned.
func (r *Refs) Unpin(names ...string) {
	r.mu.Lock()
	var reclaim []string
	for _, n := range names {
		c := r.counts[n] - 1
		if c > 0 {
			r.counts[n] = c
			continue
		}
		delete(r.counts, n)
		if _, ok := r.retired[n]; ok {
			delete(r.retired, n)
			reclaim = append(reclaim, n)
		}
	}
	r.mu.Unlock()
	r.delete(reclaim)
}

// Retire deletes unpinned files now and the rest once they are unpinned.
// It returns the names deleted immediately.
func (r *Refs) Retire(names ...string) []string {
	r.mu.Lock()
	var now []string
	for _, n := range names {
		if r.counts[n] > 0 {
			r.retired[n] = struct{}{}
			continue
		}
		now = append(now, n)
	}
	r.mu.Unlock()
	return r.delete(now)
}

func (r *Refs) Pinned(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name] > 0
}

func (r *Refs) delete(names []string) []string {
	deleted := make([]string, 0, len(names))
	for _, n := range names {
		if err := r.remove(n); err != nil {
			r.logger.Warn("deleting retired file failed", "file", n, "error", err)
			continue
		}
		deleted = append(deleted, n)
	}
	return deleted
}
