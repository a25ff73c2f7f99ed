// Package registry holds the caller-side cache of monitored folders.
package registry

import (
	"slices"
	"sync"
)

// Registry is an ordered, duplicate-free list of folder paths. It is updated
// from confirmed add/remove results and full list refreshes only.
type Registry struct {
	mu       sync.RWMutex
	paths    []string
	onChange func(paths []string)
}

// New creates an empty registry. onChange, if non-nil, receives a snapshot
// after every mutation that changed the contents.
func New(onChange func(paths []string)) *Registry {
	return &Registry{onChange: onChange}
}

// Snapshot returns a copy of the current folders in order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.paths...)
}

// Len returns the number of folders.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.paths)
}

// Contains reports whether path is registered.
func (r *Registry) Contains(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.paths, path)
}

// Replace swaps the whole list. Duplicates keep their first occurrence and
// empty entries are dropped.
func (r *Registry) Replace(paths []string) {
	next := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		next = append(next, p)
	}

	r.mu.Lock()
	changed := !slices.Equal(r.paths, next)
	r.paths = next
	snap := append([]string(nil), next...)
	r.mu.Unlock()

	if changed {
		r.notify(snap)
	}
}

// Upsert prepends path if absent. It returns true when the list changed.
func (r *Registry) Upsert(path string) bool {
	if path == "" {
		return false
	}
	r.mu.Lock()
	if slices.Index(r.paths, path) >= 0 {
		r.mu.Unlock()
		return false
	}
	r.paths = append([]string{path}, r.paths...)
	snap := append([]string(nil), r.paths...)
	r.mu.Unlock()

	r.notify(snap)
	return true
}

// Remove deletes path. It returns false if the path was not present.
func (r *Registry) Remove(path string) bool {
	r.mu.Lock()
	i := slices.Index(r.paths, path)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	r.paths = append(r.paths[:i:i], r.paths[i+1:]...)
	snap := append([]string(nil), r.paths...)
	r.mu.Unlock()

	r.notify(snap)
	return true
}

func (r *Registry) notify(snap []string) {
	if r.onChange != nil {
		r.onChange(snap)
	}
}
