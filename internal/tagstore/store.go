// Package tagstore holds the local cached view of the shared identity -> tag dataset.
package tagstore

import (
	"sync"

	"github.com/HilistonGit/redflag-automute/internal/domain"
)

// Store is a mutex-guarded identity -> tag mapping. Invalid tags are never stored.
type Store struct {
	mu      sync.RWMutex
	entries domain.Mapping
}

func New() *Store {
	return &Store{entries: make(domain.Mapping)}
}

func (s *Store) Get(id domain.Identity) (domain.SeverityTag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tag, ok := s.entries[id]
	return tag, ok
}

// SetAll replaces the whole mapping, dropping entries with unknown tags.
func (s *Store) SetAll(m domain.Mapping) {
	next := make(domain.Mapping, len(m))
	for id, tag := range m {
		if tag.Valid() {
			next[id] = tag
		}
	}

	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()
}

// SetOne tags a single identity. Unknown tags are ignored.
func (s *Store) SetOne(id domain.Identity, tag domain.SeverityTag) {
	if !tag.Valid() {
		return
	}

	s.mu.Lock()
	s.entries[id] = tag
	s.mu.Unlock()
}

func (s *Store) Remove(id domain.Identity) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// All returns a copy of the mapping.
func (s *Store) All() domain.Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Clone()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Stats() domain.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Stats()
}

// Range calls fn for every entry while holding the read lock. fn must not call back into s.
func (s *Store) Range(fn func(id domain.Identity, tag domain.SeverityTag)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, tag := range s.entries {
		fn(id, tag)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(domain.Mapping)
	s.mu.Unlock()
}
