// Package statefile persists local settings and the fallback tag mapping in a JSON file.
package statefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/HilistonGit/redflag-automute/internal/domain"
)

// State is the file layout.
type State struct {
	IncludeSecondary *bool          `json:"include_secondary,omitempty"`
	LocalFallback    domain.Mapping `json:"local_fallback,omitempty"`
}

// Store reads and rewrites the whole file on every change. Writes go to a temp file
// in the same directory and are renamed into place.
type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load returns the stored state; a missing file is an empty state.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}

	cleaned := make(domain.Mapping, len(st.LocalFallback))
	for id, tag := range st.LocalFallback {
		if tag.Valid() {
			cleaned[id] = tag
		}
	}
	st.LocalFallback = cleaned
	return st, nil
}

func (s *Store) update(fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	fn(&st)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".redflag-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (s *Store) SaveFallback(_ context.Context, m domain.Mapping) error {
	return s.update(func(st *State) { st.LocalFallback = m.Clone() })
}

func (s *Store) LoadFallback(context.Context) (domain.Mapping, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	if st.LocalFallback == nil {
		return domain.Mapping{}, nil
	}
	return st.LocalFallback, nil
}

func (s *Store) SaveIncludeSecondary(_ context.Context, include bool) error {
	return s.update(func(st *State) { st.IncludeSecondary = &include })
}

func (s *Store) LoadIncludeSecondary(context.Context) (bool, bool, error) {
	st, err := s.Load()
	if err != nil {
		return false, false, err
	}
	if st.IncludeSecondary == nil {
		return false, false, nil
	}
	return *st.IncludeSecondary, true, nil
}
