// Package runctx implements the shared context store for one
// orchestration run: a versioned key-value map mutated by node
// completions and frozen into the run's final output.
//
// The store is the only mutable state shared between concurrently
// executing nodes. Every mutation goes through a short critical section
// guarded by the store's mutex, so node bodies never observe a sibling's
// partial writes. Each run owns its own Store; nothing here outlives a
// run.
package runctx

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get for a key with no committed value.
var ErrNotFound = errors.New("runctx: key not found")

// ConflictError reports an optimistic-concurrency failure: the caller's
// expected version no longer matches the store. Callers must re-read and
// retry, or escalate per their failure policy.
type ConflictError struct {
	Key      string
	Expected uint64
	Current  uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("runctx: version conflict on %q: expected %d, current %d",
		e.Key, e.Expected, e.Current)
}

type entry struct {
	value   any
	version uint64
}

// Store is a versioned key-value store scoped to one orchestration run.
// Versions are per key and start at 1 on the first write; version 0 means
// the key has never been written.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	frozen  bool
}

// New returns an empty store.
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Get returns the latest committed value and version for key, or
// ErrNotFound if the key has never been written.
func (s *Store) Get(key string) (any, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return e.value, e.version, nil
}

// Version returns the current version of key, 0 if unwritten.
func (s *Store) Version(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key].version
}

// Put writes key with an optimistic version check: expected must equal
// the key's current version (0 for a key never written). On success the
// new version is returned; on mismatch a *ConflictError.
func (s *Store) Put(key string, value any, expected uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return 0, errFrozen
	}
	current := s.entries[key].version
	if current != expected {
		return 0, &ConflictError{Key: key, Expected: expected, Current: current}
	}
	next := current + 1
	s.entries[key] = entry{value: value, version: next}
	return next, nil
}

// Merge atomically applies all of a node's declared outputs. For every
// key present in expected, the key's current version must still match;
// otherwise nothing is applied and a *ConflictError for the first
// mismatching key (ascending) is returned. Merge is all-or-nothing: a
// node's writes either all land or none do.
func (s *Store) Merge(delta map[string]any, expected map[string]uint64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return nil, errFrozen
	}

	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		want, checked := expected[k]
		if !checked {
			continue
		}
		if current := s.entries[k].version; current != want {
			return nil, &ConflictError{Key: k, Expected: want, Current: current}
		}
	}

	for _, k := range keys {
		e := s.entries[k]
		s.entries[k] = entry{value: delta[k], version: e.version + 1}
	}
	return keys, nil
}

// Snapshot returns a copy of the committed values at call time.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.entries))
	for k, e := range s.entries {
		out[k] = e.value
	}
	return out
}

// Freeze marks the store read-only and returns the final values. The
// scheduler calls it once at run end (or on abort); later writes fail.
func (s *Store) Freeze() map[string]any {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
	return s.Snapshot()
}

// Len returns the number of committed keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var errFrozen = errors.New("runctx: store is frozen")
