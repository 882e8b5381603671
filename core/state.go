package core

import (
	"maps"
	"slices"
	"sync"
)

// InputKey is the well-known key under which the runner seeds the user's input.
const InputKey = "user_input"

// State is the shared key/value session state of one run. Keys keep their
// first-insertion order and are never deleted, only overwritten. It is safe for
// concurrent use.
//
// Contract:
//   - Get on an undefined key returns a *MissingKeyError
//   - Fork returns a branch view for one parallel child; the branch records
//     the keys it reads and writes so MergeBranches can reject ambiguous access
//   - Snapshot returns an immutable copy for tracing and results
type State struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]any

	// branch bookkeeping, nil unless created by Fork
	reads  map[string]struct{}
	writes []string
}

// NewState creates an empty state.
func NewState() *State {
	return &State{values: map[string]any{}}
}

// NewStateFrom creates a state seeded with initial, inserting keys in sorted
// order so that seeding is deterministic.
func NewStateFrom(initial map[string]any) *State {
	s := NewState()
	for _, k := range slices.Sorted(maps.Keys(initial)) {
		s.Set(k, initial[k])
	}
	return s
}

// Get returns the value stored under key or a *MissingKeyError.
func (s *State) Get(key string) (any, error) {
	v, ok := s.Lookup(key)
	if !ok {
		return nil, &MissingKeyError{Key: key}
	}
	return v, nil
}

// Lookup returns the value and whether the key is defined. Use it for keys a
// node declares optional.
func (s *State) Lookup(key string) (any, bool) {
	if s.reads != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.reads[key] = struct{}{}
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is defined.
func (s *State) Has(key string) bool {
	_, ok := s.Lookup(key)
	return ok
}

// Set inserts or overwrites key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value)
}

func (s *State) setLocked(key string, value any) {
	if s.values == nil {
		s.values = map[string]any{}
	}
	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value

	if s.reads != nil && !slices.Contains(s.writes, key) {
		s.writes = append(s.writes, key)
	}
}

// Keys returns the defined keys in insertion order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.keys)
}

// Len returns the number of defined keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Snapshot returns an immutable copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{keys: slices.Clone(s.keys), values: maps.Clone(s.values)}
}

// Fork returns a branch view holding a consistent copy of the current state.
// Writes to the branch stay local until MergeBranches applies them.
func (s *State) Fork() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &State{
		keys:   slices.Clone(s.keys),
		values: maps.Clone(s.values),
		reads:  map[string]struct{}{},
	}
}

// Written returns the keys written to a branch in first-write order.
func (s *State) Written() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.writes)
}

// AdoptReads records the reads of fork (created by Fork on s) as reads of s,
// without applying any of its writes. Keys fork wrote itself are skipped. It
// is a no-op unless s is a branch.
func (s *State) AdoptReads(fork *State) {
	fork.mu.RLock()
	var keys []string
	for k := range fork.reads {
		if !slices.Contains(fork.writes, k) {
			keys = append(keys, k)
		}
	}
	fork.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reads == nil {
		return
	}
	for _, k := range keys {
		s.reads[k] = struct{}{}
	}
}

// MergeBranches applies the writes of branches (created by Fork on s) in the
// given order. names label the branches in conflict reports. Before anything
// is applied it verifies that no key was written by two branches and that no
// branch read a key a sibling wrote; violations return a *ConflictError and
// leave s untouched.
func (s *State) MergeBranches(names []string, branches []*State) error {
	writers := map[string][]string{}
	var order []string

	for i, b := range branches {
		for _, k := range b.Written() {
			if _, seen := writers[k]; !seen {
				order = append(order, k)
			}
			writers[k] = append(writers[k], names[i])
		}
	}

	for _, k := range order {
		if len(writers[k]) > 1 {
			return &ConflictError{Key: k, Writers: writers[k]}
		}
	}

	for i, b := range branches {
		b.mu.RLock()
		for _, k := range order {
			if _, read := b.reads[k]; read && writers[k][0] != names[i] {
				b.mu.RUnlock()
				return &ConflictError{Key: k, Writers: writers[k], Readers: []string{names[i]}}
			}
		}
		b.mu.RUnlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range branches {
		b.mu.RLock()
		for _, k := range b.writes {
			s.setLocked(k, b.values[k])
		}
		if s.reads != nil {
			for k := range b.reads {
				s.reads[k] = struct{}{}
			}
		}
		b.mu.RUnlock()
	}

	return nil
}

// Snapshot is an immutable, ordered copy of a State.
type Snapshot struct {
	keys   []string
	values map[string]any
}

// Keys returns the keys in insertion order.
func (s Snapshot) Keys() []string { return slices.Clone(s.keys) }

// Get returns the value stored under key.
func (s Snapshot) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of keys.
func (s Snapshot) Len() int { return len(s.keys) }

// Map returns a copy of the values as a plain map.
func (s Snapshot) Map() map[string]any { return maps.Clone(s.values) }
