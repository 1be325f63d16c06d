// Package keylock serializes work per key within one process. An entry
// lives only while somebody holds or waits on it.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Set is a set of named mutexes. The zero value is ready to use.
type Set struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Lock blocks until key is free and returns the unlock func.
func (s *Set) Lock(key string) func() {
	s.mu.Lock()
	if s.entries == nil {
		s.entries = map[string]*entry{}
	}
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.entries, key)
		}
		s.mu.Unlock()
	}
}

// Len reports how many keys are held or waited on.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
