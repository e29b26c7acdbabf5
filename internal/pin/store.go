// Package pin keeps the per-project pinned main document and resolves
// requested documents to the session key they belong to.
package pin

import (
	"sort"
	"sync"
)

// Store persists one pinned main path per project. Get returns "" when the
// project has no pin.
type Store interface {
	Get(project string) (string, error)
	Set(project, path string) error
	Clear(project string) error
	List() (map[string]string, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	pins map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pins: map[string]string{}}
}

func (s *MemoryStore) Get(project string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pins[project], nil
}

func (s *MemoryStore) Set(project, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[project] = path
	return nil
}

func (s *MemoryStore) Clear(project string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pins, project)
	return nil
}

func (s *MemoryStore) List() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.pins))
	for k, v := range s.pins {
		out[k] = v
	}
	return out, nil
}

// Projects returns the keys of a List result in a stable order.
func Projects(pins map[string]string) []string {
	out := make([]string, 0, len(pins))
	for k := range pins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
