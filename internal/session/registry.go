package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrIncompleteSession = errors.New("session has no address")
)

// Session is one live preview instance. Values are immutable once they are
// in the registry.
type Session struct {
	Key              string
	Project          string
	DataPlanePort    int
	ControlPlanePort int
	Address          string
	TaskID           uuid.UUID
	StartedAt        time.Time

	seq uint64
}

// Registry maps a resolved main document path to its live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	seq      uint64
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: map[string]Session{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) Get(key string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Put stores s under s.Key and returns the stored copy. StartedAt is
// stamped here unless the caller already set it. Age is the insertion
// order; StartedAt is informational and may step backwards with the clock.
func (r *Registry) Put(s Session) (Session, error) {
	if s.Address == "" {
		return Session{}, ErrIncompleteSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	s.seq = r.seq
	if s.StartedAt.IsZero() {
		s.StartedAt = r.now()
	}
	r.sessions[s.Key] = s
	return s, nil
}

func (r *Registry) Remove(key string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	return s, ok
}

// RemoveTask removes the session under key only if it still belongs to
// taskID, so a stale stop cannot drop a newer session for the same key.
func (r *Registry) RemoveTask(key string, taskID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok || s.TaskID != taskID {
		return false
	}
	delete(r.sessions, key)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Oldest returns the session inserted first.
func (r *Registry) Oldest() (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var oldest Session
	found := false
	for _, s := range r.sessions {
		if !found || s.before(oldest) {
			oldest = s
			found = true
		}
	}
	return oldest, found
}

// List returns all sessions, oldest first.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].before(out[j]) })
	return out
}

func (s Session) before(other Session) bool {
	return s.seq < other.seq
}
