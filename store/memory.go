package store

import (
	"context"
	"sync"

	"github.com/intelhive/intelhive/core"
)

// InMemoryStore is a volatile SessionStore keeping aggregates in a process
// local map. Safe for concurrent access; every session crossing the boundary
// is cloned so callers cannot mutate internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Save stores a clone of the session snapshot, overwriting any previous
// version.
func (s *InMemoryStore) Save(_ context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get returns a clone of the stored session or core.ErrNotFound.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return sess.Clone(), nil
}

// ListByStatus returns clones of every session currently in the given
// status. Order is unspecified.
func (s *InMemoryStore) ListByStatus(_ context.Context, status core.Status) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Session
	for _, sess := range s.sessions {
		if sess.Status == status {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}
