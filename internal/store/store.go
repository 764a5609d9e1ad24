// Package store holds live workflow sessions in process memory.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = fmt.Errorf("session not found")

type entry struct {
	mu      sync.Mutex
	session *domain.Session
}

// SessionStore is an in-memory session table. All mutations of one session
// are serialized through WithSession; the registry lock only guards the map.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*entry)}
}

// Create allocates a new session owned by ownerID and returns it.
func (s *SessionStore) Create(ownerID string) *domain.Session {
	id := uuid.NewString()
	sess := domain.NewSession(id, ownerID)

	s.mu.Lock()
	s.sessions[id] = &entry{session: sess}
	s.mu.Unlock()

	return sess
}

// Get returns a point-in-time copy of the session. Callers that intend to
// mutate must go through WithSession instead.
func (s *SessionStore) Get(id string) (*domain.Session, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *e.session
	cp.Messages = append([]domain.Message(nil), e.session.Messages...)
	return &cp, nil
}

// WithSession runs fn with exclusive access to the session. Concurrent calls
// for the same id are serialized; fn's error is returned unchanged.
func (s *SessionStore) WithSession(id string, fn func(*domain.Session) error) error {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// Delete removes the session. Deleting an unknown id is not an error.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// List returns copies of all sessions owned by ownerID, newest first.
func (s *SessionStore) List(ownerID string) []*domain.Session {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []*domain.Session
	for _, e := range entries {
		e.mu.Lock()
		if ownerID == "" || e.session.OwnerID == ownerID {
			cp := *e.session
			cp.Messages = append([]domain.Message(nil), e.session.Messages...)
			out = append(out, &cp)
		}
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Count returns the number of live sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Expired returns the ids of sessions idle longer than ttl.
func (s *SessionStore) Expired(ttl time.Duration) []string {
	cutoff := time.Now().Add(-ttl)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, e := range s.sessions {
		e.mu.Lock()
		idle := e.session.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if idle {
			ids = append(ids, id)
		}
	}
	return ids
}
