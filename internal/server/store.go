package server

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/KaramelBytes/dataloom-cli/internal/agent"
	"github.com/KaramelBytes/dataloom-cli/internal/observability"
)

var ErrTooManySessions = errors.New("session limit reached")

// Factory builds the agent behind a new session.
type Factory func() (*agent.Agent, error)

// Store holds independent sessions keyed by id. Sessions share nothing;
// the store only guards the map.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*agent.Agent
	max      int
	factory  Factory
}

// NewStore returns a store that holds at most max sessions (0 = unlimited).
func NewStore(max int, factory Factory) *Store {
	return &Store{sessions: map[string]*agent.Agent{}, max: max, factory: factory}
}

// Create starts a new session.
func (s *Store) Create() (string, *agent.Agent, error) {
	a, err := s.factory()
	if err != nil {
		return "", nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && len(s.sessions) >= s.max {
		return "", nil, ErrTooManySessions
	}
	id := uuid.NewString()
	s.sessions[id] = a
	observability.SetActiveSessions(len(s.sessions))
	return id, a, nil
}

func (s *Store) Get(id string) (*agent.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.sessions[id]
	return a, ok
}

// Reset swaps the session for a fresh one under the same id. Requests
// already holding the old agent finish against it.
func (s *Store) Reset(id string) (*agent.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	fresh := a.Reset()
	s.sessions[id] = fresh
	return fresh, true
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	observability.SetActiveSessions(len(s.sessions))
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
