package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/domain/repositories"
)

// SessionRepository is an in-memory session store for development and
// tests; records do not survive a restart.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]entities.SavedSession
}

// NewSessionRepository creates a new in-memory session repository
func NewSessionRepository() repositories.SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]entities.SavedSession),
	}
}

// Save implements repositories.SessionRepository
func (r *SessionRepository) Save(ctx context.Context, session *entities.SavedSession) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

// Load implements repositories.SessionRepository
func (r *SessionRepository) Load(ctx context.Context, id string) (*entities.SavedSession, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

// List implements repositories.SessionRepository, most recent first
func (r *SessionRepository) List(ctx context.Context) ([]*entities.SavedSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*entities.SavedSession, 0, len(r.sessions))
	for id := range r.sessions {
		session := r.sessions[id]
		sessions = append(sessions, &session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Timestamp.After(sessions[j].Timestamp)
	})
	return sessions, nil
}

// Delete implements repositories.SessionRepository
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}
