package memory

import (
	"context"
	"sync"

	"qms/patient-client/internal/models"
)

type Store struct {
	mu      sync.Mutex
	session *models.Session
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Load(ctx context.Context) (models.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return models.Session{}, false, nil
	}
	return *s.session, true, nil
}

func (s *Store) Save(ctx context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := session
	s.session = &copied
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}
