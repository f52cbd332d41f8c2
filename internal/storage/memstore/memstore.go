// Package memstore keeps users in process memory. Used for local runs and tests.
package memstore

import (
	"context"
	"sync"

	"github.com/suspectuso/premium-bot/internal/storage"
)

type Store struct {
	mu    sync.RWMutex
	users map[string]*storage.User
}

func New() *Store {
	return &Store{users: make(map[string]*storage.User)}
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[externalID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u.Clone(), nil
}

func (s *Store) Create(ctx context.Context, user *storage.User) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ExternalID]; ok {
		return nil, storage.ErrAlreadyExists
	}

	u := user.Clone()
	u.Version = 1
	s.users[u.ExternalID] = u
	return u.Clone(), nil
}

func (s *Store) Update(ctx context.Context, user *storage.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[user.ExternalID]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.Version != user.Version {
		return storage.ErrConflict
	}

	next := user.Clone()
	next.CreatedAt = cur.CreatedAt
	next.Version = cur.Version + 1
	s.users[next.ExternalID] = next

	user.Version = next.Version
	return nil
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
