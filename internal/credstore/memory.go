// Package credstore persists the refresh token of a linked device.
package credstore

import (
	"context"
	"errors"
	"sync"
)

// Errors returned by the stores
var (
	// ErrClosed indicates the store was used after Close
	ErrClosed = errors.New("credential store closed")

	// ErrLocked indicates another process holds the store file
	ErrLocked = errors.New("credential store locked by another process")
)

// MemoryStore keeps the refresh token in process memory. It forgets the
// token on exit and suits tests and one-shot runs.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a store holding token, which may be empty.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (s *MemoryStore) RefreshToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryStore) SetRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) ClearRefreshToken(ctx context.Context) error {
	return s.SetRefreshToken(ctx, "")
}

// CheckHealth always succeeds.
func (s *MemoryStore) CheckHealth(ctx context.Context) error {
	return nil
}
