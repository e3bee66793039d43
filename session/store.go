package session

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when no credential is stored for a client.
var ErrNotFound = errors.New("session: no stored credential")

// ErrInvalidClientID is returned when the client id is empty.
var ErrInvalidClientID = errors.New("session: client id is required")

// Store persists the opaque authentication credential of a messaging client
// under a client id scoped to one application instance.
type Store interface {
	// Load returns the stored credential or ErrNotFound.
	Load(ctx context.Context, clientID string) ([]byte, error)
	// Save replaces the stored credential.
	Save(ctx context.Context, clientID string, data []byte) error
	// Delete removes the stored credential. Deleting a missing credential is
	// not an error.
	Delete(ctx context.Context, clientID string) error
}

// MemoryStore keeps credentials in process memory. Nothing survives a
// restart, so every process start needs a fresh QR scan.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, clientID string) ([]byte, error) {
	if err := checkArgs(ctx, clientID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), d...), nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, clientID string, data []byte) error {
	if err := checkArgs(ctx, clientID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[clientID] = append([]byte(nil), data...)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, clientID string) error {
	if err := checkArgs(ctx, clientID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, clientID)
	return nil
}

func checkArgs(ctx context.Context, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if clientID == "" {
		return ErrInvalidClientID
	}
	return nil
}
