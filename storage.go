package flow

import (
	"context"
	"sync"
)

// Storage is page-lifetime key/value storage that survives a full navigation within the same
// checkout session.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage is an in-process [Storage].
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage returns an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get implements [Storage].
func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements [Storage].
func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete implements [Storage].
func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

const (
	keyOrderID  = "order_id"
	keyOrderKey = "order_key"
	keySaveCard = "save_card"
)

// sessionStore namespaces storage keys by checkout session.
type sessionStore struct {
	storage    Storage
	sessionKey string
}

func (s sessionStore) key(name string) string {
	return "flow:" + s.sessionKey + ":" + name
}

func (s sessionStore) get(ctx context.Context, name string) (string, bool, error) {
	return s.storage.Get(ctx, s.key(name))
}

func (s sessionStore) set(ctx context.Context, name, value string) error {
	return s.storage.Set(ctx, s.key(name), value)
}
