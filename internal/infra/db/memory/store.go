package memory

import (
	"context"
	"sync"

	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
)

// Store keeps the registry cache and provider credentials in process memory.
// Entries are returned regardless of age; expiry is the caller's decision.
type Store struct {
	mu          sync.RWMutex
	entries     map[string]registry.CacheEntry
	credentials map[string]string
}

func NewStore() *Store {
	return &Store{
		entries:     make(map[string]registry.CacheEntry),
		credentials: make(map[string]string),
	}
}

func (s *Store) GetCachedRegistryEntry(_ context.Context, taxID string) (*registry.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[taxID]
	if !ok {
		return nil, registry.ErrCacheMiss
	}
	return &e, nil
}

// SaveCachedRegistryEntry overwrites any previous entry for the same id.
func (s *Store) SaveCachedRegistryEntry(_ context.Context, e *registry.CacheEntry) error {
	if e == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.TaxID] = *e
	return nil
}

func (s *Store) GetDecryptedCredential(_ context.Context, provider string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.credentials[provider]
	if !ok || v == "" {
		return "", registry.ErrCredentialNotFound
	}
	return v, nil
}

// SetCredential stores a plaintext credential, typically seeded from config.
func (s *Store) SetCredential(provider, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[provider] = value
}
