package registry

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by a Store when no entry exists for an id.
var ErrCacheMiss = errors.New("registry cache miss")

// ErrCredentialNotFound is returned when no credential is stored for a provider.
var ErrCredentialNotFound = errors.New("credential not found")

// Store is the persistence collaborator for the registry cache and
// provider credentials.
type Store interface {
	GetCachedRegistryEntry(ctx context.Context, taxID string) (*CacheEntry, error)
	SaveCachedRegistryEntry(ctx context.Context, e *CacheEntry) error
	GetDecryptedCredential(ctx context.Context, provider string) (string, error)
}

// Checker looks an operator up in the registry.
type Checker interface {
	Check(ctx context.Context, taxID string) Result
}
