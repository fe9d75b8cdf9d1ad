package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
	"github.com/bryanwahyu/pdaudit/internal/infra/secrets"
)

// Store is the registry.Store backed by Postgres. Credentials are kept
// encrypted and opened on read.
type Store struct {
	db  *sql.DB
	box *secrets.Box
}

func NewStore(db *sql.DB, box *secrets.Box) *Store {
	return &Store{db: db, box: box}
}

func (s *Store) GetCachedRegistryEntry(ctx context.Context, taxID string) (*registry.CacheEntry, error) {
	const q = `
SELECT tax_id, result_json, attempts, negative, checked_at
FROM registry_cache
WHERE tax_id=$1;`
	var (
		e   registry.CacheEntry
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, q, taxID).Scan(&e.TaxID, &raw, &e.Attempts, &e.Negative, &e.CheckedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, registry.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &e.Result); err != nil {
		return nil, fmt.Errorf("decode registry cache %s: %w", taxID, err)
	}
	return &e, nil
}

func (s *Store) SaveCachedRegistryEntry(ctx context.Context, e *registry.CacheEntry) error {
	const q = `
INSERT INTO registry_cache
  (tax_id, result_json, attempts, negative, checked_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (tax_id) DO UPDATE SET
  result_json=EXCLUDED.result_json,
  attempts=EXCLUDED.attempts,
  negative=EXCLUDED.negative,
  checked_at=EXCLUDED.checked_at;`
	raw, err := json.Marshal(e.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, q, e.TaxID, raw, e.Attempts, e.Negative, e.CheckedAt.UTC())
	return err
}

func (s *Store) GetDecryptedCredential(ctx context.Context, provider string) (string, error) {
	var ct string
	err := s.db.QueryRowContext(ctx, `SELECT ciphertext FROM ai_credentials WHERE provider=$1`, provider).Scan(&ct)
	if errors.Is(err, sql.ErrNoRows) {
		return "", registry.ErrCredentialNotFound
	}
	if err != nil {
		return "", err
	}
	return s.box.Open(ct)
}

func (s *Store) SaveCredential(ctx context.Context, provider, plaintext string) error {
	const q = `
INSERT INTO ai_credentials (provider, ciphertext, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (provider) DO UPDATE SET
  ciphertext=EXCLUDED.ciphertext,
  updated_at=EXCLUDED.updated_at;`
	ct, err := s.box.Seal(plaintext)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, q, provider, ct, time.Now().UTC())
	return err
}
