package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
)

type RegistryRepository struct {
	db *sql.DB
}

func NewRegistryRepository(db *sql.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

func (r *RegistryRepository) GetCachedRegistryEntry(ctx context.Context, taxID string) (*registry.CacheEntry, error) {
	const q = `
SELECT tax_id, result_json, attempts, negative, checked_at
FROM registry_cache
WHERE tax_id=?
LIMIT 1;`
	var (
		e   registry.CacheEntry
		raw []byte
	)
	err := r.db.QueryRowContext(ctx, q, taxID).Scan(&e.TaxID, &raw, &e.Attempts, &e.Negative, &e.CheckedAt)
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

// SaveCachedRegistryEntry upserts; the latest lookup always wins.
func (r *RegistryRepository) SaveCachedRegistryEntry(ctx context.Context, e *registry.CacheEntry) error {
	const q = `
INSERT INTO registry_cache
  (tax_id, result_json, attempts, negative, checked_at)
VALUES (?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  result_json=VALUES(result_json), attempts=VALUES(attempts), negative=VALUES(negative), checked_at=VALUES(checked_at);
`
	raw, err := json.Marshal(e.Result)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, e.TaxID, raw, e.Attempts, e.Negative, e.CheckedAt.UTC())
	return err
}
