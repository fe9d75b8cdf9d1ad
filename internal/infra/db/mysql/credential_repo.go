package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
	"github.com/bryanwahyu/pdaudit/internal/infra/secrets"
)

// CredentialRepository keeps provider secrets encrypted at rest.
type CredentialRepository struct {
	db  *sql.DB
	box *secrets.Box
}

func NewCredentialRepository(db *sql.DB, box *secrets.Box) *CredentialRepository {
	return &CredentialRepository{db: db, box: box}
}

func (r *CredentialRepository) GetDecryptedCredential(ctx context.Context, provider string) (string, error) {
	const q = `SELECT ciphertext FROM ai_credentials WHERE provider=? LIMIT 1;`
	var ct string
	err := r.db.QueryRowContext(ctx, q, provider).Scan(&ct)
	if errors.Is(err, sql.ErrNoRows) {
		return "", registry.ErrCredentialNotFound
	}
	if err != nil {
		return "", err
	}
	return r.box.Open(ct)
}

func (r *CredentialRepository) SaveCredential(ctx context.Context, provider, plaintext string) error {
	const q = `
INSERT INTO ai_credentials (provider, ciphertext, updated_at)
VALUES (?,?,?)
ON DUPLICATE KEY UPDATE ciphertext=VALUES(ciphertext), updated_at=VALUES(updated_at);
`
	ct, err := r.box.Seal(plaintext)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, provider, ct, time.Now().UTC())
	return err
}

// Store is the registry.Store backed by MySQL.
type Store struct {
	*RegistryRepository
	*CredentialRepository
}

func NewStore(db *sql.DB, box *secrets.Box) *Store {
	return &Store{
		RegistryRepository:   NewRegistryRepository(db),
		CredentialRepository: NewCredentialRepository(db, box),
	}
}
