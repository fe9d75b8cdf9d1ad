package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS registry_cache (
  tax_id      VARCHAR(12) PRIMARY KEY,
  result_json JSONB       NOT NULL,
  attempts    INT         NOT NULL DEFAULT 0,
  negative    BOOLEAN     NOT NULL DEFAULT FALSE,
  checked_at  TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS ai_credentials (
  provider   VARCHAR(32) PRIMARY KEY,
  ciphertext TEXT        NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS audit_reports (
  id          UUID        PRIMARY KEY,
  url         TEXT        NOT NULL,
  host        TEXT        NOT NULL,
  level2      BOOLEAN     NOT NULL DEFAULT FALSE,
  percent     INT         NOT NULL,
  severity    VARCHAR(16) NOT NULL,
  failed      INT         NOT NULL,
  report_json JSONB       NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_host_created ON audit_reports (host, created_at DESC)`,
}

// Migrate creates the tables used by the service when they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "-"
	}
	return stringOrDash(strings.ToLower(u.Hostname()))
}
