package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
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
  tax_id      VARCHAR(12)  NOT NULL PRIMARY KEY,
  result_json JSON         NOT NULL,
  attempts    INT          NOT NULL DEFAULT 0,
  negative    TINYINT(1)   NOT NULL DEFAULT 0,
  checked_at  DATETIME(3)  NOT NULL,
  KEY idx_registry_checked (checked_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS ai_credentials (
  provider   VARCHAR(32)  NOT NULL PRIMARY KEY,
  ciphertext TEXT         NOT NULL,
  updated_at DATETIME(3)  NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS audit_reports (
  id          CHAR(36)     NOT NULL PRIMARY KEY,
  url         VARCHAR(2048) NOT NULL,
  host        VARCHAR(255) NOT NULL,
  level2      TINYINT(1)   NOT NULL DEFAULT 0,
  percent     INT          NOT NULL,
  severity    VARCHAR(16)  NOT NULL,
  failed      INT          NOT NULL,
  report_json JSON         NOT NULL,
  created_at  DATETIME(3)  NOT NULL,
  KEY idx_reports_host_created (host, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
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
