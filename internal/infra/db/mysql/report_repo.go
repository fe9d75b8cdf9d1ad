package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository { return &ReportRepository{db: db} }

// Save insert/update report record
func (r *ReportRepository) Save(ctx context.Context, rep *audit.Report) error {
	const q = `
INSERT INTO audit_reports
  (id, url, host, level2, percent, severity, failed, report_json, created_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  percent=VALUES(percent), severity=VALUES(severity), failed=VALUES(failed), report_json=VALUES(report_json);
`
	raw, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	created := rep.FinishedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = r.db.ExecContext(ctx, q,
		rep.ID, rep.URL, hostOf(rep.URL), rep.Level2,
		rep.Brief.Score.Percent, string(rep.Brief.Score.Severity), rep.Score.Failed,
		raw, created.UTC(),
	)
	return err
}

func (r *ReportRepository) Get(ctx context.Context, id string) (*audit.Report, error) {
	const q = `SELECT report_json FROM audit_reports WHERE id=? LIMIT 1;`
	var raw []byte
	err := r.db.QueryRowContext(ctx, q, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, audit.ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	var rep audit.Report
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &rep, nil
}

// Paginate with offset + limit, newest first
func (r *ReportRepository) Paginate(ctx context.Context, host string, page, pageSize int) (audit.PaginatedReports, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	where, args := "", []any{}
	if host != "" {
		where = " WHERE host = ?"
		args = append(args, host)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_reports"+where, args...).Scan(&total); err != nil {
		return audit.PaginatedReports{}, fmt.Errorf("counting reports: %w", err)
	}

	q := `
SELECT id, url, host, level2, percent, severity, failed, created_at
FROM audit_reports` + where + `
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;`
	rows, err := r.db.QueryContext(ctx, q, append(args, pageSize, offset)...)
	if err != nil {
		return audit.PaginatedReports{}, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	out := []audit.ReportSummary{}
	for rows.Next() {
		var s audit.ReportSummary
		if err := rows.Scan(&s.ID, &s.URL, &s.Host, &s.Level2, &s.Percent, &s.Severity, &s.Failed, &s.CreatedAt); err != nil {
			return audit.PaginatedReports{}, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return audit.PaginatedReports{}, fmt.Errorf("iterating rows: %w", err)
	}
	return audit.PaginatedReports{
		Data:       out,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}
