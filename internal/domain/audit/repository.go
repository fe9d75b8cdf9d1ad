package audit

import (
	"context"
	"errors"
	"time"
)

// ErrReportNotFound is returned by a ReportRepository for an unknown id.
var ErrReportNotFound = errors.New("report not found")

// ReportSummary is the list view of a stored report.
type ReportSummary struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Host      string    `json:"host"`
	Level2    bool      `json:"level2"`
	Percent   int       `json:"percent"`
	Severity  Severity  `json:"severity"`
	Failed    int       `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
}

// PaginatedReports is one page of report summaries.
type PaginatedReports struct {
	Data       []ReportSummary `json:"data"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	Total      int64           `json:"totalItems"`
	TotalPages int             `json:"totalPages"`
}

// ReportRepository persists finished reports. Host filters by exact host when
// not empty.
type ReportRepository interface {
	Save(ctx context.Context, r *Report) error
	Get(ctx context.Context, id string) (*Report, error)
	Paginate(ctx context.Context, host string, page, pageSize int) (PaginatedReports, error)
}

// Summarize builds the list view of r.
func Summarize(r *Report, host string) ReportSummary {
	return ReportSummary{
		ID:        r.ID,
		URL:       r.URL,
		Host:      host,
		Level2:    r.Level2,
		Percent:   r.Brief.Score.Percent,
		Severity:  r.Brief.Score.Severity,
		Failed:    r.Score.Failed,
		CreatedAt: r.FinishedAt,
	}
}
