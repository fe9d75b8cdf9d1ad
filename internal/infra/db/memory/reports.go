package memory

import (
	"context"
	"math"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

// Reports is an in-process audit.ReportRepository.
type Reports struct {
	mu      sync.RWMutex
	reports map[string]audit.Report
}

func NewReports() *Reports {
	return &Reports{reports: make(map[string]audit.Report)}
}

func (s *Reports) Save(_ context.Context, r *audit.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = *r
	return nil
}

func (s *Reports) Get(_ context.Context, id string) (*audit.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, audit.ErrReportNotFound
	}
	return &r, nil
}

func (s *Reports) Paginate(_ context.Context, host string, page, pageSize int) (audit.PaginatedReports, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	s.mu.RLock()
	all := make([]audit.ReportSummary, 0, len(s.reports))
	for i := range s.reports {
		r := s.reports[i]
		h := hostOf(r.URL)
		if host != "" && h != host {
			continue
		}
		all = append(all, audit.Summarize(&r, h))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	res := audit.PaginatedReports{
		Data:       []audit.ReportSummary{},
		Page:       page,
		PageSize:   pageSize,
		Total:      int64(len(all)),
		TotalPages: int(math.Ceil(float64(len(all)) / float64(pageSize))),
	}
	if start := (page - 1) * pageSize; start < len(all) {
		end := min(start+pageSize, len(all))
		res.Data = all[start:end]
	}
	return res, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
