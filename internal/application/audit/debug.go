package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/domain/compliance"
	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
	"github.com/bryanwahyu/pdaudit/internal/infra/crawler"
)

// Crawler walks a site within budgets.
type Crawler interface {
	Crawl(ctx context.Context, root string, opts crawler.Options) (crawler.Result, error)
}

// DebugOptions bound a diagnostic crawl. Zero values take the crawler defaults.
type DebugOptions struct {
	MaxPages   int           `json:"max_pages"`
	DepthLimit int           `json:"depth_limit"`
	Timeout    time.Duration `json:"timeout"`
}

// DebugPage is one crawled page with its own check results.
type DebugPage struct {
	URL        string           `json:"url"`
	Depth      int              `json:"depth"`
	Source     string           `json:"source"`
	StatusCode int              `json:"status_code"`
	Error      string           `json:"error,omitempty"`
	Findings   []domain.Finding `json:"findings,omitempty"`
}

// CheckSummary merges one check across all crawled pages; the best status wins.
type CheckSummary struct {
	CheckID     string        `json:"check_id"`
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	Status      domain.Status `json:"status"`
	FoundOn     string        `json:"found_on,omitempty"`
	Evidence    []string      `json:"evidence,omitempty"`
	PagesPassed int           `json:"pages_passed"`
	PagesTotal  int           `json:"pages_total"`
}

// DebugStats describes the crawl itself.
type DebugStats struct {
	crawler.Stats
	ChecksRun int `json:"checks_run"`
}

// DebugReport is the diagnostic multi-page result.
type DebugReport struct {
	URL    string           `json:"url"`
	Pages  []DebugPage      `json:"pages"`
	Checks []CheckSummary   `json:"checks"`
	RKN    *registry.Result `json:"rkn,omitempty"`
	Stats  DebugStats       `json:"debug_stats"`
}

var errNoCrawler = errors.New("crawler not configured")

// RunDebugAudit crawls the site and runs the rule checks on every page.
// It fails when the root page cannot be fetched.
func (s *Service) RunDebugAudit(ctx context.Context, rawURL string, opts DebugOptions) (*DebugReport, error) {
	u, err := s.validate(rawURL)
	if err != nil {
		s.Metrics.IncAudit("debug", "invalid_url")
		return nil, err
	}
	if s.Crawler == nil {
		return nil, errNoCrawler
	}
	log := s.Log.WithFields(logrus.Fields{"url": u.String(), "kind": "debug"})

	t := time.Now()
	res, err := s.Crawler.Crawl(ctx, u.String(), crawler.Options{
		MaxPages:   opts.MaxPages,
		DepthLimit: opts.DepthLimit,
		Timeout:    opts.Timeout,
	})
	s.Metrics.ObserveStage("crawl", time.Since(t))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if res.Stats.StopReason == crawler.StopRootFailed || len(res.Pages) == 0 {
		s.Metrics.IncAudit("debug", "unreachable")
		cause := "no pages fetched"
		if len(res.Pages) > 0 {
			cause = res.Pages[0].Snapshot.Error
		}
		return nil, fmt.Errorf("%w: %s", ErrSiteUnreachable, cause)
	}

	report := &DebugReport{URL: u.String(), Stats: DebugStats{Stats: res.Stats}}
	agg := newCheckAggregator()
	var taxID string

	for _, p := range res.Pages {
		dp := DebugPage{URL: p.URL, Depth: p.Depth, Source: p.Source, StatusCode: p.Snapshot.StatusCode, Error: p.Snapshot.Error}
		if !p.Snapshot.Failed() {
			page := compliance.ParsePage(p.Snapshot)
			dp.Findings = s.Checker.RunPage(page)
			report.Stats.ChecksRun += len(dp.Findings)
			agg.add(p.URL, dp.Findings)
			if taxID == "" {
				taxID, _ = registry.ExtractTaxID(page.PlainText())
			}
		}
		report.Pages = append(report.Pages, dp)
	}
	report.Checks = agg.summaries()

	if s.Registry != nil {
		if taxID != "" {
			r := s.Registry.Check(ctx, taxID)
			report.RKN = &r
		} else {
			report.RKN = &registry.Result{Confidence: registry.ConfidenceNone, Details: "tax id not found on any crawled page", CheckedAt: s.now()}
		}
	}

	s.Metrics.IncAudit("debug", "ok")
	log.WithFields(logrus.Fields{
		"pages":       len(report.Pages),
		"stop_reason": res.Stats.StopReason,
	}).Info("debug audit complete")
	return report, nil
}

type checkAggregator struct {
	order []string
	byID  map[string]*CheckSummary
}

func newCheckAggregator() *checkAggregator {
	return &checkAggregator{byID: map[string]*CheckSummary{}}
}

func (a *checkAggregator) add(pageURL string, findings []domain.Finding) {
	seen := map[string]bool{}
	for _, f := range findings {
		sum, ok := a.byID[f.CheckID]
		if !ok {
			sum = &CheckSummary{CheckID: f.CheckID, Name: f.Name, Category: f.Category, Status: domain.StatusFailed}
			a.byID[f.CheckID] = sum
			a.order = append(a.order, f.CheckID)
		}
		// a check may emit several findings on one page; count the page once
		if !seen[f.CheckID] {
			seen[f.CheckID] = true
			sum.PagesTotal++
			if f.Status == domain.StatusPassed {
				sum.PagesPassed++
			}
		}
		if sum.FoundOn == "" || statusRank(f.Status) < statusRank(sum.Status) {
			sum.Status = f.Status
			sum.FoundOn = pageURL
			sum.Evidence = f.Evidence
		}
	}
}

func (a *checkAggregator) summaries() []CheckSummary {
	out := make([]CheckSummary, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.byID[id])
	}
	return out
}

func statusRank(s domain.Status) int {
	switch s {
	case domain.StatusPassed:
		return 0
	case domain.StatusWarning:
		return 1
	default:
		return 2
	}
}
