package audit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/pdaudit/internal/application"
	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
	domain "github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/domain/compliance"
	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
	"github.com/bryanwahyu/pdaudit/internal/infra/ai/prompt"
	"github.com/bryanwahyu/pdaudit/internal/infra/fetch"
	"github.com/bryanwahyu/pdaudit/internal/infra/metrics"
)

var (
	// ErrInvalidURL is returned before any network call for a malformed or unsafe target.
	ErrInvalidURL = errors.New("invalid or unsafe url")
	// ErrSiteUnreachable wraps the fetch failure when the target could not be loaded at all.
	ErrSiteUnreachable = errors.New("site unreachable")
)

// SnapshotFetcher acquires the page, rendering it when needed.
type SnapshotFetcher interface {
	SmartFetch(ctx context.Context, url string) domain.Snapshot
}

// Analyzer is the language-model orchestrator.
type Analyzer interface {
	Analyze(ctx context.Context, url string, bundle domain.EvidenceBundle, findings []domain.Finding, mode ai.Mode) *domain.AIResult
}

// Service implements the audit use-cases. Optional collaborators may be nil:
// Registry, AI, Hosting, Crawler, Reports, Archive, Metrics.
// Service is safe for concurrent use.
type Service struct {
	Fetcher  SnapshotFetcher
	Probe    fetch.PageFetcher
	Checker  *compliance.Checker
	Registry registry.Checker
	AI       Analyzer
	Hosting  domain.HostingClassifier
	Crawler  Crawler
	Reports  domain.ReportRepository
	Archive  domain.ReportArchive
	Metrics  *metrics.Metrics
	Log      *logrus.Entry
	Clock    application.Clock

	DefaultAIMode ai.Mode
	// ValidateURL defaults to fetch.ValidateURL.
	ValidateURL func(string) (*url.URL, error)
}

// Options of one audit run.
type Options struct {
	Level2     bool
	AIMode     ai.Mode
	OnProgress ProgressFunc
}

// SiteStatus answers CheckWebsiteExists.
type SiteStatus struct {
	Exists     bool   `json:"exists"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) validate(raw string) (*url.URL, error) {
	v := s.ValidateURL
	if v == nil {
		v = fetch.ValidateURL
	}
	u, err := v(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return u, nil
}

// RunAudit runs the whole pipeline. It fails only for an invalid target or
// when the site cannot be fetched; every later stage degrades instead.
func (s *Service) RunAudit(ctx context.Context, rawURL string, opts Options) (*domain.Report, error) {
	return s.run(ctx, rawURL, opts, kindOf(opts))
}

// RunExpressAudit is RunAudit without registry lookup and AI analysis.
func (s *Service) RunExpressAudit(ctx context.Context, rawURL string, onProgress ProgressFunc) (*domain.Report, error) {
	return s.run(ctx, rawURL, Options{OnProgress: onProgress}, "express")
}

func kindOf(opts Options) string {
	if opts.Level2 {
		return "full"
	}
	return "basic"
}

func (s *Service) run(ctx context.Context, rawURL string, opts Options, kind string) (*domain.Report, error) {
	u, err := s.validate(rawURL)
	if err != nil {
		s.Metrics.IncAudit(kind, "invalid_url")
		return nil, err
	}
	target := u.String()
	log := s.Log.WithFields(logrus.Fields{"url": target, "kind": kind})

	progress := newReporter(opts.OnProgress, log)
	defer progress.close()
	progress.report(StageStarted)

	started := s.now()
	report := &domain.Report{ID: uuid.NewString(), URL: target, Level2: opts.Level2, StartedAt: started}

	t := time.Now()
	snap := s.Fetcher.SmartFetch(ctx, target)
	s.Metrics.ObserveStage("fetch", time.Since(t))
	if snap.Failed() {
		s.Metrics.IncAudit(kind, "unreachable")
		log.WithField("error", snap.Error).Warn("site unreachable")
		return nil, fmt.Errorf("%w: %s", ErrSiteUnreachable, snap.Error)
	}
	report.Snapshot = snap
	progress.report(StageFetched)

	t = time.Now()
	page := compliance.ParsePage(snap)
	report.Findings = s.Checker.RunPage(page)
	s.Metrics.ObserveStage("checks", time.Since(t))
	progress.report(StageChecked)

	report.Evidence = domain.Bundle(report.Findings, snap.URL)
	progress.report(StageBundled)

	t = time.Now()
	s.enrich(ctx, report, page, u.Hostname(), opts, log)
	s.Metrics.ObserveStage("enrich", time.Since(t))
	progress.report(StageEnriched)

	// AI findings stay in report.AI; the score covers deterministic checks only
	report.Score = domain.Score(report.Findings)
	report.Brief = domain.ComposeBrief(domain.BriefInput{
		URL:      target,
		Findings: report.Findings,
		Score:    report.Score,
		Registry: report.Registry,
		Hosting:  report.Hosting,
	})
	switch {
	case report.AI == nil:
		report.AISummary = prompt.FallbackSummary("", report.Findings)
	case report.AI.Unavailable || report.AI.Summary == "":
		// keep the orchestrator's reason, e.g. missing credentials
		report.AISummary = prompt.FallbackSummary(report.AI.Summary, report.Findings)
	default:
		report.AISummary = report.AI.Summary
	}
	progress.report(StageScored)

	report.FinishedAt = s.now()
	s.persist(ctx, report, log)
	progress.report(StageDone)

	s.Metrics.IncAudit(kind, "ok")
	log.WithFields(logrus.Fields{
		"percent":  report.Brief.Score.Percent,
		"severity": report.Brief.Score.Severity,
		"rendered": snap.Rendered,
	}).Info("audit complete")
	return report, nil
}

// enrich runs the independent lookups concurrently. None of them can fail
// the audit.
func (s *Service) enrich(ctx context.Context, report *domain.Report, page *compliance.Page, host string, opts Options, log *logrus.Entry) {
	var g errgroup.Group

	if s.Hosting != nil {
		g.Go(guard(log, "hosting", func() {
			info := s.Hosting.Classify(ctx, host)
			report.Hosting = &info
		}))
	}
	if opts.Level2 && s.Registry != nil {
		g.Go(guard(log, "registry", func() {
			report.Registry = s.lookupOperator(ctx, page)
		}))
	}
	if opts.Level2 && s.AI != nil {
		mode := opts.AIMode
		if mode == "" {
			mode = s.DefaultAIMode
		}
		g.Go(guard(log, "ai", func() {
			report.AI = s.AI.Analyze(ctx, report.URL, report.Evidence, report.Findings, ai.ParseMode(string(mode)))
		}))
	}
	_ = g.Wait()
}

// lookupOperator finds the tax id on the page and checks the registry.
func (s *Service) lookupOperator(ctx context.Context, page *compliance.Page) *registry.Result {
	id, ok := registry.ExtractTaxID(page.PlainText())
	if !ok {
		return &registry.Result{
			Confidence: registry.ConfidenceNone,
			Details:    "tax id not found on the page",
			CheckedAt:  s.now(),
		}
	}
	res := s.Registry.Check(ctx, id)
	if res.CompanyName == "" {
		if name, ok := registry.ExtractCompanyName(page.PlainText()); ok {
			res.CompanyName = name
		}
	}
	return &res
}

func (s *Service) persist(ctx context.Context, report *domain.Report, log *logrus.Entry) {
	if s.Archive != nil {
		link, err := s.Archive.Archive(ctx, report)
		if err != nil {
			log.WithError(err).Warn("report archive failed")
		} else {
			report.ArchiveURL = link
		}
	}
	if s.Reports != nil {
		if err := s.Reports.Save(ctx, report); err != nil {
			log.WithError(err).Warn("report save failed")
		}
	}
}

// guard turns a panic in an enrichment step into a log line.
func guard(log *logrus.Entry, stage string, fn func()) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("stage", stage).Errorf("enrichment panicked: %v", r)
			}
		}()
		fn()
		return nil
	}
}

// CheckWebsiteExists probes the target with a single static request.
func (s *Service) CheckWebsiteExists(ctx context.Context, rawURL string) SiteStatus {
	u, err := s.validate(rawURL)
	if err != nil {
		return SiteStatus{Error: err.Error()}
	}
	snap := s.Probe.Fetch(ctx, u.String(), fetch.StaticTimeout)
	if snap.Failed() {
		return SiteStatus{Error: snap.Error}
	}
	if snap.StatusCode >= 500 {
		return SiteStatus{StatusCode: snap.StatusCode, Error: fmt.Sprintf("server answered %d", snap.StatusCode)}
	}
	return SiteStatus{Exists: true, StatusCode: snap.StatusCode}
}

// GetReport loads a stored report.
func (s *Service) GetReport(ctx context.Context, id string) (*domain.Report, error) {
	if s.Reports == nil {
		return nil, domain.ErrReportNotFound
	}
	return s.Reports.Get(ctx, id)
}

// ListReports pages through stored reports, newest first.
func (s *Service) ListReports(ctx context.Context, host string, page, pageSize int) (domain.PaginatedReports, error) {
	if s.Reports == nil {
		return domain.PaginatedReports{Data: []domain.ReportSummary{}, Page: 1, PageSize: pageSize}, nil
	}
	return s.Reports.Paginate(ctx, host, page, pageSize)
}
