package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/infra/ai/prompt"
	"github.com/bryanwahyu/pdaudit/internal/infra/metrics"
)

const unavailableSummary = prompt.UnavailableNote

// Service picks one or more language-model backends for an audit. Backends
// are ordered by priority: the first is the single-mode backend, the first
// two form the fallback chain, up to three take part in the race.
type Service struct {
	backends []ai.Backend
	log      *logrus.Entry
	metrics  *metrics.Metrics
}

func NewService(log *logrus.Entry, m *metrics.Metrics, backends ...ai.Backend) *Service {
	return &Service{backends: backends, log: log, metrics: m}
}

// Analyze never fails. When no backend produced a usable reply the result is
// marked Unavailable and carries a neutral summary.
func (s *Service) Analyze(ctx context.Context, url string, bundle audit.EvidenceBundle, findings []audit.Finding, mode ai.Mode) *audit.AIResult {
	system := prompt.GetSystemPrompt()
	user := prompt.GetUserPrompt(url, findings, bundle)
	log := s.log.WithFields(logrus.Fields{"url": url, "mode": mode})

	if len(s.backends) == 0 {
		log.Warn("no ai backends registered")
		return unavailable("")
	}

	switch mode {
	case ai.ModeFallback:
		return s.fallback(ctx, system, user, log)
	case ai.ModeRace:
		return s.race(ctx, system, user, log)
	default:
		return s.single(ctx, system, user, log)
	}
}

func (s *Service) single(ctx context.Context, system, user string, log *logrus.Entry) *audit.AIResult {
	b := s.backends[0]
	if !b.Configured(ctx) {
		s.metrics.IncAIBackend(b.Name(), "missing_credentials")
		log.WithField("provider", b.Name()).Info("ai backend not configured, skipping analysis")
		res := unavailable(b.Name())
		res.Summary = fmt.Sprintf("AI analysis was skipped: no credentials are configured for provider %s.", b.Name())
		return res
	}
	res, err := s.call(ctx, b, system, user, log)
	if err != nil {
		return unavailable(b.Name())
	}
	return &res
}

func (s *Service) fallback(ctx context.Context, system, user string, log *logrus.Entry) *audit.AIResult {
	chain := s.backends
	if len(chain) > 2 {
		chain = chain[:2]
	}
	for _, b := range chain {
		if !b.Configured(ctx) {
			s.metrics.IncAIBackend(b.Name(), "missing_credentials")
			continue
		}
		res, err := s.call(ctx, b, system, user, log)
		if err == nil {
			return &res
		}
	}
	return unavailable("")
}

type raceOutcome struct {
	res audit.AIResult
	err error
}

// race queries every backend and waits for all of them; a fast failure
// never pre-empts a slower success.
func (s *Service) race(ctx context.Context, system, user string, log *logrus.Entry) *audit.AIResult {
	contenders := s.backends
	if len(contenders) > 3 {
		contenders = contenders[:3]
	}
	outcomes := make([]raceOutcome, len(contenders))

	var wg sync.WaitGroup
	for i, b := range contenders {
		wg.Add(1)
		go func(i int, b ai.Backend) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i].err = fmt.Errorf("backend %s panicked: %v", b.Name(), r)
				}
			}()
			if !b.Configured(ctx) {
				s.metrics.IncAIBackend(b.Name(), "missing_credentials")
				outcomes[i].err = ai.ErrMissingCredentials
				return
			}
			outcomes[i].res, outcomes[i].err = s.call(ctx, b, system, user, log)
		}(i, b)
	}
	wg.Wait()

	var best *audit.AIResult
	for i := range outcomes {
		o := &outcomes[i]
		if o.err != nil {
			continue
		}
		// ties keep the earlier, higher-priority backend
		if best == nil || o.res.Score() > best.Score() {
			best = &o.res
		}
	}
	if best == nil {
		log.Warn("all ai backends failed in race mode")
		return unavailable("")
	}
	log.WithFields(logrus.Fields{"provider": best.Provider, "score": best.Score()}).Info("race winner selected")
	return best
}

func (s *Service) call(ctx context.Context, b ai.Backend, system, user string, log *logrus.Entry) (audit.AIResult, error) {
	log = log.WithField("provider", b.Name())
	start := time.Now()
	raw, err := b.Complete(ctx, system, user)
	s.metrics.ObserveStage("ai_"+b.Name(), time.Since(start))
	if err != nil {
		s.metrics.IncAIBackend(b.Name(), outcomeOf(err))
		log.WithError(err).Warn("ai backend call failed")
		return audit.AIResult{}, err
	}
	res, err := prompt.ParseReply(b.Name(), raw)
	if err != nil {
		s.metrics.IncAIBackend(b.Name(), "invalid_reply")
		log.WithError(err).Warn("ai backend reply rejected")
		return audit.AIResult{}, err
	}
	s.metrics.IncAIBackend(b.Name(), "ok")
	log.WithField("score", res.Score()).Debug("ai backend answered")
	return res, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ai.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, ai.ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, ai.ErrEmptyReply):
		return "empty"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func unavailable(provider string) *audit.AIResult {
	return &audit.AIResult{
		Provider:           provider,
		Summary:            unavailableSummary,
		Recommendations:    []string{},
		AdditionalFindings: []audit.Finding{},
		Unavailable:        true,
	}
}
