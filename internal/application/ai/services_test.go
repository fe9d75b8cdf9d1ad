package ai

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
	"github.com/bryanwahyu/pdaudit/internal/infra/metrics"
)

type fakeBackend struct {
	name       string
	configured bool
	reply      string
	err        error
	delay      time.Duration
	calls      int32
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Configured(context.Context) bool { return f.configured }
func (f *fakeBackend) Complete(ctx context.Context, _, _ string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

const (
	// score 2: short summary, two recommendations
	replyScore2 = `{"summary":"ok","recommendations":["a","b"]}`
	// score 5: long summary, two recommendations, one issue
	replyScore5 = `{"summary":"На сайте нет политики обработки персональных данных.","recommendations":["a","b"],"additional_issues":[{"title":"Нет согласия","severity":"high"}]}`
	// score 0
	replyScore0 = `{"summary":"n/a"}`
)

func newService(backends ...ai.Backend) (*Service, *metrics.Metrics) {
	l, _ := logtest.NewNullLogger()
	m := metrics.New(prometheus.NewRegistry())
	return NewService(logrus.NewEntry(l), m, backends...), m
}

func analyze(s *Service, mode ai.Mode) *audit.AIResult {
	return s.Analyze(context.Background(), "https://example.ru", audit.EvidenceBundle{}, nil, mode)
}

func TestRace_PicksHighestScoreAfterAllSettle(t *testing.T) {
	a := &fakeBackend{name: "openai", configured: true, reply: replyScore2}
	b := &fakeBackend{name: "gigachat", configured: true, reply: replyScore5, delay: 50 * time.Millisecond}
	c := &fakeBackend{name: "yandexgpt", configured: true, reply: replyScore0}
	s, _ := newService(a, b, c)

	res := analyze(s, ai.ModeRace)
	require.NotNil(t, res)
	assert.Equal(t, "gigachat", res.Provider)
	assert.Equal(t, 5, res.Score())
	assert.False(t, res.Unavailable)
}

func TestRace_ToleratesPartialFailure(t *testing.T) {
	a := &fakeBackend{name: "openai", configured: true, err: errors.New("boom")}
	b := &fakeBackend{name: "gigachat", configured: false}
	c := &fakeBackend{name: "yandexgpt", configured: true, reply: replyScore2, delay: 20 * time.Millisecond}
	s, m := newService(a, b, c)

	res := analyze(s, ai.ModeRace)
	assert.Equal(t, "yandexgpt", res.Provider)
	assert.Zero(t, atomic.LoadInt32(&b.calls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AIBackendCalls.WithLabelValues("gigachat", "missing_credentials")))
}

func TestRace_AllFailDegrades(t *testing.T) {
	s, _ := newService(
		&fakeBackend{name: "openai", configured: true, err: ai.ErrQuotaExceeded},
		&fakeBackend{name: "gigachat", configured: true, reply: "no json at all"},
		&fakeBackend{name: "yandexgpt", configured: true, reply: ""},
	)
	res := analyze(s, ai.ModeRace)
	require.NotNil(t, res)
	assert.True(t, res.Unavailable)
	assert.Equal(t, unavailableSummary, res.Summary)
	assert.Empty(t, res.Recommendations)
}

func TestSingle_MissingCredentialsSkipsNetwork(t *testing.T) {
	a := &fakeBackend{name: "openai", configured: false}
	s, _ := newService(a)

	res := analyze(s, ai.ModeSingle)
	assert.True(t, res.Unavailable)
	assert.Contains(t, res.Summary, "openai")
	assert.Zero(t, atomic.LoadInt32(&a.calls))
}

func TestSingle_UsesPrimaryOnly(t *testing.T) {
	a := &fakeBackend{name: "openai", configured: true, reply: replyScore2}
	b := &fakeBackend{name: "gigachat", configured: true, reply: replyScore5}
	s, _ := newService(a, b)

	res := analyze(s, ai.ModeSingle)
	assert.Equal(t, "openai", res.Provider)
	assert.Zero(t, atomic.LoadInt32(&b.calls))
}

func TestFallback(t *testing.T) {
	t.Run("second backend answers after first fails", func(t *testing.T) {
		a := &fakeBackend{name: "gigachat", configured: true, reply: "Извините, не могу."}
		b := &fakeBackend{name: "openai", configured: true, reply: replyScore2}
		s, _ := newService(a, b)
		res := analyze(s, ai.ModeFallback)
		assert.Equal(t, "openai", res.Provider)
		assert.Equal(t, int32(1), atomic.LoadInt32(&a.calls))
	})

	t.Run("first success wins", func(t *testing.T) {
		a := &fakeBackend{name: "gigachat", configured: true, reply: replyScore0}
		b := &fakeBackend{name: "openai", configured: true, reply: replyScore5}
		s, _ := newService(a, b)
		res := analyze(s, ai.ModeFallback)
		assert.Equal(t, "gigachat", res.Provider)
		assert.Zero(t, atomic.LoadInt32(&b.calls))
	})

	t.Run("both fail", func(t *testing.T) {
		s, _ := newService(
			&fakeBackend{name: "gigachat", configured: false},
			&fakeBackend{name: "openai", configured: true, err: errors.New("dial tcp: refused")},
		)
		assert.True(t, analyze(s, ai.ModeFallback).Unavailable)
	})
}

func TestAnalyze_NoBackends(t *testing.T) {
	s, _ := newService()
	assert.True(t, analyze(s, ai.ModeRace).Unavailable)
}
