package rkn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
	"github.com/bryanwahyu/pdaudit/internal/infra/metrics"
)

const (
	DefaultBaseURL        = "https://pd.rkn.gov.ru/operators-registry/operators-list/"
	DefaultAttempts       = 5
	DefaultDelay          = 2 * time.Second
	DefaultAttemptTimeout = 10 * time.Second

	maxPageBytes = 4 << 20
)

var errBotWall = errors.New("registry answered with a bot check page")

// Config tunes the retry policy. Zero values take the defaults; a negative
// Delay disables the pause between attempts.
type Config struct {
	BaseURL        string
	Attempts       int
	Delay          time.Duration
	AttemptTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.Delay < 0 {
		c.Delay = 0
	} else if c.Delay == 0 {
		c.Delay = DefaultDelay
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
}

// Checker looks operators up in the public registry of personal data
// operators, caching every outcome in a registry.Store.
type Checker struct {
	log     *logrus.Entry
	cfg     Config
	store   registry.Store
	client  *http.Client
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Checker)

func WithHTTPClient(c *http.Client) Option { return func(ch *Checker) { ch.client = c } }

func WithClock(now func() time.Time) Option { return func(ch *Checker) { ch.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(ch *Checker) { ch.metrics = m } }

// New accepts a nil store; lookups then always go to the network.
func New(log *logrus.Entry, store registry.Store, cfg Config, opts ...Option) *Checker {
	cfg.applyDefaults()
	c := &Checker{
		log:    log,
		cfg:    cfg,
		store:  store,
		client: &http.Client{},
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ManualCheckURL is the registry search link for a human to follow.
func (c *Checker) ManualCheckURL(taxID string) string {
	return c.cfg.BaseURL + "?" + url.Values{"inn": {taxID}}.Encode()
}

// Check never fails; problems are reported through Result.Error and
// ConfidenceNone.
func (c *Checker) Check(ctx context.Context, taxID string) registry.Result {
	id := registry.NormalizeTaxID(taxID)
	log := c.log.WithField("tax_id", id)
	if !registry.ValidTaxID(id) {
		return registry.Result{
			TaxID:      id,
			Confidence: registry.ConfidenceNone,
			Details:    "The tax identifier must contain 10 or 12 digits.",
			Error:      "invalid tax id",
			CheckedAt:  c.now(),
		}
	}

	if res, ok := c.cached(ctx, id, log); ok {
		return res
	}

	res := c.lookup(ctx, id, log)
	// negative entries only after every attempt ran to completion
	if res.Confidence == registry.ConfidenceNone && (ctx.Err() != nil || res.Attempts < c.cfg.Attempts) {
		log.WithField("attempts", res.Attempts).Debug("registry lookup interrupted, result not cached")
		return res
	}
	c.save(context.WithoutCancel(ctx), res, log)
	return res
}

func (c *Checker) cached(ctx context.Context, id string, log *logrus.Entry) (registry.Result, bool) {
	if c.store == nil {
		return registry.Result{}, false
	}
	entry, err := c.store.GetCachedRegistryEntry(ctx, id)
	if err != nil {
		if !errors.Is(err, registry.ErrCacheMiss) {
			log.WithError(err).Warn("registry cache read failed")
		}
		c.metrics.IncRegistryCache("miss")
		return registry.Result{}, false
	}
	if entry == nil || entry.Expired(c.now()) {
		c.metrics.IncRegistryCache("expired")
		return registry.Result{}, false
	}
	c.metrics.IncRegistryCache("hit")
	res := entry.Result
	res.FromCache = true
	return res, true
}

func (c *Checker) save(ctx context.Context, res registry.Result, log *logrus.Entry) {
	if c.store == nil {
		return
	}
	entry := &registry.CacheEntry{
		TaxID:     res.TaxID,
		Result:    res,
		Attempts:  res.Attempts,
		Negative:  res.Confidence == registry.ConfidenceNone,
		CheckedAt: res.CheckedAt,
	}
	if err := c.store.SaveCachedRegistryEntry(ctx, entry); err != nil {
		log.WithError(err).Warn("registry cache write failed")
	}
}

// lookup runs the attempts strictly one after another.
func (c *Checker) lookup(ctx context.Context, id string, log *logrus.Entry) registry.Result {
	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.cfg.Delay); err != nil {
				lastErr = err
				break
			}
		}
		attempts = attempt
		page, err := c.fetch(ctx, id)
		if err == nil {
			c.metrics.IncRegistryAttempt("ok")
			res := parse(page, id)
			res.Attempts = attempt
			res.ManualCheckURL = c.ManualCheckURL(id)
			res.CheckedAt = c.now()
			log.WithFields(logrus.Fields{
				"attempt":    attempt,
				"registered": res.IsRegistered,
				"confidence": res.Confidence,
			}).Info("registry lookup done")
			return res
		}
		c.metrics.IncRegistryAttempt("error")
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("registry attempt failed")
	}

	return registry.Result{
		TaxID:          id,
		Confidence:     registry.ConfidenceNone,
		Details:        "The registry could not be reached. Check the operator manually.",
		Error:          lastErr.Error(),
		ManualCheckURL: c.ManualCheckURL(id),
		Attempts:       attempts,
		CheckedAt:      c.now(),
	}
}

func (c *Checker) fetch(ctx context.Context, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ManualCheckURL(id), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("registry returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("registry read: %w", err)
	}
	page := string(body)
	if isBotWall(page) {
		return "", errBotWall
	}
	return page, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
