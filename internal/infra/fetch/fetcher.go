package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

const (
	StaticTimeout = 15 * time.Second
	RenderTimeout = 30 * time.Second
	MaxBodyBytes  = 2 << 20

	maxRedirects = 5
	userAgent    = "Mozilla/5.0 (compatible; pdaudit/1.0; +https://pdaudit.ru/bot)"
)

// Fetcher downloads one page under the network safety policy. It is safe for
// concurrent use.
type Fetcher struct {
	log          *logrus.Entry
	client       *http.Client
	insecure     *http.Client
	allowPrivate bool
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// AllowPrivateNetworks disables the address policy. Only for tests against
// local listeners.
func AllowPrivateNetworks() Option {
	return func(f *Fetcher) { f.allowPrivate = true }
}

// New builds a Fetcher with its own transport.
func New(log *logrus.Entry, opts ...Option) *Fetcher {
	f := &Fetcher{log: log}
	for _, o := range opts {
		o(f)
	}
	f.client = f.newClient(false)
	f.insecure = f.newClient(true)
	return f
}

func (f *Fetcher) newClient(skipVerify bool) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if !f.allowPrivate {
		dialer.Control = dialGuard
	}
	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: skipVerify}, //nolint:gosec // only used to describe a broken certificate
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyHops
			}
			_, err := validateURL(req.URL.String(), f.allowPrivate)
			return err
		},
	}
}

// Fetch never returns an error; every failure is reported in Snapshot.Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) audit.Snapshot {
	snap := audit.Snapshot{URL: rawURL, Headers: map[string]string{}}
	u, err := validateURL(rawURL, f.allowPrivate)
	if err != nil {
		snap.Error = err.Error()
		return snap
	}
	snap.URL = u.String()
	if timeout <= 0 {
		timeout = StaticTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, verified, err := f.do(ctx, u.String())
	if err != nil {
		snap.Error = describe(err)
		snap.ResponseTimeMS = time.Since(start).Milliseconds()
		f.log.WithFields(logrus.Fields{"url": snap.URL, "error": snap.Error}).Debug("fetch failed")
		return snap
	}
	defer resp.Body.Close()

	body, truncated, err := readCapped(resp.Body, MaxBodyBytes)
	snap.ResponseTimeMS = time.Since(start).Milliseconds()
	if err != nil && len(body) == 0 {
		snap.Error = describe(err)
		return snap
	}

	snap.URL = resp.Request.URL.String()
	snap.StatusCode = resp.StatusCode
	snap.HTML = string(body)
	snap.Truncated = truncated
	for k, v := range resp.Header {
		snap.Headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	if resp.Request.URL.Scheme == "https" {
		snap.TLS = tlsInfo(resp.TLS, verified)
	}

	f.log.WithFields(logrus.Fields{
		"url":       snap.URL,
		"status":    snap.StatusCode,
		"bytes":     len(body),
		"truncated": truncated,
		"ms":        snap.ResponseTimeMS,
	}).Debug("fetched")
	return snap
}

// do retries once without verification when the only problem is the
// certificate, so the TLS check can report it instead of the site looking down.
func (f *Fetcher) do(ctx context.Context, target string) (*http.Response, bool, error) {
	resp, err := f.get(ctx, f.client, target)
	if err == nil {
		return resp, true, nil
	}
	var certErr *tls.CertificateVerificationError
	if !errors.As(err, &certErr) {
		return nil, false, err
	}
	resp, err = f.get(ctx, f.insecure, target)
	if err != nil {
		return nil, false, err
	}
	return resp, false, nil
}

func (f *Fetcher) get(ctx context.Context, c *http.Client, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.7")
	return c.Do(req)
}

// readCapped reads at most limit bytes. Hitting the cap is not an error.
func readCapped(r io.Reader, limit int64) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, err
}

func tlsInfo(state *tls.ConnectionState, verified bool) *audit.TLSInfo {
	if state == nil || len(state.PeerCertificates) == 0 {
		return &audit.TLSInfo{Valid: true}
	}
	leaf := state.PeerCertificates[0]
	issuer := leaf.Issuer.CommonName
	if issuer == "" && len(leaf.Issuer.Organization) > 0 {
		issuer = leaf.Issuer.Organization[0]
	}
	return &audit.TLSInfo{
		Valid:    verified && time.Now().Before(leaf.NotAfter),
		Issuer:   issuer,
		Expires:  leaf.NotAfter,
		Protocol: tls.VersionName(state.Version),
	}
}

func describe(err error) string {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, ErrUnsafeHost):
		return ErrUnsafeHost.Error()
	case errors.Is(err, errTooManyHops):
		return errTooManyHops.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		return fmt.Sprintf("dns lookup failed for %s", dnsErr.Name)
	default:
		return err.Error()
	}
}
