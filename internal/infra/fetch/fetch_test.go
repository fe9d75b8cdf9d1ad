package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

func nullLog() *logrus.Entry {
	l, _ := logtest.NewNullLogger()
	return logrus.NewEntry(l)
}

func TestIsUnsafeHost(t *testing.T) {
	for _, h := range []string{"127.0.0.1", "10.0.0.5", "192.168.1.1", "172.20.0.1", "localhost", "LOCALHOST.", "::1", "[fd00::1]", "169.254.169.254", "0.0.0.0", "100.64.1.1", "api.localhost"} {
		assert.True(t, IsUnsafeHost(h), h)
	}
	for _, h := range []string{"8.8.8.8", "example.com", "172.32.0.1", "2a00:1450:4010::8a"} {
		assert.False(t, IsUnsafeHost(h), h)
	}
}

type staticResolver map[string][]string

func (r staticResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func TestCheckResolvedURL(t *testing.T) {
	res := staticResolver{
		"shop.ru":       {"95.213.1.1"},
		"metadata.shop": {"169.254.169.254"},
		"mixed.shop":    {"95.213.1.1", "10.0.0.7"},
		"cdn.shop":      {"2a00:1450:4010::8a"},
	}
	allowed := []string{
		"https://shop.ru/app.js",
		"wss://cdn.shop/socket",
		"http://8.8.8.8/",
		"data:image/png;base64,AAAA",
		"about:blank",
	}
	for _, raw := range allowed {
		assert.NoError(t, CheckResolvedURL(context.Background(), res, raw), raw)
	}

	unsafe := []string{
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.5/admin",
		"http://localhost:8080/",
		"https://metadata.shop/",
		"https://mixed.shop/",
	}
	for _, raw := range unsafe {
		assert.ErrorIs(t, CheckResolvedURL(context.Background(), res, raw), ErrUnsafeHost, raw)
	}

	assert.ErrorIs(t, CheckResolvedURL(context.Background(), res, "file:///etc/passwd"), ErrInvalidURL)
	assert.Error(t, CheckResolvedURL(context.Background(), res, "https://unknown.shop/"))
}

func TestFetch_RejectsBeforeNetwork(t *testing.T) {
	f := New(nullLog())
	cases := map[string]string{
		"http://127.0.0.1:1/":   "local or private",
		"http://localhost/":     "local or private",
		"ftp://example.com/":    "absolute http or https",
		"example.com/no-scheme": "absolute http or https",
	}
	for raw, want := range cases {
		snap := f.Fetch(context.Background(), raw, time.Second)
		assert.True(t, snap.Failed(), raw)
		assert.Contains(t, snap.Error, want, raw)
		assert.Zero(t, snap.StatusCode, raw)
	}
}

func TestFetch_FlattensHeadersAndFollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "pdaudit")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	snap := New(nullLog(), AllowPrivateNetworks()).Fetch(context.Background(), srv.URL+"/start", 5*time.Second)
	require.False(t, snap.Failed(), snap.Error)
	assert.Equal(t, srv.URL+"/final", snap.URL)
	assert.Equal(t, http.StatusOK, snap.StatusCode)
	assert.Equal(t, "DENY", snap.Headers["x-frame-options"])
	assert.Equal(t, "a=1, b=2", snap.Headers["set-cookie"])
	assert.Nil(t, snap.TLS)
	assert.Contains(t, snap.HTML, "ok")
}

func TestFetch_CapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", MaxBodyBytes+4096)))
	}))
	defer srv.Close()

	snap := New(nullLog(), AllowPrivateNetworks()).Fetch(context.Background(), srv.URL, 5*time.Second)
	require.False(t, snap.Failed(), snap.Error)
	assert.True(t, snap.Truncated)
	assert.Len(t, snap.HTML, MaxBodyBytes)
}

func TestFetch_UntrustedCertificateIsReportedNotFatal(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>secure</body></html>"))
	}))
	defer srv.Close()

	snap := New(nullLog(), AllowPrivateNetworks()).Fetch(context.Background(), srv.URL, 5*time.Second)
	require.False(t, snap.Failed(), snap.Error)
	require.NotNil(t, snap.TLS)
	assert.False(t, snap.TLS.Valid)
	assert.NotEmpty(t, snap.TLS.Protocol)
	assert.False(t, snap.TLS.Expires.IsZero())
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	snap := New(nullLog(), AllowPrivateNetworks()).Fetch(context.Background(), srv.URL, 100*time.Millisecond)
	assert.Equal(t, "timeout", snap.Error)
}

func TestIsEmptyShell(t *testing.T) {
	assert.True(t, IsEmptyShell(`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`))
	assert.True(t, IsEmptyShell(`<html><body><p>Loading</p></body></html>`))
	assert.True(t, IsEmptyShell(`<html><body><header>`+strings.Repeat("Menu item ", 20)+`</header><div id="__next"><script>x()</script></div></body></html>`))

	long := strings.Repeat("Обычный текст страницы с информацией о компании. ", 5)
	assert.False(t, IsEmptyShell(`<html><body><div id="app"><p>`+long+`</p></div></body></html>`))
	assert.False(t, IsEmptyShell(`<html><body><main>`+long+`</main><!-- comment --></body></html>`))
}

type fakeFetcher struct{ snap audit.Snapshot }

func (f fakeFetcher) Fetch(context.Context, string, time.Duration) audit.Snapshot { return f.snap }

type fakeRenderer struct {
	calls int
	res   audit.RenderResult
	err   error
	panic bool
}

func (r *fakeRenderer) Render(_ context.Context, _ string, timeout time.Duration) (audit.RenderResult, error) {
	r.calls++
	if r.panic {
		panic("browser crashed")
	}
	if timeout != RenderTimeout {
		return audit.RenderResult{}, errors.New("unexpected timeout")
	}
	return r.res, r.err
}

func TestSmartFetch(t *testing.T) {
	shell := audit.Snapshot{URL: "https://spa.example/", StatusCode: 200, HTML: `<div id="root"></div>`, Headers: map[string]string{"hsts": "x"}}
	full := audit.Snapshot{URL: "https://site.example/", StatusCode: 200, HTML: `<main>` + strings.Repeat("content ", 40) + `</main>`}

	t.Run("renders shell", func(t *testing.T) {
		r := &fakeRenderer{res: audit.RenderResult{HTML: "<main>rendered</main>", StatusCode: 200}}
		snap := NewEscalator(nullLog(), fakeFetcher{shell}, r).SmartFetch(context.Background(), shell.URL)
		assert.Equal(t, 1, r.calls)
		assert.True(t, snap.Rendered)
		assert.Equal(t, "<main>rendered</main>", snap.HTML)
		assert.Equal(t, "x", snap.Headers["hsts"])
	})
	t.Run("keeps static on render error", func(t *testing.T) {
		r := &fakeRenderer{err: errors.New("chrome not found")}
		snap := NewEscalator(nullLog(), fakeFetcher{shell}, r).SmartFetch(context.Background(), shell.URL)
		assert.Equal(t, 1, r.calls)
		assert.False(t, snap.Rendered)
		assert.Equal(t, shell.HTML, snap.HTML)
	})
	t.Run("keeps static on render panic", func(t *testing.T) {
		r := &fakeRenderer{panic: true}
		snap := NewEscalator(nullLog(), fakeFetcher{shell}, r).SmartFetch(context.Background(), shell.URL)
		assert.Equal(t, shell.HTML, snap.HTML)
	})
	t.Run("skips render for full page", func(t *testing.T) {
		r := &fakeRenderer{}
		NewEscalator(nullLog(), fakeFetcher{full}, r).SmartFetch(context.Background(), full.URL)
		assert.Zero(t, r.calls)
	})
	t.Run("skips render for failed fetch", func(t *testing.T) {
		r := &fakeRenderer{}
		snap := NewEscalator(nullLog(), fakeFetcher{audit.Snapshot{Error: "timeout"}}, r).SmartFetch(context.Background(), "https://down.example/")
		assert.Zero(t, r.calls)
		assert.Equal(t, "timeout", snap.Error)
	})
}
