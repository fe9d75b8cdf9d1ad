package gigachat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
	"github.com/bryanwahyu/pdaudit/internal/infra/ai/credential"
	"github.com/bryanwahyu/pdaudit/internal/infra/ai/tokencache"
)

func newServer(t *testing.T, authHits *int32, chatStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(authHits, 1)
		assert.Equal(t, "Basic auth-key", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("RqUID"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, DefaultScope, r.PostForm.Get("scope"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "giga-token",
			"expires_at":   time.Now().Add(30 * time.Minute).UnixMilli(),
		})
	})
	mux.HandleFunc("/api/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer giga-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if chatStatus != http.StatusOK {
			w.WriteHeader(chatStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"too many requests"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","model":"GigaChat","choices":[{"index":0,"message":{"role":"assistant","content":"{\"summary\":\"ok\"}"},"finish_reason":"stop"}]}`))
	})
	return httptest.NewServer(mux)
}

func newClient(t *testing.T, srv *httptest.Server, key string) *Client {
	t.Helper()
	l, _ := logtest.NewNullLogger()
	c, err := New(Config{AuthURL: srv.URL + "/oauth", APIURL: srv.URL + "/api/v1"},
		credential.Static(key), tokencache.NewMemory(time.Now), logrus.NewEntry(l))
	require.NoError(t, err)
	return c.WithHTTPClient(srv.Client())
}

func TestComplete_CachesAccessToken(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits, http.StatusOK)
	defer srv.Close()
	c := newClient(t, srv, "auth-key")

	for i := 0; i < 3; i++ {
		got, err := c.Complete(context.Background(), "sys", "user")
		require.NoError(t, err)
		assert.Equal(t, `{"summary":"ok"}`, got)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestComplete_Quota(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits, http.StatusTooManyRequests)
	defer srv.Close()

	_, err := newClient(t, srv, "auth-key").Complete(context.Background(), "sys", "user")
	assert.ErrorIs(t, err, ai.ErrQuotaExceeded)
}

func TestComplete_MissingKey(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits, http.StatusOK)
	defer srv.Close()

	c := newClient(t, srv, "")
	assert.False(t, c.Configured(context.Background()))
	_, err := c.Complete(context.Background(), "sys", "user")
	assert.ErrorIs(t, err, ai.ErrMissingCredentials)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestNew_BadCAFile(t *testing.T) {
	l, _ := logtest.NewNullLogger()
	_, err := New(Config{CAFile: "/nonexistent/ca.pem"}, credential.Static("k"), nil, logrus.NewEntry(l))
	assert.Error(t, err)
}
