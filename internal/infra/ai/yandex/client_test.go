package yandex

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

type fakeYandex struct {
	iamHits    int32
	status     int
	lastRecord completionRequest
	folder     string
}

func (f *fakeYandex) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/iam", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.iamHits, 1)
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "oauth-token", in["yandexPassportOauthToken"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"iamToken":  "iam-1",
			"expiresAt": time.Now().Add(12 * time.Hour).UTC().Format(time.RFC3339Nano),
		})
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer iam-1", r.Header.Get("Authorization"))
		f.folder = r.Header.Get("x-folder-id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastRecord))
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"alternatives":[{"message":{"role":"assistant","text":"{\"summary\":\"готово\"}"},"status":"ALTERNATIVE_STATUS_FINAL"}]}}`))
	})
	return mux
}

func newClient(t *testing.T, srv *httptest.Server, folder string) *Client {
	l, _ := logtest.NewNullLogger()
	return New(Config{IAMURL: srv.URL + "/iam", CompletionURL: srv.URL + "/completion", FolderID: folder},
		credential.Static("oauth-token"), tokencache.NewMemory(time.Now), logrus.NewEntry(l)).
		WithHTTPClient(srv.Client())
}

func TestComplete(t *testing.T) {
	f := &fakeYandex{}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()
	c := newClient(t, srv, "b1gfolder")

	got, err := c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"готово"}`, got)
	_, err = c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.iamHits), "iam token must be reused")
	assert.Equal(t, "gpt://b1gfolder/yandexgpt-lite/latest", f.lastRecord.ModelURI)
	assert.Equal(t, "b1gfolder", f.folder)
	require.Len(t, f.lastRecord.Messages, 2)
	assert.Equal(t, "system", f.lastRecord.Messages[0].Role)
}

func TestComplete_Quota(t *testing.T) {
	f := &fakeYandex{status: http.StatusTooManyRequests}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	_, err := newClient(t, srv, "b1gfolder").Complete(context.Background(), "sys", "user")
	assert.ErrorIs(t, err, ai.ErrQuotaExceeded)
}

func TestConfigured_NeedsFolder(t *testing.T) {
	f := &fakeYandex{}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := newClient(t, srv, "")
	assert.False(t, c.Configured(context.Background()))
	_, err := c.Complete(context.Background(), "sys", "user")
	assert.ErrorIs(t, err, ai.ErrMissingCredentials)
	assert.Zero(t, atomic.LoadInt32(&f.iamHits))
}
