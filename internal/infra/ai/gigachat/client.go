package gigachat

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
	"github.com/bryanwahyu/pdaudit/internal/infra/ai/openai"
)

const (
	DefaultAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultAPIURL  = "https://gigachat.devices.sberbank.ru/api/v1"
	DefaultScope   = "GIGACHAT_API_PERS"
	DefaultModel   = "GigaChat"

	tokenCacheKey = "gigachat"
)

type Config struct {
	AuthURL string
	APIURL  string
	Scope   string
	Model   string
	// CAFile holds the Russian Trusted Root CA bundle the endpoints are signed with.
	CAFile string
}

func (c *Config) applyDefaults() {
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.Scope == "" {
		c.Scope = DefaultScope
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
}

// Client talks to GigaChat. The authorization key is exchanged for a short
// lived access token which is kept in the token cache.
type Client struct {
	cfg    Config
	cred   ai.CredentialSource
	tokens ai.TokenCache
	http   *http.Client
	log    *logrus.Entry
}

func New(cfg Config, cred ai.CredentialSource, tokens ai.TokenCache, log *logrus.Entry) (*Client, error) {
	cfg.applyDefaults()
	hc := &http.Client{Timeout: 30 * time.Second}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read gigachat ca file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("gigachat ca file %s has no certificates", cfg.CAFile)
		}
		hc.Transport = &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}}
	}
	return &Client{cfg: cfg, cred: cred, tokens: tokens, http: hc, log: log}, nil
}

// WithHTTPClient replaces the transport, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) Name() string { return "gigachat" }

func (c *Client) Configured(ctx context.Context) bool {
	key, err := c.cred(ctx)
	return err == nil && key != ""
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}
	cfg := goopenai.DefaultConfig(token)
	cfg.BaseURL = c.cfg.APIURL
	cfg.HTTPClient = c.http
	// GigaChat ignores response_format; the prompt asks for JSON instead.
	return openai.Chat(ctx, cfg, c.cfg.Model, systemPrompt, userPrompt, false)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	// milliseconds since epoch
	ExpiresAt int64 `json:"expires_at"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.tokens != nil {
		if tok, ok := c.tokens.Get(ctx, tokenCacheKey); ok {
			return tok, nil
		}
	}
	key, err := c.cred(ctx)
	if err != nil || key == "" {
		return "", ai.ErrMissingCredentials
	}

	form := url.Values{"scope": {c.cfg.Scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build gigachat token request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+key)
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gigachat token exchange: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: gigachat token exchange", ai.ErrQuotaExceeded)
	case resp.StatusCode == http.StatusUnauthorized:
		return "", fmt.Errorf("%w: gigachat rejected authorization key", ai.ErrMissingCredentials)
	case resp.StatusCode/100 != 2:
		return "", fmt.Errorf("gigachat token exchange: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode gigachat token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("gigachat token exchange: empty access_token")
	}
	if c.tokens != nil {
		c.tokens.Set(ctx, tokenCacheKey, tr.AccessToken, time.UnixMilli(tr.ExpiresAt))
	}
	c.log.WithField("provider", "gigachat").Debug("access token refreshed")
	return tr.AccessToken, nil
}
