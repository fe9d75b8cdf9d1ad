package yandex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
)

const (
	DefaultIAMURL        = "https://iam.api.cloud.yandex.net/iam/v1/tokens"
	DefaultCompletionURL = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
	DefaultModel         = "yandexgpt-lite/latest"

	tokenCacheKey = "yandexgpt"
	maxReplyBytes = 1 << 20
)

type Config struct {
	IAMURL        string
	CompletionURL string
	FolderID      string
	Model         string
	Temperature   float64
	MaxTokens     int
}

func (c *Config) applyDefaults() {
	if c.IAMURL == "" {
		c.IAMURL = DefaultIAMURL
	}
	if c.CompletionURL == "" {
		c.CompletionURL = DefaultCompletionURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2000
	}
}

// Client calls YandexGPT. The OAuth token is exchanged for an IAM token which
// is kept in the token cache until shortly before expiresAt.
type Client struct {
	cfg    Config
	cred   ai.CredentialSource
	tokens ai.TokenCache
	http   *http.Client
	log    *logrus.Entry
}

func New(cfg Config, cred ai.CredentialSource, tokens ai.TokenCache, log *logrus.Entry) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:    cfg,
		cred:   cred,
		tokens: tokens,
		http:   &http.Client{Timeout: 60 * time.Second},
		log:    log,
	}
}

func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) Name() string { return "yandexgpt" }

// Configured needs both the OAuth token and the folder id.
func (c *Client) Configured(ctx context.Context) bool {
	key, err := c.cred(ctx)
	return err == nil && key != "" && c.cfg.FolderID != ""
}

type message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type completionRequest struct {
	ModelURI          string `json:"modelUri"`
	CompletionOptions struct {
		Stream      bool    `json:"stream"`
		Temperature float64 `json:"temperature"`
		MaxTokens   string  `json:"maxTokens"`
	} `json:"completionOptions"`
	Messages []message `json:"messages"`
}

type completionResponse struct {
	Result struct {
		Alternatives []struct {
			Message message `json:"message"`
			Status  string  `json:"status"`
		} `json:"alternatives"`
	} `json:"result"`
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.cfg.FolderID == "" {
		return "", fmt.Errorf("%w: yandex folder id not set", ai.ErrMissingCredentials)
	}
	token, err := c.iamToken(ctx)
	if err != nil {
		return "", err
	}

	var reqBody completionRequest
	reqBody.ModelURI = fmt.Sprintf("gpt://%s/%s", c.cfg.FolderID, c.cfg.Model)
	reqBody.CompletionOptions.Temperature = c.cfg.Temperature
	reqBody.CompletionOptions.MaxTokens = fmt.Sprint(c.cfg.MaxTokens)
	reqBody.Messages = []message{
		{Role: "system", Text: systemPrompt},
		{Role: "user", Text: userPrompt},
	}

	var out completionResponse
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"x-folder-id":   c.cfg.FolderID,
	}
	if err := c.postJSON(ctx, c.cfg.CompletionURL, headers, reqBody, &out); err != nil {
		return "", fmt.Errorf("yandexgpt completion: %w", err)
	}
	if len(out.Result.Alternatives) == 0 || strings.TrimSpace(out.Result.Alternatives[0].Message.Text) == "" {
		return "", ai.ErrEmptyReply
	}
	return out.Result.Alternatives[0].Message.Text, nil
}

func (c *Client) iamToken(ctx context.Context) (string, error) {
	if c.tokens != nil {
		if tok, ok := c.tokens.Get(ctx, tokenCacheKey); ok {
			return tok, nil
		}
	}
	oauth, err := c.cred(ctx)
	if err != nil || oauth == "" {
		return "", ai.ErrMissingCredentials
	}

	var out struct {
		IAMToken  string    `json:"iamToken"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	in := map[string]string{"yandexPassportOauthToken": oauth}
	if err := c.postJSON(ctx, c.cfg.IAMURL, nil, in, &out); err != nil {
		return "", fmt.Errorf("yandex iam exchange: %w", err)
	}
	if out.IAMToken == "" {
		return "", fmt.Errorf("yandex iam exchange: empty iamToken")
	}
	if c.tokens != nil {
		c.tokens.Set(ctx, tokenCacheKey, out.IAMToken, out.ExpiresAt)
	}
	c.log.WithField("provider", "yandexgpt").Debug("iam token refreshed")
	return out.IAMToken, nil
}

func (c *Client) postJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ai.ErrQuotaExceeded
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ai.ErrMissingCredentials, resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body))
	}
	return json.Unmarshal(body, out)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
