package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
)

const (
	maxTokens    = 2048
	defaultModel = "gpt-4o-mini"
)

// Client is the static-key OpenAI backend.
type Client struct {
	cred       ai.CredentialSource
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(cred ai.CredentialSource, model string) *Client {
	return &Client{cred: cred, Model: model}
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Configured(ctx context.Context) bool {
	key, err := c.cred(ctx)
	return err == nil && key != ""
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	key, err := c.cred(ctx)
	if err != nil || key == "" {
		return "", ai.ErrMissingCredentials
	}
	cfg := openai.DefaultConfig(key)
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.HTTPClient != nil {
		cfg.HTTPClient = c.HTTPClient
	}
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	return Chat(ctx, cfg, model, systemPrompt, userPrompt, true)
}

// Chat runs one chat completion against any OpenAI-compatible endpoint.
func Chat(ctx context.Context, cfg openai.ClientConfig, model, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(model) {
		req.MaxCompletionTokens = maxTokens
		req.Temperature = 0
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := openai.NewClientWithConfig(cfg).CreateChatCompletion(ctx, req)
	if err != nil {
		if isQuota(err) {
			return "", fmt.Errorf("%w: %v", ai.ErrQuotaExceeded, err)
		}
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ai.ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func isQuota(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests
}
