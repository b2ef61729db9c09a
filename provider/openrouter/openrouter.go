// Package openrouter is a research provider backed by the OpenRouter
// (OpenAI-compatible) chat completions API
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sig-0/dutyrates/research"
	"github.com/sig-0/dutyrates/storage/types"
)

const (
	DefaultURL   = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel = "anthropic/claude-haiku-4.5"

	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second

	// maxErrorBody caps how much of an error response is kept for logging
	maxErrorBody = 512
)

var (
	errEmptyAPIKey   = errors.New("empty API key")
	errNoChoices     = errors.New("no choices in response")
	errUnexpectedAPI = errors.New("unexpected API response")
)

// Provider is the OpenRouter research provider
type Provider struct {
	client    *http.Client
	url       string
	apiKey    string
	model     string
	maxTokens int
}

type Option func(*Provider)

// WithURL overrides the chat completions endpoint
func WithURL(url string) Option {
	return func(p *Provider) {
		p.url = url
	}
}

// WithModel overrides the requested model
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// WithMaxTokens caps the response length
func WithMaxTokens(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// New creates a new OpenRouter provider
func New(apiKey string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errEmptyAPIKey
	}

	p := &Provider{
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		url:       DefaultURL,
		apiKey:    apiKey,
		model:     DefaultModel,
		maxTokens: defaultMaxTokens,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

func (p *Provider) Name() string {
	return "openrouter"
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Research sends the research prompt and returns the raw model output
func (p *Provider) Research(ctx context.Context, r *research.Request) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model: p.model,
		Messages: []message{
			{Role: "system", Content: r.SystemPrompt()},
			{Role: "user", Content: r.UserPrompt()},
		},
		MaxTokens:   p.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("unable to marshal request: %w", err)
	}

	// Prepare the request
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("unable to create new POST request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	// Execute the request
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("unable to execute POST request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return "", statusError(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("unable to decode response: %w", err)
	}

	if out.Error != nil {
		return "", fmt.Errorf("%w: %s", errUnexpectedAPI, out.Error.Message)
	}

	if len(out.Choices) == 0 {
		return "", errNoChoices
	}

	return out.Choices[0].Message.Content, nil
}

// statusError maps rate-limit and overload statuses to the retryable error
func statusError(code int, body string) error {
	switch code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, 529:
		return fmt.Errorf("%w: status %d: %s", types.ErrRateLimited, code, body)
	default:
		return fmt.Errorf("invalid status code received: %d: %s", code, body)
	}
}
