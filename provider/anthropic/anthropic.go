// Package anthropic is a research provider backed by the Anthropic Messages API
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sig-0/dutyrates/research"
	"github.com/sig-0/dutyrates/storage/types"
)

const (
	DefaultModel = "claude-haiku-4-5"

	defaultMaxTokens = 1024

	// statusOverloaded is Anthropic's non-standard overload status
	statusOverloaded = 529
)

var (
	errEmptyAPIKey = errors.New("empty API key")
	errNoText      = errors.New("no text content in response")
)

// Provider is the Anthropic research provider
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

type config struct {
	baseURL    string
	model      string
	httpClient *http.Client
	maxTokens  int64
}

type Option func(*config)

// WithBaseURL overrides the API base URL
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel overrides the requested model
func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithHTTPClient overrides the HTTP client used by the SDK
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithMaxTokens caps the response length
func WithMaxTokens(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// New creates a new Anthropic provider. SDK-internal retries are disabled,
// the research chain owns the retry policy
func New(apiKey string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errEmptyAPIKey
	}

	cfg := &config{
		model:     DefaultModel,
		maxTokens: defaultMaxTokens,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}

	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}

	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &Provider{
		client:    anthropic.NewClient(clientOpts...),
		model:     cfg.model,
		maxTokens: cfg.maxTokens,
	}, nil
}

func (p *Provider) Name() string {
	return "anthropic"
}

// Research sends the research prompt and returns the raw model output
func (p *Provider) Research(ctx context.Context, r *research.Request) (string, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(0),
		System: []anthropic.TextBlockParam{
			{Text: r.SystemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(r.UserPrompt())),
		},
	})
	if err != nil {
		return "", mapError(err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", errNoText
}

// mapError maps rate-limit and overload responses to the retryable error
func mapError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("unable to create message: %w", err)
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, statusOverloaded:
		return fmt.Errorf("%w: status %d: %w", types.ErrRateLimited, apiErr.StatusCode, err)
	default:
		return fmt.Errorf("invalid status code received: %d: %w", apiErr.StatusCode, err)
	}
}
