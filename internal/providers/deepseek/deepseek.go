// Package deepseek implements the DeepSeek chat API through its
// OpenAI-compatible endpoint.
package deepseek

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultBaseURL = "https://api.deepseek.com/v1"
	defaultModel   = "deepseek-chat"

	keyPrefix = "sk-"

	// Low-latency parameters.
	temperature  = 0.3
	maxTokensCap = 1000

	systemPrompt = "You are a concise blog writing assistant. Reply with plain text only."
)

type Provider struct {
	apiKey    string
	model     string
	maxTokens int
	client    openaiSDK.Client
}

type Option func(*settings)

type settings struct {
	httpClient *http.Client
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

func New(cfg providers.Config, opts ...Option) *Provider {
	s := &settings{httpClient: &http.Client{}}
	for _, o := range opts {
		o(s)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 || maxTokens > maxTokensCap {
		maxTokens = maxTokensCap
	}

	return &Provider{
		apiKey:    cfg.APIKey,
		model:     model,
		maxTokens: maxTokens,
		client: openaiSDK.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(s.httpClient),
			option.WithMaxRetries(0),
		),
	}
}

func (p *Provider) Name() string  { return providers.DeepSeek }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, req *providers.Request) (*providers.Completion, error) {
	if err := validateKey(p.apiKey); err != nil {
		return nil, err
	}

	params := openaiSDK.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openaiSDK.ChatCompletionMessageParamUnion{
			openaiSDK.SystemMessage(systemPrompt),
			openaiSDK.UserMessage(req.Prompt),
		},
		Temperature: openaiSDK.Float(temperature),
		MaxTokens:   openaiSDK.Int(int64(p.maxTokens)),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params, option.WithJSONSet("stream", false))
	if err != nil {
		return nil, toProviderError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, providers.Malformed(providers.DeepSeek, "response has no message content", []byte(resp.RawJSON()))
	}

	return &providers.Completion{
		Text:  strings.TrimSpace(resp.Choices[0].Message.Content),
		Model: resp.Model,
		Usage: providers.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

func validateKey(key string) error {
	if !strings.HasPrefix(key, keyPrefix) {
		return providers.Configuration(providers.DeepSeek,
			fmt.Sprintf("invalid API key format: DeepSeek keys start with %q", keyPrefix))
	}
	return nil
}

func toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if !errors.As(err, &apierr) {
		return providers.ClassifyTransport(providers.DeepSeek, err)
	}

	e := providers.FromStatus(providers.DeepSeek, apierr.StatusCode, []byte(apierr.RawJSON()))
	switch apierr.StatusCode {
	case http.StatusUnauthorized:
		e.Message = "authentication failed: check that the DeepSeek API key is valid"
	case http.StatusForbidden:
		e.Message = "access denied: the DeepSeek API key lacks permission for this model"
	case http.StatusTooManyRequests:
		e.Message = "rate limit exceeded: reduce request frequency and retry later"
	default:
		e.Message = fmt.Sprintf("DeepSeek API request failed with status %d", apierr.StatusCode)
	}
	return e
}
