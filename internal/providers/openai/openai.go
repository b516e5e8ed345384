package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	// temperature is fixed for every call regardless of configuration.
	temperature = 0.5
)

// SystemPrompt is sent ahead of every user prompt.
const SystemPrompt = "You are a helpful writing assistant for a blog. " +
	"Answer in the language of the provided content and return plain text only."

type Provider struct {
	model     string
	maxTokens int
	client    openaiSDK.Client
}

type Option func(*settings)

type settings struct {
	baseURL    string
	httpClient *http.Client
}

// WithHTTPClient overrides the HTTP client used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// New builds the adapter. No network I/O happens until Complete.
func New(cfg providers.Config, opts ...Option) *Provider {
	s := &settings{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{},
	}
	if s.baseURL == "" {
		s.baseURL = defaultBaseURL
	}
	for _, o := range opts {
		o(s)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Provider{
		model:     model,
		maxTokens: cfg.MaxTokens,
		client: openaiSDK.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(s.baseURL),
			option.WithHTTPClient(s.httpClient),
			option.WithMaxRetries(0),
		),
	}
}

func (p *Provider) Name() string  { return providers.OpenAI }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, req *providers.Request) (*providers.Completion, error) {
	params := openaiSDK.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openaiSDK.ChatCompletionMessageParamUnion{
			openaiSDK.SystemMessage(SystemPrompt),
			openaiSDK.UserMessage(req.Prompt),
		},
		Temperature: openaiSDK.Float(temperature),
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openaiSDK.Int(int64(p.maxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, toProviderError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, providers.Malformed(providers.OpenAI, "response has no choices", []byte(resp.RawJSON()))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, providers.Malformed(providers.OpenAI, "first choice has empty content", []byte(resp.RawJSON()))
	}

	return &providers.Completion{
		Text:  text,
		Model: resp.Model,
		Usage: providers.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

func toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return providers.FromStatus(providers.OpenAI, apierr.StatusCode, []byte(apierr.RawJSON()))
	}
	return providers.ClassifyTransport(providers.OpenAI, err)
}
