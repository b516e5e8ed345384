// Package qwen implements the Alibaba DashScope text-generation API.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
)

const (
	defaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"
	defaultModel   = "qwen-turbo"
	generationPath = "/services/aigc/text-generation/generation"

	systemPrompt = "You are a professional blog writing assistant. Reply with plain text only."
)

type generationRequest struct {
	Model      string     `json:"model"`
	Input      input      `json:"input"`
	Parameters parameters `json:"parameters"`
}

type input struct {
	Messages []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type parameters struct {
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	ResultFormat string  `json:"result_format"`
}

type generationResponse struct {
	RequestID string  `json:"request_id"`
	Output    *output `json:"output"`
	Usage     usage   `json:"usage"`
	Code      string  `json:"code,omitempty"`
	Message   string  `json:"message,omitempty"`
}

type output struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type Provider struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

func New(cfg providers.Config, opts ...Option) *Provider {
	p := &Provider{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{},
	}
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}
	if p.model == "" {
		p.model = defaultModel
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string  { return providers.Qwen }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, req *providers.Request) (*providers.Completion, error) {
	body, err := json.Marshal(generationRequest{
		Model: p.model,
		Input: input{Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt},
		}},
		Parameters: parameters{
			Temperature:  p.temperature,
			MaxTokens:    p.maxTokens,
			ResultFormat: "text",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qwen: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+generationPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qwen: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.ClassifyTransport(providers.Qwen, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.ClassifyTransport(providers.Qwen, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp.StatusCode, raw)
	}

	var gr generationResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, providers.Malformed(providers.Qwen, "decode response", raw)
	}
	if gr.Output == nil || strings.TrimSpace(gr.Output.Text) == "" {
		return nil, providers.Malformed(providers.Qwen, "response has no output.text", raw)
	}

	total := gr.Usage.TotalTokens
	if total == 0 {
		total = gr.Usage.InputTokens + gr.Usage.OutputTokens
	}

	return &providers.Completion{
		Text:  strings.TrimSpace(gr.Output.Text),
		Model: p.model,
		Usage: providers.Usage{
			InputTokens:  gr.Usage.InputTokens,
			OutputTokens: gr.Usage.OutputTokens,
			TotalTokens:  total,
		},
	}, nil
}

func parseError(status int, raw []byte) error {
	e := providers.FromStatus(providers.Qwen, status, raw)

	var gr generationResponse
	if json.Unmarshal(raw, &gr) == nil && gr.Message != "" {
		e.Message = fmt.Sprintf("%s: %s (%s)", e.Message, gr.Message, gr.Code)
	}
	return e
}
