// Package wenxin implements the Baidu ERNIE (Wenxin) chat API.
//
// Wenxin requires an OAuth client-credentials exchange before completion
// calls. The access token is cached per Provider instance and travels as a
// query parameter, not a header.
package wenxin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTokenURL = "https://aip.baidubce.com/oauth/2.0/token"
	defaultBaseURL  = "https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop/chat"
	defaultModel    = "completions"

	// refreshMargin is the minimum remaining validity before re-exchanging.
	refreshMargin = 10 * time.Minute

	// tokenTimeout bounds one credentials exchange.
	tokenTimeout = 30 * time.Second
)

// Vendor error codes carried in a 200 response body.
const (
	errInvalidToken     = 110
	errExpiredToken     = 111
	errQPSLimit         = 18
	errTotalTokensLimit = 336501
)

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type chatRequest struct {
	Messages        []message `json:"messages"`
	Temperature     float64   `json:"temperature,omitempty"`
	MaxOutputTokens int       `json:"max_output_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID        string `json:"id"`
	Result    string `json:"result"`
	Usage     usage  `json:"usage"`
	ErrorCode int    `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type accessToken struct {
	value     string
	expiresAt time.Time
}

type Provider struct {
	apiKey      string
	secretKey   string
	tokenURL    string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
	now         func() time.Time

	mu    sync.Mutex
	token accessToken
	sf    singleflight.Group
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(u string) Option {
	return func(p *Provider) { p.tokenURL = u }
}

// WithClock replaces time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func New(cfg providers.Config, opts ...Option) *Provider {
	p := &Provider{
		apiKey:      cfg.APIKey,
		secretKey:   cfg.SecretKey,
		tokenURL:    defaultTokenURL,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{},
		now:         time.Now,
	}
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}
	if p.model == "" {
		p.model = defaultModel
	}
	if cfg.TokenURL != "" {
		p.tokenURL = cfg.TokenURL
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string  { return providers.Wenxin }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, req *providers.Request) (*providers.Completion, error) {
	if p.secretKey == "" {
		return nil, providers.Configuration(providers.Wenxin, "secret key is required for the token exchange")
	}

	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Messages:        []message{{Role: "user", Content: req.Prompt}},
		Temperature:     clampTemperature(p.temperature),
		MaxOutputTokens: p.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("wenxin: marshal request: %w", err)
	}

	endpoint := p.baseURL + "/" + url.PathEscape(p.model) + "?access_token=" + url.QueryEscape(token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("wenxin: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	raw, status, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, providers.FromStatus(providers.Wenxin, status, raw)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, providers.Malformed(providers.Wenxin, "decode response", raw)
	}
	if cr.ErrorCode != 0 {
		return nil, p.vendorError(cr, raw)
	}
	if strings.TrimSpace(cr.Result) == "" {
		return nil, providers.Malformed(providers.Wenxin, "response has no result", raw)
	}

	return &providers.Completion{
		Text:  strings.TrimSpace(cr.Result),
		Model: p.model,
		Usage: providers.Usage{
			InputTokens:  cr.Usage.PromptTokens,
			OutputTokens: cr.Usage.CompletionTokens,
			TotalTokens:  cr.Usage.TotalTokens,
		},
	}, nil
}

// accessToken returns the cached token, exchanging credentials when it is
// absent or expires within refreshMargin. Concurrent refreshes share one
// exchange.
func (p *Provider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	tok := p.token
	p.mu.Unlock()

	if tok.value != "" && tok.expiresAt.Sub(p.now()) >= refreshMargin {
		return tok.value, nil
	}

	// The shared exchange outlives any single caller; each caller still
	// gives up on its own ctx.
	ch := p.sf.DoChan("token", func() (any, error) {
		xctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenTimeout)
		defer cancel()
		return p.exchange(xctx)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	case <-ctx.Done():
		return "", providers.ClassifyTransport(providers.Wenxin, ctx.Err())
	}
}

func (p *Provider) exchange(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", p.apiKey)
	q.Set("client_secret", p.secretKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("wenxin: token request: %w", err)
	}

	raw, status, err := p.do(httpReq)
	if err != nil {
		return "", err
	}

	var tr tokenResponse
	decodeErr := json.Unmarshal(raw, &tr)

	if status != http.StatusOK || tr.Error != "" {
		e := providers.FromStatus(providers.Wenxin, status, raw)
		e.Kind = providers.KindAuth
		e.Message = "access token exchange failed"
		if tr.ErrorDescription != "" {
			e.Message += ": " + tr.ErrorDescription
		}
		return "", e
	}
	if decodeErr != nil || tr.AccessToken == "" {
		return "", providers.Malformed(providers.Wenxin, "token response has no access_token", raw)
	}

	tok := accessToken{
		value:     tr.AccessToken,
		expiresAt: p.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	p.mu.Lock()
	p.token = tok
	p.mu.Unlock()

	return tok.value, nil
}

func (p *Provider) invalidateToken() {
	p.mu.Lock()
	p.token = accessToken{}
	p.mu.Unlock()
}

func (p *Provider) vendorError(cr chatResponse, raw []byte) error {
	e := &providers.Error{
		Kind:     providers.KindProvider,
		Provider: providers.Wenxin,
		Message:  fmt.Sprintf("error_code %d: %s", cr.ErrorCode, cr.ErrorMsg),
		Payload:  string(raw),
	}
	switch cr.ErrorCode {
	case errInvalidToken, errExpiredToken:
		p.invalidateToken()
		e.Kind = providers.KindAuth
	case errQPSLimit, errTotalTokensLimit:
		e.Kind = providers.KindRateLimit
	}
	return e
}

func (p *Provider) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, providers.ClassifyTransport(providers.Wenxin, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, providers.ClassifyTransport(providers.Wenxin, err)
	}
	return raw, resp.StatusCode, nil
}

// clampTemperature keeps the value inside (0, 1], the only range ERNIE accepts.
func clampTemperature(t float64) float64 {
	switch {
	case t <= 0:
		return 0.01
	case t > 1:
		return 1
	}
	return t
}
