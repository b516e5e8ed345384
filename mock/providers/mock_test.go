package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers/deepseek"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers/openai"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers/qwen"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers/wenxin"
)

func adapterFor(t *testing.T, vendor string, cfg Config) providers.Provider {
	t.Helper()

	base := providers.Config{
		Provider:    vendor,
		APIKey:      "sk-mock",
		SecretKey:   "mock-secret",
		Temperature: 0.7,
		MaxTokens:   100,
		Enabled:     true,
	}

	switch vendor {
	case providers.OpenAI:
		srv := httptest.NewServer(newChatHandler(cfg, "gpt-4o-mini"))
		t.Cleanup(srv.Close)
		base.BaseURL = srv.URL + "/v1"
		return openai.New(base)
	case providers.DeepSeek:
		srv := httptest.NewServer(newChatHandler(cfg, "deepseek-chat"))
		t.Cleanup(srv.Close)
		base.BaseURL = srv.URL + "/v1"
		return deepseek.New(base)
	case providers.Qwen:
		srv := httptest.NewServer(newQwenHandler(cfg))
		t.Cleanup(srv.Close)
		base.BaseURL = srv.URL + "/api/v1"
		return qwen.New(base)
	case providers.Wenxin:
		srv := httptest.NewServer(newWenxinHandler(cfg))
		t.Cleanup(srv.Close)
		base.BaseURL = srv.URL + "/rpc/2.0/ai_custom/v1/wenxinworkshop/chat"
		base.TokenURL = srv.URL + "/oauth/2.0/token"
		return wenxin.New(base)
	}
	t.Fatalf("no adapter for %s", vendor)
	return nil
}

func TestMockVendors_AdaptersComplete(t *testing.T) {
	cfg := Config{Words: 6}

	for _, vendor := range providers.Known {
		t.Run(vendor, func(t *testing.T) {
			p := adapterFor(t, vendor, cfg)

			c, err := p.Complete(context.Background(), &providers.Request{
				Prompt:    "Summarize: caching makes blogs fast.",
				Operation: providers.OpSummary,
			})
			if err != nil {
				t.Fatalf("complete: %v", err)
			}
			if strings.TrimSpace(c.Text) == "" {
				t.Fatal("empty completion text")
			}
			if c.Usage.OutputTokens != cfg.Words {
				t.Fatalf("output tokens = %d, want %d", c.Usage.OutputTokens, cfg.Words)
			}
			if c.Usage.TotalTokens != c.Usage.InputTokens+c.Usage.OutputTokens {
				t.Fatalf("inconsistent usage %+v", c.Usage)
			}
		})
	}
}

func TestMockVendors_ThrottleMapsToRateLimit(t *testing.T) {
	cfg := Config{Words: 3, ThrottleRate: 1}

	for _, vendor := range providers.Known {
		t.Run(vendor, func(t *testing.T) {
			p := adapterFor(t, vendor, cfg)

			_, err := p.Complete(context.Background(), &providers.Request{Prompt: "hi", Operation: providers.OpCompletion})
			if got := providers.KindOf(err); got != providers.KindRateLimit {
				t.Fatalf("kind = %q, want rate_limit (err=%v)", got, err)
			}
		})
	}
}

func TestMockVendors_ServerErrorIsProviderError(t *testing.T) {
	p := adapterFor(t, providers.Qwen, Config{Words: 3, ErrorRate: 1})

	_, err := p.Complete(context.Background(), &providers.Request{Prompt: "hi"})
	if got := providers.KindOf(err); got != providers.KindProvider {
		t.Fatalf("kind = %q, want provider (err=%v)", got, err)
	}
}

func TestWenxinMock_RejectsUnknownToken(t *testing.T) {
	srv := httptest.NewServer(newWenxinHandler(Config{Words: 3}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/rpc/2.0/ai_custom/v1/wenxinworkshop/chat/completions?access_token=forged",
		"application/json", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		ErrorCode int `json:"error_code"`
	}
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body.ErrorCode != wenxinTokenInvalid {
		t.Fatalf("status=%d error_code=%d, want 200/%d", resp.StatusCode, body.ErrorCode, wenxinTokenInvalid)
	}
}

func TestWenxinMock_TokenRequiresCredentials(t *testing.T) {
	srv := httptest.NewServer(newWenxinHandler(Config{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/oauth/2.0/token?grant_type=client_credentials&client_id=ak", "", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestChatMock_RequiresBearer(t *testing.T) {
	srv := httptest.NewServer(newChatHandler(Config{}, "gpt-4o-mini"))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
