package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
)

func testConfig(srv *httptest.Server, key string) providers.Config {
	return providers.Config{
		Provider:    providers.DeepSeek,
		APIKey:      key,
		BaseURL:     srv.URL,
		Model:       "m1",
		Temperature: 0.9,
		MaxTokens:   4000,
		Enabled:     true,
	}
}

func TestProvider_RejectsMalformedKeyWithoutNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := New(testConfig(srv, "not-a-key")).Complete(context.Background(), &providers.Request{Prompt: "Hello"})
	if providers.KindOf(err) != providers.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "sk-") {
		t.Fatalf("expected descriptive format message, got %q", err.Error())
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no network call, got %d", calls.Load())
	}
}

func TestProvider_Complete_RequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("wrong Authorization header: %s", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"m1",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hi!"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":2,"completion_tokens":1,"total_tokens":3}}`))
	}))
	defer srv.Close()

	resp, err := New(testConfig(srv, "sk-test")).Complete(context.Background(), &providers.Request{Prompt: "Hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Hi!" || resp.Usage.TotalTokens != 3 {
		t.Fatalf("unexpected completion %+v", resp)
	}

	if got["stream"] != false {
		t.Fatalf("stream must be pinned to false, got %v", got["stream"])
	}
	if got["temperature"] != 0.3 {
		t.Fatalf("expected temperature 0.3, got %v", got["temperature"])
	}
	if got["max_tokens"] != float64(maxTokensCap) {
		t.Fatalf("expected max_tokens capped at %d, got %v", maxTokensCap, got["max_tokens"])
	}
}

func TestProvider_Complete_StatusMessages(t *testing.T) {
	tests := []struct {
		status  int
		kind    providers.Kind
		message string
	}{
		{http.StatusUnauthorized, providers.KindAuth, "authentication failed"},
		{http.StatusForbidden, providers.KindAuth, "access denied"},
		{http.StatusTooManyRequests, providers.KindRateLimit, "rate limit exceeded"},
		{http.StatusInternalServerError, providers.KindProvider, "status 500"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"vendor says no","type":"x","code":"y"}}`))
			}))
			defer srv.Close()

			_, err := New(testConfig(srv, "sk-test")).Complete(context.Background(), &providers.Request{Prompt: "Hello"})
			var pe *providers.Error
			if !errors.As(err, &pe) {
				t.Fatalf("expected *providers.Error, got %v", err)
			}
			if pe.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, pe.Kind)
			}
			if !strings.Contains(pe.Message, tt.message) {
				t.Fatalf("expected message containing %q, got %q", tt.message, pe.Message)
			}
			if !strings.Contains(pe.Payload, "vendor says no") {
				t.Fatalf("expected raw vendor payload, got %q", pe.Payload)
			}
			if calls.Load() != 1 {
				t.Fatalf("SDK must not retry, got %d calls", calls.Load())
			}
		})
	}
}
