package wenxin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
)

type fakeVendor struct {
	exchanges   atomic.Int32
	completions atomic.Int32
	expiresIn   int64
	tokenDelay  time.Duration
	chatBody    func(token string) string
}

func (f *fakeVendor) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/2.0/token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant_type %q", q.Get("grant_type"))
		}
		if q.Get("client_id") != "ak" || q.Get("client_secret") != "sk" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"unknown client id"}`))
			return
		}
		time.Sleep(f.tokenDelay)
		n := f.exchanges.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + string(rune('0'+n)),
			"expires_in":   f.expiresIn,
		})
	})
	mux.HandleFunc("/chat/ernie-speed", func(w http.ResponseWriter, r *http.Request) {
		f.completions.Add(1)
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Temperature <= 0 || body.Temperature > 1 {
			t.Errorf("temperature outside (0,1]: %v", body.Temperature)
		}
		token := r.URL.Query().Get("access_token")
		if f.chatBody != nil {
			_, _ = w.Write([]byte(f.chatBody(token)))
			return
		}
		_, _ = w.Write([]byte(`{"id":"as-1","result":"generated for ` + token + `","usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`))
	})
	return mux
}

func newTestProvider(srv *httptest.Server, secret string, opts ...Option) *Provider {
	cfg := providers.Config{
		Provider:    providers.Wenxin,
		APIKey:      "ak",
		SecretKey:   secret,
		BaseURL:     srv.URL + "/chat",
		Model:       "ernie-speed",
		Temperature: 1.5,
		MaxTokens:   300,
		Enabled:     true,
	}
	opts = append([]Option{WithTokenURL(srv.URL + "/oauth/2.0/token")}, opts...)
	return New(cfg, opts...)
}

func TestProvider_ReusesTokenWithinMargin(t *testing.T) {
	f := &fakeVendor{expiresIn: int64((30 * 24 * time.Hour).Seconds())}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	p := newTestProvider(srv, "sk")
	for i := 0; i < 3; i++ {
		resp, err := p.Complete(context.Background(), &providers.Request{Prompt: "hello"})
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if resp.Text != "generated for tok-1" {
			t.Fatalf("unexpected text %q", resp.Text)
		}
	}
	if got := f.exchanges.Load(); got != 1 {
		t.Fatalf("expected 1 token exchange, got %d", got)
	}
}

func TestProvider_RefreshesInsideMargin(t *testing.T) {
	f := &fakeVendor{expiresIn: int64((time.Hour).Seconds())}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := newTestProvider(srv, "sk", WithClock(func() time.Time { return now }))

	if _, err := p.Complete(context.Background(), &providers.Request{Prompt: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 49 minutes later 11 minutes remain: still reused.
	now = now.Add(49 * time.Minute)
	if _, err := p.Complete(context.Background(), &providers.Request{Prompt: "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.exchanges.Load(); got != 1 {
		t.Fatalf("expected token reuse, got %d exchanges", got)
	}

	// 9 minutes remain: refresh.
	now = now.Add(2 * time.Minute)
	resp, err := p.Complete(context.Background(), &providers.Request{Prompt: "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.exchanges.Load(); got != 2 {
		t.Fatalf("expected refresh, got %d exchanges", got)
	}
	if resp.Text != "generated for tok-2" {
		t.Fatalf("expected new token in use, got %q", resp.Text)
	}
}

func TestProvider_MissingSecretKey(t *testing.T) {
	f := &fakeVendor{expiresIn: 3600}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	_, err := newTestProvider(srv, "").Complete(context.Background(), &providers.Request{Prompt: "a"})
	if providers.KindOf(err) != providers.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if f.exchanges.Load() != 0 || f.completions.Load() != 0 {
		t.Fatal("no network call expected without a secret key")
	}
}

func TestProvider_TokenExchangeRejected(t *testing.T) {
	f := &fakeVendor{expiresIn: 3600}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	_, err := newTestProvider(srv, "wrong").Complete(context.Background(), &providers.Request{Prompt: "a"})
	if providers.KindOf(err) != providers.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if f.completions.Load() != 0 {
		t.Fatal("completion must not be attempted without a token")
	}
}

func TestProvider_ExpiredTokenErrorDropsCache(t *testing.T) {
	f := &fakeVendor{expiresIn: 3600 * 24}
	f.chatBody = func(token string) string {
		if token == "tok-1" {
			return `{"error_code":111,"error_msg":"Access token expired"}`
		}
		return `{"result":"ok","usage":{"total_tokens":1}}`
	}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	p := newTestProvider(srv, "sk")
	_, err := p.Complete(context.Background(), &providers.Request{Prompt: "a"})
	if providers.KindOf(err) != providers.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}

	resp, err := p.Complete(context.Background(), &providers.Request{Prompt: "a"})
	if err != nil {
		t.Fatalf("unexpected error after re-exchange: %v", err)
	}
	if resp.Text != "ok" || f.exchanges.Load() != 2 {
		t.Fatalf("expected a fresh exchange, text=%q exchanges=%d", resp.Text, f.exchanges.Load())
	}
}

func TestProvider_VendorRateLimit(t *testing.T) {
	f := &fakeVendor{expiresIn: 3600 * 24}
	f.chatBody = func(string) string { return `{"error_code":18,"error_msg":"Open api qps request limit reached"}` }
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	_, err := newTestProvider(srv, "sk").Complete(context.Background(), &providers.Request{Prompt: "a"})
	if providers.KindOf(err) != providers.KindRateLimit {
		t.Fatalf("expected rate_limit, got %v", err)
	}
}

func TestProvider_ConcurrentCallsShareToken(t *testing.T) {
	f := &fakeVendor{expiresIn: 3600 * 24}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	p := newTestProvider(srv, "sk")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Complete(context.Background(), &providers.Request{Prompt: "x"}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.completions.Load(); got != 8 {
		t.Fatalf("expected 8 completions, got %d", got)
	}
	if got := f.exchanges.Load(); got < 1 || got > 8 {
		t.Fatalf("unexpected exchange count %d", got)
	}
}

func TestProvider_CancelledCallerDoesNotFailSharedExchange(t *testing.T) {
	f := &fakeVendor{expiresIn: 3600 * 24, tokenDelay: 200 * time.Millisecond}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	p := newTestProvider(srv, "sk")

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	errA := make(chan error, 1)
	go func() {
		_, err := p.Complete(shortCtx, &providers.Request{Prompt: "a"})
		errA <- err
	}()

	// Let the first caller start the exchange before joining it.
	time.Sleep(10 * time.Millisecond)
	c, err := p.Complete(context.Background(), &providers.Request{Prompt: "b"})
	if err != nil {
		t.Fatalf("caller with a live context failed: %v", err)
	}
	if c.Text != "generated for tok-1" {
		t.Fatalf("unexpected text %q", c.Text)
	}

	if err := <-errA; err == nil {
		t.Fatal("expected the short-deadline caller to fail")
	}
	if got := f.exchanges.Load(); got != 1 {
		t.Fatalf("expected one shared exchange, got %d", got)
	}
}

func TestClampTemperature(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0.01},
		{-1, 0.01},
		{0.5, 0.5},
		{1, 1},
		{1.8, 1},
	}
	for _, tt := range tests {
		if got := clampTemperature(tt.in); got != tt.want {
			t.Fatalf("clampTemperature(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
