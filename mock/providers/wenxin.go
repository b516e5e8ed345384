package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// Wenxin error codes returned in a 200 body.
const (
	wenxinQPSLimit     = 18
	wenxinTokenInvalid = 110
	wenxinTokenExpired = 111
)

// tokenStore remembers issued access tokens and their expiry.
type tokenStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
}

func (s *tokenStore) issue(ttl time.Duration) string {
	tok := fmt.Sprintf("24.mock%x", rand.Int64())
	s.mu.Lock()
	s.tokens[tok] = time.Now().Add(ttl)
	s.mu.Unlock()
	return tok
}

// check returns 0 for a valid token or the vendor error code.
func (s *tokenStore) check(tok string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[tok]
	switch {
	case !ok:
		return wenxinTokenInvalid
	case time.Now().After(exp):
		delete(s.tokens, tok)
		return wenxinTokenExpired
	}
	return 0
}

// newWenxinHandler simulates the Baidu OAuth token endpoint and the ERNIE
// chat API.
func newWenxinHandler(cfg Config) http.Handler {
	tokens := &tokenStore{tokens: make(map[string]time.Time)}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /oauth/2.0/token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("grant_type") != "client_credentials" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unsupported_grant_type", "error_description": "grant type not supported",
			})
			return
		}
		if q.Get("client_id") == "" || q.Get("client_secret") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "invalid_client", "error_description": "unknown client id",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": tokens.issue(cfg.TokenTTL),
			"expires_in":   int64(cfg.TokenTTL.Seconds()),
			"scope":        "public brain_all_scope",
		})
	})

	mux.HandleFunc("POST /rpc/2.0/ai_custom/v1/wenxinworkshop/chat/{model}", func(w http.ResponseWriter, r *http.Request) {
		id := fmt.Sprintf("as-mock%x", rand.Int64())
		fail := func(code int, msg string) {
			writeJSON(w, http.StatusOK, map[string]any{"id": id, "error_code": code, "error_msg": msg})
		}

		if code := tokens.check(r.URL.Query().Get("access_token")); code != 0 {
			fail(code, "Access token invalid or no longer valid")
			return
		}
		applyLatency(cfg)
		if shouldThrottle(cfg) {
			fail(wenxinQPSLimit, "Open api qps request limit reached")
			return
		}
		if shouldError(cfg) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error_code": 336000, "error_msg": "Internal error"})
			return
		}

		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			Temperature float64 `json:"temperature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			fail(336003, "messages is empty")
			return
		}
		if req.Temperature < 0 || req.Temperature > 1 {
			fail(336003, "temperature must be in (0, 1]")
			return
		}

		inTokens := 0
		for _, m := range req.Messages {
			inTokens += approxTokens(m.Content)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      id,
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"result":  fakeSentence(cfg.Words),
			"usage": map[string]int{
				"prompt_tokens":     inTokens,
				"completion_tokens": cfg.Words,
				"total_tokens":      inTokens + cfg.Words,
			},
		})
	})

	return mux
}
