package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// newChatHandler simulates the OpenAI chat completions API. DeepSeek speaks
// the same wire format, so both vendors share it.
func newChatHandler(cfg Config, defaultModel string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
			return
		}
		if bearer(r) == "" {
			writeError(w, http.StatusUnauthorized, "missing API key", "invalid_api_key")
			return
		}
		applyLatency(cfg)
		if shouldThrottle(cfg) {
			writeError(w, http.StatusTooManyRequests, "rate limit reached for requests", "rate_limit_exceeded")
			return
		}
		if shouldError(cfg) {
			writeError(w, http.StatusInternalServerError, "mock internal server error", "server_error")
			return
		}

		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request")
			return
		}
		if req.Stream {
			writeError(w, http.StatusBadRequest, "streaming is not supported by this mock", "invalid_request")
			return
		}
		if len(req.Messages) == 0 {
			writeError(w, http.StatusBadRequest, "messages must not be empty", "invalid_request")
			return
		}

		model := req.Model
		if model == "" {
			model = defaultModel
		}

		inTokens := 0
		for _, m := range req.Messages {
			inTokens += approxTokens(m.Content)
		}
		outTokens := cfg.Words

		writeJSON(w, http.StatusOK, map[string]any{
			"id":      fmt.Sprintf("chatcmpl-mock%x", rand.Int64()),
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   model,
			"choices": []map[string]any{
				{
					"index": 0,
					"message": map[string]string{
						"role":    "assistant",
						"content": fakeSentence(cfg.Words),
					},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{
				"prompt_tokens":     inTokens,
				"completion_tokens": outTokens,
				"total_tokens":      inTokens + outTokens,
			},
		})
	})

	return mux
}

// approxTokens estimates four characters per token, at least one.
func approxTokens(s string) int {
	return len(s)/4 + 1
}
