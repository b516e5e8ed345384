package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
)

// newQwenHandler simulates the DashScope text generation API.
func newQwenHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/services/aigc/text-generation/generation", func(w http.ResponseWriter, r *http.Request) {
		reqID := fmt.Sprintf("%x", rand.Int64())
		fail := func(status int, code, msg string) {
			writeJSON(w, status, map[string]string{"request_id": reqID, "code": code, "message": msg})
		}

		if r.Method != http.MethodPost {
			fail(http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
			return
		}
		if bearer(r) == "" {
			fail(http.StatusUnauthorized, "InvalidApiKey", "Invalid API-key provided.")
			return
		}
		applyLatency(cfg)
		if shouldThrottle(cfg) {
			fail(http.StatusTooManyRequests, "Throttling.RateQuota", "Requests rate limit exceeded, please try again later.")
			return
		}
		if shouldError(cfg) {
			fail(http.StatusInternalServerError, "InternalError", "mock internal error")
			return
		}

		var req struct {
			Model string `json:"model"`
			Input struct {
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			} `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Input.Messages) == 0 {
			fail(http.StatusBadRequest, "InvalidParameter", "input.messages is required")
			return
		}

		inTokens := 0
		for _, m := range req.Input.Messages {
			inTokens += approxTokens(m.Content)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"request_id": reqID,
			"output": map[string]string{
				"text":          fakeSentence(cfg.Words),
				"finish_reason": "stop",
			},
			"usage": map[string]int{
				"input_tokens":  inTokens,
				"output_tokens": cfg.Words,
				"total_tokens":  inTokens + cfg.Words,
			},
		})
	})

	return mux
}
