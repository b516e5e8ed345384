package main

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// fakeWords is a pool of words used to build mock responses.
var fakeWords = []string{
	"The", "post", "explains", "how", "to", "tune", "a", "blog", "for",
	"search", "engines", "Readers", "learn", "about", "caching", "and",
	"performance", "with", "clear", "examples", "from", "real", "projects",
	"This", "summary", "covers", "the", "key", "points", "briefly",
}

// fakeSentence returns a fake response text of roughly n words.
func fakeSentence(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fakeWords[rand.IntN(len(fakeWords))]
	}
	return strings.Join(words, " ") + "."
}

// applyLatency sleeps for the configured latency.
func applyLatency(cfg Config) {
	if cfg.LatencyMS > 0 {
		time.Sleep(time.Duration(cfg.LatencyMS) * time.Millisecond)
	}
}

func roll(rate float64) bool {
	return rate > 0 && rand.Float64() < rate
}

// shouldError returns true if this request should simulate a server error.
func shouldError(cfg Config) bool { return roll(cfg.ErrorRate) }

// shouldThrottle returns true if this request should simulate a rate limit.
func shouldThrottle(cfg Config) bool { return roll(cfg.ThrottleRate) }

// bearer returns the token of an "Authorization: Bearer" header.
func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the OpenAI-style error envelope.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, msg, typ string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{
		Message: msg,
		Type:    typ,
		Code:    strings.ToLower(strings.ReplaceAll(typ, " ", "_")),
	}})
}
