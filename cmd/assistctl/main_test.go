package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/nulpointcorp/blog-ai-gateway/internal/history"
)

func run(t *testing.T, cmdName string, args ...string) (string, error) {
	t.Helper()
	cmd := map[string]func() *cobra.Command{
		"complete":  newCompleteCmd,
		"summarize": newSummarizeCmd,
		"models":    newModelsCmd,
		"history":   newHistoryCmd,
	}[cmdName]()

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func openAIStub(t *testing.T, prompts *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if n := len(body.Messages); n > 0 {
			*prompts = append(*prompts, body.Messages[n-1].Content)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"stub answer"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func useOpenAI(t *testing.T, srv *httptest.Server) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("AI_API_KEY", "test-key")
	t.Setenv("AI_BASE_URL", srv.URL+"/v1")
	t.Setenv("AI_MAX_RETRIES", "0")
}

func TestCompleteCmd(t *testing.T) {
	var prompts []string
	useOpenAI(t, openAIStub(t, &prompts))

	out, err := run(t, "complete", "write", "a", "haiku")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if strings.TrimSpace(out) != "stub answer" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(prompts) != 1 || prompts[0] != "write a haiku" {
		t.Fatalf("unexpected upstream prompts %v", prompts)
	}
}

func TestSummarizeCmd_TemplateAndJSON(t *testing.T) {
	var prompts []string
	useOpenAI(t, openAIStub(t, &prompts))

	out, err := run(t, "summarize", "--template", "TL;DR: {content}", "--json", "long post")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	var gen struct {
		Text       string `json:"text"`
		Provider   string `json:"provider"`
		TokensUsed int    `json:"tokens_used"`
	}
	if err := json.Unmarshal([]byte(out), &gen); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if gen.Text != "stub answer" || gen.Provider != "openai" || gen.TokensUsed != 5 {
		t.Fatalf("unexpected generation %+v", gen)
	}
	if len(prompts) != 1 || prompts[0] != "TL;DR: long post" {
		t.Fatalf("unexpected upstream prompts %v", prompts)
	}
}

func TestCompleteCmd_DisabledIsConfigurationError(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AI_ENABLED", "false")

	_, err := run(t, "complete", "hi")
	if err == nil || !strings.Contains(err.Error(), "configuration") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestModelsCmd(t *testing.T) {
	out, err := run(t, "models", "--provider", "deepseek")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if !strings.Contains(out, "deepseek-chat") || strings.Contains(out, "gpt-4o") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestHistoryCmd(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	dsn := filepath.Join(dir, "history.db")
	t.Setenv("HISTORY_DSN", dsn)

	store, err := history.OpenSQLite(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_, err = store.Insert(context.Background(), history.Entry{
		UserID: "editor-1", Type: history.TypeSEO, Prompt: "p", Result: "r",
		TokensUsed: 42, Model: "qwen-plus", Provider: "qwen", CreatedAt: time.Now(),
	})
	_ = store.Close()
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	out, err := run(t, "history", "-n", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"editor-1", "seo", "qwen-plus", "42"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
