// Package providers defines the common contract used by all upstream LLM
// vendor adapters (OpenAI, Qwen, Wenxin and DeepSeek).
//
// Each vendor lives in its own sub-package and implements Provider. Only
// Complete varies between vendors; prompt templating, error classification
// and the timeout/retry policy are shared and live here.
package providers

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by the factory.
const (
	OpenAI   = "openai"
	Qwen     = "qwen"
	Wenxin   = "wenxin"
	DeepSeek = "deepseek"
)

// Known lists every supported provider name in display order.
var Known = []string{OpenAI, Qwen, Wenxin, DeepSeek}

// IsKnown reports whether name is one of the supported providers.
func IsKnown(name string) bool {
	for _, k := range Known {
		if k == name {
			return true
		}
	}
	return false
}

// Operation identifies the assist feature a completion is generated for.
type Operation string

const (
	OpSummary           Operation = "summary"
	OpWritingSuggestion Operation = "writing_suggestion"
	OpSEO               Operation = "seo"
	OpCompletion        Operation = "completion"
)

type (
	// Config is the active provider configuration resolved from the settings
	// store. It is read-only to the gateway.
	Config struct {
		Provider    string
		APIKey      string
		SecretKey   string // wenxin only
		TokenURL    string // wenxin only; empty uses the public OAuth endpoint
		BaseURL     string
		Model       string
		Temperature float64
		MaxTokens   int
		Enabled     bool
	}

	// Request is a single prompt sent to the upstream vendor.
	Request struct {
		Prompt    string
		Operation Operation
		RequestID string
	}

	// Usage is the token accounting reported by the vendor.
	Usage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}

	// Completion is the normalized vendor response.
	Completion struct {
		Text  string
		Model string
		Usage Usage
	}
)

// Provider is an upstream vendor adapter.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req *Request) (*Completion, error)
}

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// Validate checks the configuration before any adapter is built.
func (c Config) Validate() error {
	if !IsKnown(c.Provider) {
		return &Error{
			Kind:     KindUnsupportedProvider,
			Provider: c.Provider,
			Message:  fmt.Sprintf("unsupported AI provider %q (supported: %s)", c.Provider, strings.Join(Known, ", ")),
		}
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return Configuration(c.Provider, "API key is not configured")
	}
	if c.Provider == Wenxin && strings.TrimSpace(c.SecretKey) == "" {
		return Configuration(c.Provider, "secret key is required for the token exchange")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return Configuration(c.Provider, fmt.Sprintf("temperature must be within [0,2], got %g", c.Temperature))
	}
	if c.MaxTokens <= 0 {
		return Configuration(c.Provider, fmt.Sprintf("max tokens must be positive, got %d", c.MaxTokens))
	}
	return nil
}
