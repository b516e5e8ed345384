package gateway

import (
	"net/http"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers/deepseek"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers/openai"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers/qwen"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers/wenxin"
)

// NewProvider resolves cfg.Provider to a concrete adapter. It validates the
// configuration and never performs network I/O; adapters authenticate lazily
// on their first Complete call.
func NewProvider(cfg providers.Config) (providers.Provider, error) {
	return newProvider(cfg, nil)
}

func newProvider(cfg providers.Config, httpClient *http.Client) (providers.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	switch cfg.Provider {
	case providers.OpenAI:
		return openai.New(cfg, openai.WithHTTPClient(httpClient)), nil
	case providers.Qwen:
		return qwen.New(cfg, qwen.WithHTTPClient(httpClient)), nil
	case providers.Wenxin:
		return wenxin.New(cfg, wenxin.WithHTTPClient(httpClient)), nil
	case providers.DeepSeek:
		return deepseek.New(cfg, deepseek.WithHTTPClient(httpClient)), nil
	}

	// Validate rejects unknown names; this keeps the switch exhaustive.
	return nil, &providers.Error{
		Kind:     providers.KindUnsupportedProvider,
		Provider: cfg.Provider,
		Message:  "unsupported AI provider",
	}
}
