// Package apierr writes the JSON error envelope returned by the assist API
// and maps gateway error kinds to HTTP statuses.
package apierr

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
)

// ErrorType constants.
const (
	TypeProviderError     = "provider_error"
	TypeRateLimitError    = "rate_limit_error"
	TypeInvalidRequest    = "invalid_request_error"
	TypeAuthenticationErr = "authentication_error"
	TypeConfigurationErr  = "configuration_error"
	TypeServerError       = "server_error"
)

// Code constants.
const (
	CodeRateLimitExceeded   = "rate_limit_exceeded"
	CodeInvalidAPIKey       = "invalid_api_key"
	CodeInternalError       = "internal_error"
	CodeProviderError       = "provider_error"
	CodeRequestTimeout      = "request_timeout"
	CodeInvalidRequest      = "invalid_request"
	CodeMalformedResponse   = "malformed_response"
	CodeNotConfigured       = "not_configured"
	CodeUnsupportedProvider = "unsupported_provider"
	CodeUpstreamUnreachable = "upstream_unreachable"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
		// Detail carries the vendor-specific message for operators.
		Detail  string `json:"detail,omitempty"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	write(ctx, status, APIError{Message: message, Type: errType, Code: code})
}

func write(ctx *fasthttp.RequestCtx, status int, e APIError) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: e})
	ctx.SetBody(body)
}

// Mapping is the HTTP rendering of one error kind.
type Mapping struct {
	Status int
	Type   string
	Code   string
}

var kindMappings = map[providers.Kind]Mapping{
	providers.KindConfiguration:       {fasthttp.StatusServiceUnavailable, TypeConfigurationErr, CodeNotConfigured},
	providers.KindUnsupportedProvider: {fasthttp.StatusServiceUnavailable, TypeConfigurationErr, CodeUnsupportedProvider},
	providers.KindAuth:                {fasthttp.StatusBadGateway, TypeAuthenticationErr, CodeInvalidAPIKey},
	providers.KindRateLimit:           {fasthttp.StatusTooManyRequests, TypeRateLimitError, CodeRateLimitExceeded},
	providers.KindTimeout:             {fasthttp.StatusGatewayTimeout, TypeProviderError, CodeRequestTimeout},
	providers.KindMalformedResponse:   {fasthttp.StatusBadGateway, TypeProviderError, CodeMalformedResponse},
	providers.KindTransport:           {fasthttp.StatusBadGateway, TypeProviderError, CodeUpstreamUnreachable},
	providers.KindProvider:            {fasthttp.StatusBadGateway, TypeProviderError, CodeProviderError},
}

// MappingFor returns the HTTP rendering of kind.
func MappingFor(kind providers.Kind) Mapping {
	if m, ok := kindMappings[kind]; ok {
		return m
	}
	return Mapping{fasthttp.StatusInternalServerError, TypeServerError, CodeInternalError}
}

// WriteGatewayError renders err from the gateway.
//
//	configuration, unsupported provider → 503
//	vendor rate limit                   → 429 + Retry-After: 60
//	timeout                             → 504
//	auth, malformed, transport, other   → 502
//
// Configuration errors surface their message verbatim; every other kind gets
// the friendly message, with the vendor detail attached.
func WriteGatewayError(ctx *fasthttp.RequestCtx, err error) {
	kind := providers.KindOf(err)
	m := MappingFor(kind)

	e := APIError{Type: m.Type, Code: m.Code}
	switch kind {
	case providers.KindConfiguration, providers.KindUnsupportedProvider:
		e.Message = errorMessage(err)
	default:
		e.Message = providers.FriendlyMessage(kind)
		e.Detail = errorMessage(err)
	}

	if m.Status == fasthttp.StatusTooManyRequests {
		ctx.Response.Header.Set("Retry-After", "60")
	}
	write(ctx, m.Status, e)
}

func errorMessage(err error) string {
	var pe *providers.Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}

// WriteBadRequest writes a 400 invalid request error.
func WriteBadRequest(ctx *fasthttp.RequestCtx, msg string) {
	Write(ctx, fasthttp.StatusBadRequest, msg, TypeInvalidRequest, CodeInvalidRequest)
}

// WriteRateLimit writes a 429 rate limit error.
func WriteRateLimit(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Retry-After", "60")
	Write(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded", TypeRateLimitError, CodeRateLimitExceeded)
}
