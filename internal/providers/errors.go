package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"unicode/utf8"
)

// Kind classifies a gateway failure.
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindUnsupportedProvider Kind = "unsupported_provider"
	KindAuth                Kind = "auth"
	KindRateLimit           Kind = "rate_limit"
	KindTimeout             Kind = "timeout"
	KindMalformedResponse   Kind = "malformed_response"
	KindTransport           Kind = "transport"
	KindProvider            Kind = "provider"
)

// Transport error codes. The first four form the retry allow-list.
const (
	CodeAborted      = "ECONNABORTED"
	CodeTimedOut     = "ETIMEDOUT"
	CodeHostNotFound = "ENOTFOUND"
	CodeReset        = "ECONNRESET"
	CodeRefused      = "ECONNREFUSED"
)

const maxPayloadLog = 512

// Error is the single error type surfaced by the gateway. Callers classify it
// with errors.As and map Kind to a transport-facing status.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Payload    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.Payload != "" {
		msg += ": " + Truncate(e.Payload)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus implements StatusCoder.
func (e *Error) HTTPStatus() int { return e.StatusCode }

// KindOf returns the Kind of err, or KindTransport for unclassified errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransport
}

// Configuration builds a KindConfiguration error.
func Configuration(provider, msg string) *Error {
	return &Error{Kind: KindConfiguration, Provider: provider, Message: msg}
}

// Malformed builds a KindMalformedResponse error carrying the raw payload.
func Malformed(provider, msg string, payload []byte) *Error {
	return &Error{Kind: KindMalformedResponse, Provider: provider, Message: msg, Payload: string(payload)}
}

// Timeout builds a KindTimeout error.
func Timeout(provider string, err error) *Error {
	return &Error{
		Kind:     KindTimeout,
		Provider: provider,
		Code:     CodeTimedOut,
		Message:  "request to AI service timed out",
		Err:      err,
	}
}

// FromStatus maps a non-2xx vendor response to an Error.
func FromStatus(provider string, status int, body []byte) *Error {
	e := &Error{Provider: provider, StatusCode: status, Payload: string(body)}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Kind = KindAuth
		e.Message = "authentication with AI service failed"
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimit
		e.Message = "AI service rate limit exceeded, back off and retry later"
	default:
		e.Kind = KindProvider
		e.Message = fmt.Sprintf("AI service returned status %d", status)
	}
	return e
}

// ClassifyTransport converts a network-level failure into an Error with a
// transport code. Errors that are already classified pass through unchanged.
func ClassifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return Timeout(provider, err)
	}

	e := &Error{Kind: KindTransport, Provider: provider, Message: "network error calling AI service", Err: err}

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		e.Code = CodeHostNotFound
	case errors.Is(err, syscall.ECONNRESET):
		e.Code = CodeReset
	case errors.Is(err, syscall.ECONNABORTED), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		e.Code = CodeAborted
	case errors.Is(err, syscall.ECONNREFUSED):
		e.Code = CodeRefused
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Kind = KindTimeout
		e.Code = CodeTimedOut
		e.Message = "request to AI service timed out"
	}
	return e
}

// Truncate caps a vendor payload for logs and error messages.
func Truncate(payload string) string {
	if len(payload) <= maxPayloadLog {
		return payload
	}
	cut := maxPayloadLog
	for cut > 0 && !utf8.RuneStart(payload[cut]) {
		cut--
	}
	return payload[:cut] + "...(truncated)"
}

var friendlyMessages = map[Kind]string{
	KindConfiguration:       "AI assistant is not configured. Please contact an administrator.",
	KindUnsupportedProvider: "The configured AI provider is not supported.",
	KindAuth:                "AI service credentials are invalid or expired.",
	KindRateLimit:           "AI service is busy right now. Please try again in a moment.",
	KindTimeout:             "AI service took too long to respond. Please try again.",
	KindMalformedResponse:   "AI service returned an unexpected response.",
	KindTransport:           "Could not reach the AI service. Please check the network and try again.",
	KindProvider:            "AI service failed to process the request.",
}

// FriendlyMessage returns user-facing text for kind that does not leak
// vendor internals.
func FriendlyMessage(kind Kind) string {
	if msg, ok := friendlyMessages[kind]; ok {
		return msg
	}
	return "AI generation failed."
}
