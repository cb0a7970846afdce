// Package errs provides the structured error envelope shared by dex proxy venues.
package errs

import (
	"net/http"
	"strconv"
	"strings"
)

// Code identifies a venue-agnostic error category.
type Code string

const (
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeExchange indicates the venue answered with an error status.
	CodeExchange Code = "exchange_error"
	// CodeNetwork indicates a network transport failure.
	CodeNetwork Code = "network"
	// CodeUnavailable indicates the venue client is not ready to serve requests.
	CodeUnavailable Code = "unavailable"
	// CodeNotConfigured indicates a required endpoint or setting is missing.
	CodeNotConfigured Code = "not_configured"
	// CodeInternal indicates an unexpected failure inside the proxy.
	CodeInternal Code = "internal"
)

// CanonicalCode captures exchange-agnostic error categories.
type CanonicalCode string

const (
	// CanonicalUnknown captures uncategorized failures.
	CanonicalUnknown CanonicalCode = "unknown"
	// CanonicalCapabilityMissing indicates the venue lacks the required capability.
	CanonicalCapabilityMissing CanonicalCode = "capability_missing"
)

// E captures a normalized failure: the HTTP status relayed to the caller, a message, and the
// original upstream body when one exists.
type E struct {
	Venue     string
	Code      Code
	HTTP      int
	Message   string
	Payload   any
	Canonical CanonicalCode

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the venue and error code.
func New(venue string, code Code, opts ...Option) *E {
	e := &E{
		Venue:     strings.TrimSpace(venue),
		Code:      code,
		HTTP:      0,
		Message:   "",
		Payload:   nil,
		Canonical: CanonicalUnknown,
		cause:     nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithPayload keeps the original error body returned by the venue.
func WithPayload(payload any) Option {
	return func(e *E) {
		e.Payload = payload
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithCanonicalCode sets the canonical error code describing the failure category.
func WithCanonicalCode(code CanonicalCode) Option {
	trimmed := strings.TrimSpace(string(code))
	return func(e *E) {
		if trimmed == "" {
			e.Canonical = CanonicalUnknown
			return
		}
		e.Canonical = CanonicalCode(trimmed)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	venue := strings.TrimSpace(e.Venue)
	if venue == "" {
		venue = "unknown"
	}
	parts = append(parts, "venue="+venue)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if cc := strings.TrimSpace(string(e.Canonical)); cc != "" && cc != string(CanonicalUnknown) {
		parts = append(parts, "canonical="+cc)
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Status returns the HTTP status relayed to callers, defaulting to 500.
func (e *E) Status() int {
	if e == nil || e.HTTP <= 0 {
		return http.StatusInternalServerError
	}
	return e.HTTP
}

// Response renders the caller-facing error body. The payload key is present only when the venue
// returned one.
func (e *E) Response() map[string]any {
	message := ""
	if e != nil {
		message = e.Message
		if message == "" {
			message = e.Error()
		}
	}
	detail := map[string]any{"message": message}
	if e != nil && e.Payload != nil {
		detail["payload"] = e.Payload
	}
	return map[string]any{"error": detail}
}

// Body builds an error body carrying only a message.
func Body(message string) map[string]any {
	return map[string]any{"error": map[string]any{"message": message}}
}

// NotSupported returns a standardized error for unsupported capabilities.
func NotSupported(msg string) *E {
	return New("", CodeExchange,
		WithMessage(strings.TrimSpace(msg)),
		WithHTTP(http.StatusNotImplemented),
		WithCanonicalCode(CanonicalCapabilityMissing))
}
