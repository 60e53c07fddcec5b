// Package agent – errors.go classifies provider and tool errors into the
// coarse kinds the loop and the retry wrapper act on. Classification is
// case-insensitive substring matching over the error text, which is the only
// reliable signal across providers and proxies.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the coarse classification of a run error.
type ErrorKind string

const (
	ErrorKindRateLimit       ErrorKind = "rate_limit"
	ErrorKindAuth            ErrorKind = "auth"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindBilling         ErrorKind = "billing"
	ErrorKindFormat          ErrorKind = "format"
	ErrorKindContextOverflow ErrorKind = "context_overflow"
	ErrorKindCancelled       ErrorKind = "cancelled"
	ErrorKindToolFailure     ErrorKind = "tool_failure"
	ErrorKindUnknown         ErrorKind = "unknown"
)

// ErrTokenBudgetTooSmall is returned when a run is refused because the
// configured context window is below the hard floor.
var ErrTokenBudgetTooSmall = errors.New("token budget below minimum context window")

// RunError carries a classified kind alongside the underlying error so
// callers can branch without re-classifying.
type RunError struct {
	Kind ErrorKind
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// NewRunError wraps err with its classified kind.
func NewRunError(kind ErrorKind, err error) *RunError {
	return &RunError{Kind: kind, Err: err}
}

// KindOf returns the classified kind of err, preferring an explicit RunError
// kind when present.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	if IsCancellation(err) {
		return ErrorKindCancelled
	}
	if IsContextOverflow(err) {
		return ErrorKindContextOverflow
	}
	return ClassifyErrorText(err.Error())
}

// classifyPatterns maps each kind to the lowercase substrings that select
// it. Order matters: earlier kinds win when patterns overlap.
var classifyOrder = []ErrorKind{
	ErrorKindRateLimit,
	ErrorKindBilling,
	ErrorKindAuth,
	ErrorKindTimeout,
	ErrorKindFormat,
}

var classifyPatterns = map[ErrorKind][]string{
	ErrorKindRateLimit: {
		"rate limit", "rate_limit", "too many requests", "429", "overloaded",
	},
	ErrorKindBilling: {
		"billing", "credit balance", "insufficient credit", "payment required", "402",
	},
	ErrorKindAuth: {
		"401", "403", "unauthorized", "forbidden", "invalid api key",
		"authentication", "permission_error",
	},
	ErrorKindTimeout: {
		"timeout", "timed out", "deadline exceeded", "etimedout", "504",
	},
	ErrorKindFormat: {
		"invalid request", "invalid_request_error", "bad request", "400", "malformed",
	},
}

// ClassifyErrorText maps a free-form error string to one of rate_limit,
// auth, timeout, billing, format, or unknown.
func ClassifyErrorText(text string) ErrorKind {
	lower := strings.ToLower(text)
	for _, kind := range classifyOrder {
		for _, pat := range classifyPatterns[kind] {
			if strings.Contains(lower, pat) {
				return kind
			}
		}
	}
	return ErrorKindUnknown
}

// IsContextOverflow reports whether the error indicates the request exceeded
// the model's context window. Overflow is detected separately from the
// general classifier because it triggers compaction rather than retry or
// failure.
func IsContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "request too large") ||
		strings.Contains(lower, "context length exceeded") ||
		strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "prompt is too long") {
		return true
	}
	return strings.Contains(lower, "413") && strings.Contains(lower, "too large")
}

// IsCancellation reports whether the error stems from context cancellation.
// Deadline expiry is a timeout, not a cancellation.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsFailoverKind reports whether a kind should trigger provider rotation in
// a multi-provider deployment. Timeouts are excluded: a slow response is not
// evidence the provider is down.
func IsFailoverKind(kind ErrorKind) bool {
	switch kind {
	case ErrorKindRateLimit, ErrorKindAuth, ErrorKindBilling, ErrorKindFormat:
		return true
	default:
		return false
	}
}
