package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindAuth           Kind = "auth"
	KindRateLimit      Kind = "rate-limit"
	KindTransient      Kind = "transient"
	KindInvalidRequest Kind = "invalid-request"
	KindUnknown        Kind = "unknown"
)

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	ProviderID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.ProviderID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify wraps a backend error with a failure kind. Backend SDKs do not
// expose a uniform error taxonomy, so classification falls back to message
// inspection.
func Classify(providerID string, err error) *Error {
	if err == nil {
		return nil
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}

	kind := KindUnknown

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		kind = KindTransient
	default:
		msg := strings.ToLower(err.Error())
		switch {
		case containsAny(msg, "401", "403", "unauthorized", "invalid x-api-key", "authentication", "api key"):
			kind = KindAuth
		case containsAny(msg, "429", "rate limit", "rate_limit", "overloaded", "quota"):
			kind = KindRateLimit
		case containsAny(msg, "timeout", "connection refused", "connection reset", "unexpected eof", "502", "503", "504", "temporarily unavailable"):
			kind = KindTransient
		case containsAny(msg, "400", "invalid_request", "invalid request", "context length", "maximum context"):
			kind = KindInvalidRequest
		}
	}

	return &Error{Kind: kind, ProviderID: providerID, Err: err}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
