package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"auth status", errors.New("API error: 401 unauthorized"), KindAuth},
		{"auth message", errors.New("invalid x-api-key"), KindAuth},
		{"rate limit", errors.New("429 rate limit exceeded"), KindRateLimit},
		{"overloaded", errors.New("overloaded_error: try again"), KindRateLimit},
		{"timeout", errors.New("request timeout"), KindTransient},
		{"connection", errors.New("dial tcp: connection refused"), KindTransient},
		{"bad gateway", errors.New("upstream returned 502"), KindTransient},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"invalid request", errors.New("400 invalid_request_error"), KindInvalidRequest},
		{"context length", errors.New("prompt exceeds maximum context length"), KindInvalidRequest},
		{"unknown", errors.New("something odd"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("anthropic", tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, "anthropic", got.ProviderID)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify("openai", nil))
}

func TestClassify_AlreadyClassified(t *testing.T) {
	orig := &Error{Kind: KindRateLimit, ProviderID: "openai", Err: errors.New("429")}
	wrapped := fmt.Errorf("stream failed: %w", orig)

	got := Classify("anthropic", wrapped)
	assert.Equal(t, KindRateLimit, got.Kind)
	assert.Equal(t, "openai", got.ProviderID)
}
