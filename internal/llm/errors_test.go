package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), false},
		{"overloaded", errors.New("HTTP 529: overloaded_error"), false},
		{"server error", errors.New("HTTP 500: internal server error"), false},
		{"deadline", errors.New("context deadline exceeded"), false},
		{"rate limit text", errors.New("Rate limit reached for requests"), true},
		{"429 status", errors.New("HTTP 429: Too Many Requests"), true},
		{"quota", errors.New("monthly quota exhausted"), true},
		{"credit balance", errors.New("Your credit balance is too low"), true},
		{"bad key", errors.New("invalid API key"), true},
		{"401 status", errors.New("HTTP 401"), true},
		{"403 status", errors.New("bedrock: 403 AccessDenied"), true},
		{"status inside a number", errors.New("request id 14290 failed"), false},
		{"wrapped", fmt.Errorf("report phase: %w", errors.New("rate limit exceeded")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, isFatalAPIError(tt.err))
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	assert.NoError(t, wrapFatalError(nil))

	transient := errors.New("connection reset")
	assert.Same(t, transient, wrapFatalError(transient))

	limited := errors.New("HTTP 429: slow down")
	wrapped := wrapFatalError(limited)
	assert.ErrorIs(t, wrapped, ErrFatalAPI)
	assert.ErrorIs(t, wrapped, limited)
	assert.Contains(t, wrapped.Error(), "slow down")
}
