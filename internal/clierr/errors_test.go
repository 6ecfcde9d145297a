// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package clierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/confighub/hero-scout/pkg/heroku"
)

func apiErr(status int, id string) error {
	return fmt.Errorf("list apps: %w", &heroku.APIError{StatusCode: status, ID: id, Message: http.StatusText(status)})
}

func TestIsForbidden(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "401 from API",
			err:      apiErr(http.StatusUnauthorized, "unauthorized"),
			expected: true,
		},
		{
			name:     "403 from API",
			err:      apiErr(http.StatusForbidden, "forbidden"),
			expected: true,
		},
		{
			name:     "error with access denied",
			err:      errors.New("access denied to resource"),
			expected: true,
		},
		{
			name:     "regular error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsForbidden(tt.err)
			if got != tt.expected {
				t.Errorf("IsForbidden() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "404 from API",
			err:      apiErr(http.StatusNotFound, "not_found"),
			expected: true,
		},
		{
			name:     "API message",
			err:      errors.New("Couldn't find that app."),
			expected: true,
		},
		{
			name:     "regular not found message",
			err:      errors.New("dyno not found"),
			expected: true,
		},
		{
			name:     "regular error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNotFound(tt.err)
			if got != tt.expected {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp 127.0.0.1:443: connection refused"),
			expected: true,
		},
		{
			name:     "no such host",
			err:      errors.New("dial tcp: lookup api.heroku.local: no such host"),
			expected: true,
		},
		{
			name:     "wrapped deadline",
			err:      fmt.Errorf("list dynos: %w", context.DeadlineExceeded),
			expected: true,
		},
		{
			name:     "i/o timeout",
			err:      errors.New("read tcp 192.168.1.1:443: i/o timeout"),
			expected: true,
		},
		{
			name:     "regular error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNetworkError(tt.err)
			if got != tt.expected {
				t.Errorf("IsNetworkError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "forbidden error",
			err:      apiErr(http.StatusForbidden, "forbidden"),
			expected: TypeForbidden,
		},
		{
			name:     "rate limited",
			err:      apiErr(http.StatusTooManyRequests, "rate_limit"),
			expected: TypeRateLimited,
		},
		{
			name:     "not found error",
			err:      apiErr(http.StatusNotFound, "not_found"),
			expected: TypeNotFound,
		},
		{
			name:     "validation error",
			err:      apiErr(http.StatusUnprocessableEntity, "invalid_params"),
			expected: TypeValidation,
		},
		{
			name:     "network error",
			err:      errors.New("connection refused"),
			expected: TypeNetwork,
		},
		{
			name:     "internal error",
			err:      errors.New("unexpected error"),
			expected: TypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got != tt.expected {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPretty(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantContain string
	}{
		{
			name:        "nil error",
			err:         nil,
			wantContain: "",
		},
		{
			name:        "forbidden error includes API key hint",
			err:         apiErr(http.StatusUnauthorized, "unauthorized"),
			wantContain: "HEROKU_API_KEY",
		},
		{
			name:        "rate limit includes budget hint",
			err:         apiErr(http.StatusTooManyRequests, "rate_limit"),
			wantContain: "calls_per_minute",
		},
		{
			name:        "network error includes connectivity hint",
			err:         errors.New("connection refused"),
			wantContain: "connectivity",
		},
		{
			name:        "other errors get a prefix",
			err:         errors.New("boom"),
			wantContain: "Error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pretty(tt.err)
			if !strings.Contains(got, tt.wantContain) {
				t.Errorf("Pretty() = %q, want to contain %q", got, tt.wantContain)
			}
		})
	}
}

func TestWrapWithHint(t *testing.T) {
	if WrapWithHint(nil, "x") != nil {
		t.Error("WrapWithHint(nil) should be nil")
	}
	base := errors.New("dyno not found")
	wrapped := WrapWithHint(base, "run 'hero-scout dyno formation <app>'")
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should match base")
	}
	if !strings.Contains(wrapped.Error(), "Hint: run") {
		t.Errorf("missing hint: %q", wrapped.Error())
	}
	if Unwrap(wrapped) != base {
		t.Error("Unwrap should return the innermost error")
	}
}

func TestNothingFound(t *testing.T) {
	result := NothingFound("apps")
	if !strings.Contains(result, "apps") {
		t.Errorf("NothingFound() should contain resource name")
	}
	if !strings.HasPrefix(result, "No ") {
		t.Errorf("NothingFound() should start with 'No '")
	}
}
