// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package clierr provides error classification and user-friendly error formatting for the CLI.
// It helps distinguish between different error types and provides actionable hints.
package clierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/confighub/hero-scout/internal/config"
	"github.com/confighub/hero-scout/pkg/heroku"
)

// Common error types for CLI output.
const (
	TypeNotFound    = "not_found"    // App, dyno or formation not found
	TypeForbidden   = "forbidden"    // Missing or rejected API key
	TypeRateLimited = "rate_limited" // API call budget exhausted
	TypeNetwork     = "network"      // Connection/network errors
	TypeInternal    = "internal"     // Internal/unexpected errors
	TypeValidation  = "validation"   // Input validation errors
)

// IsForbidden checks if the error is an authentication or authorization failure.
func IsForbidden(err error) bool {
	if err == nil {
		return false
	}
	switch heroku.StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "unauthorized")
}

// IsNotFound checks if the error indicates a missing resource.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if heroku.StatusCode(err) == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "couldn't find")
}

// IsRateLimited checks if the API refused the call for exceeding the rate limit.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if heroku.StatusCode(err) == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

// IsNetworkError checks if the error is a connection/network error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "context deadline exceeded")
}

// ClassifyError determines the type of error for appropriate handling.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if IsForbidden(err) {
		return TypeForbidden
	}
	if IsRateLimited(err) {
		return TypeRateLimited
	}
	if IsNotFound(err) {
		return TypeNotFound
	}
	if IsNetworkError(err) {
		return TypeNetwork
	}
	if heroku.StatusCode(err) == http.StatusUnprocessableEntity {
		return TypeValidation
	}
	return TypeInternal
}

// Pretty formats an error with a user-friendly message and actionable hints.
func Pretty(err error) string {
	if err == nil {
		return ""
	}

	baseMsg := err.Error()

	switch ClassifyError(err) {
	case TypeForbidden:
		return fmt.Sprintf("Access denied: %s\n\nHint: Check your API key:\n"+
			"  - export %s=<token> (heroku auth:token prints one)\n"+
			"  - or set api.key in %s", baseMsg, config.EnvAPIKey, config.DefaultPath())

	case TypeRateLimited:
		return fmt.Sprintf("Rate limited: %s\n\nHint: Lower api.calls_per_minute in %s", baseMsg, config.DefaultPath())

	case TypeNotFound:
		return fmt.Sprintf("Not found: %s", baseMsg)

	case TypeNetwork:
		return fmt.Sprintf("Connection error: %s\n\nHint: Check your connectivity:\n"+
			"  - api.url in %s must be reachable\n"+
			"  - try --demo to explore without an account", baseMsg, config.DefaultPath())

	case TypeValidation:
		return fmt.Sprintf("Rejected: %s", baseMsg)

	default:
		return fmt.Sprintf("Error: %s", baseMsg)
	}
}

// WrapWithHint wraps an error with an additional hint message.
func WrapWithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w\n\nHint: %s", err, hint)
}

// NothingFound returns a user-friendly message when a listing is empty.
// This is different from an error - it's a valid "empty" result.
func NothingFound(resource string) string {
	return fmt.Sprintf("No %s found.\n\n"+
		"This might mean:\n"+
		"  - The account has no %s yet\n"+
		"  - The API key belongs to a different account", resource, resource)
}

// Unwrap returns the underlying error, stripping any wrapper.
func Unwrap(err error) error {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}
