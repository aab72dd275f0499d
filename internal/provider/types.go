// Package provider adapts upstream generation APIs to the chat pipeline.
//
// Two text paths exist: a chat-history path through langchaingo's Google AI
// client, and a direct REST path against the generateContent endpoint used
// for the pro model. Both normalize errors so the retry scheduler can tell
// throttling apart from everything else.
package provider

import (
	"errors"
	"fmt"
	"strings"
)

// StatusError is a non-2xx response from an upstream API.
type StatusError struct {
	// StatusCode is the HTTP status returned by the provider.
	StatusCode int

	// Message is the provider's error text, possibly truncated.
	Message string
}

// Error returns the status error message.
func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// IsThrottle reports whether an error represents upstream or local rate
// limiting. Besides explicit 429 responses, provider SDK errors are matched
// on their message because the underlying status is not always exposed.
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 429 {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "Rate limit exceeded")
}
