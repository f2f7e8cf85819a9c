package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Failure taxonomy of the HTTP boundary. Callers branch with errors.Is;
// the boundary has already shown the user a notification by the time one
// of these is returned, but the error is always propagated so callers can
// run their own local recovery.
var (
	ErrNetwork            = errors.New("network error")
	ErrAuth               = errors.New("authentication error")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrAuth)
	ErrRefreshExpired     = fmt.Errorf("session expired: %w", ErrAuth)
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrServer             = errors.New("server error")
)

// StatusError keeps the transport detail behind a taxonomy sentinel.
type StatusError struct {
	Status  int
	Message string
	kind    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error { return e.kind }

func statusError(status int, message string, kind error) *StatusError {
	return &StatusError{Status: status, Message: message, kind: kind}
}

// errorMessage pulls a human-readable message out of an error response
// body. The stand-in (echo) answers {"message": ...}; other backends use
// {"error": ...} or {"errors": [...]}.
func errorMessage(body []byte) string {
	var payload struct {
		Message any      `json:"message"`
		Error   string   `json:"error"`
		Errors  []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Errors) > 0 {
			return strings.Join(payload.Errors, "; ")
		}
		switch m := payload.Message.(type) {
		case string:
			if m != "" {
				return m
			}
		case []any:
			parts := make([]string, 0, len(m))
			for _, p := range m {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return ""
}
