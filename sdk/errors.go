package krishichat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ErrorType is the canonical classification for API failures.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
)

// Error is a canonical API error returned by the advisory backend.
type Error struct {
	Type    ErrorType
	Message string
	Code    string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewInvalidRequestError creates an invalid-request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// TransportError represents HTTP transport-level failures (DNS, timeouts,
// connection reset, TLS handshake, etc.) while talking to the backend.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from canonical API errors (*Error).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}

// parseAPIError maps a non-OK backend response to a canonical *Error. The
// backend envelopes failures as {"success": false, "message": "..."}.
func parseAPIError(status int, body []byte) *Error {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	message := envelope.Message
	if message == "" {
		message = envelope.Error
	}
	if message == "" {
		message = http.StatusText(status)
	}

	errType := ErrAPI
	switch status {
	case http.StatusBadRequest:
		errType = ErrInvalidRequest
	case http.StatusUnauthorized:
		errType = ErrAuthentication
	case http.StatusForbidden:
		errType = ErrPermission
	case http.StatusNotFound:
		errType = ErrNotFound
	case http.StatusTooManyRequests:
		errType = ErrRateLimit
	}
	return &Error{Type: errType, Message: message, Code: fmt.Sprintf("http_%d", status)}
}
