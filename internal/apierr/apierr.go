// Package apierr defines the uniform error shape every failed BFF call collapses into.
package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Stable, machine-facing error codes.
const (
	CodeUnauthenticated  = "unauthenticated"
	CodeNotFound         = "upstream_not_found"
	CodeUpstreamFailure  = "upstream_failure"
	CodeMalformedInput   = "malformed_input"
	CodeTransportFailure = "transport_failure"
	CodeRateLimited      = "rate_limited"
)

// GenericMessage is returned whenever the real cause must not reach the client.
const GenericMessage = "Something went wrong. Please try again."

// Error is a client-safe error with an HTTP status.
type Error struct {
	HTTPStatus int
	Message    string
	Code       string
	cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Code, e.HTTPStatus, e.Message, e.cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// MarshalJSON encodes only the client-facing fields.
func (e *Error) MarshalJSON() ([]byte, error) {
	body := struct {
		Error string `json:"error"`
		Code  string `json:"code,omitempty"`
	}{Error: e.Message, Code: e.Code}
	return json.Marshal(body)
}

// Unauthorized is returned when no credential could be resolved.
func Unauthorized() *Error {
	return &Error{HTTPStatus: http.StatusUnauthorized, Message: "Unauthorized", Code: CodeUnauthenticated}
}

// NotFound surfaces an upstream 404 for single-entity endpoints.
func NotFound(message string) *Error {
	if message == "" {
		message = "Not found"
	}
	return &Error{HTTPStatus: http.StatusNotFound, Message: message, Code: CodeNotFound}
}

// BadRequest rejects caller input before any backend call.
func BadRequest(message string) *Error {
	return &Error{HTTPStatus: http.StatusBadRequest, Message: message, Code: CodeMalformedInput}
}

// TooManyRequests rejects a caller that exceeded a velocity limit.
func TooManyRequests(message string) *Error {
	return &Error{HTTPStatus: http.StatusTooManyRequests, Message: message, Code: CodeRateLimited}
}

// Upstream maps a non-2xx backend status. Statuses outside 4xx/5xx become 500.
func Upstream(status int, message string) *Error {
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	if message == "" {
		message = GenericMessage
	}
	return &Error{HTTPStatus: status, Message: message, Code: CodeUpstreamFailure}
}

// Transport wraps network, timeout and decode failures. The cause is kept for logs only.
func Transport(cause error) *Error {
	return &Error{
		HTTPStatus: http.StatusInternalServerError,
		Message:    GenericMessage,
		Code:       CodeTransportFailure,
		cause:      cause,
	}
}

// Write encodes err as the JSON response body.
func Write(w http.ResponseWriter, err *Error) {
	if err == nil {
		err = Transport(nil)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	_ = json.NewEncoder(w).Encode(err)
}
