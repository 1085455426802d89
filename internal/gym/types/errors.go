package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode categorizes errors that escape the engine. Policy denials are
// never errors; they travel as ReasonCode values in a CheckInResponse.
type ErrorCode string

const (
	// Validation (400)
	ErrCodeValidationExternalKey  ErrorCode = "validation_invalid_external_key"
	ErrCodeValidationKioskID      ErrorCode = "validation_invalid_kiosk_id"
	ErrCodeValidationUnknownKiosk ErrorCode = "validation_unknown_kiosk"

	// Not Found (404)
	ErrCodeNotFoundMember ErrorCode = "not_found_member"

	// Upstream (503): a collaborator store could not be reached in time.
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_store_unavailable"
	ErrCodeUpstreamTimeout     ErrorCode = "upstream_timeout"

	// Internal (500)
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to the HTTP status used by the API layer.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the same request.
func (c ErrorCode) Retryable() bool {
	return strings.HasPrefix(string(c), "upstream_")
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) HTTPStatus() int { return e.Code.HTTPStatus() }

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}
