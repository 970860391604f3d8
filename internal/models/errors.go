package models

import (
	"errors"
	"fmt"
)

// Error codes shared by the API client and the sync engines.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeNetwork              = "NETWORK_ERROR"
	CodeTimeout              = "TIMEOUT"
	CodeConflict             = "CONFLICT"
	CodeAlreadyLiked         = "ALREADY_LIKED"
	CodeAlreadyDisliked      = "ALREADY_DISLIKED"
	CodeMutualFollowRequired = "MUTUAL_FOLLOW_REQUIRED"
	CodeInternal             = "INTERNAL_ERROR"
)

// ErrorResponse is the JSON error body returned by the platform API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Text returns the most descriptive message in the body.
func (r ErrorResponse) Text() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// AppError represents a classified client error
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewNetworkError(err error) *AppError {
	return &AppError{
		Code:    CodeNetwork,
		Message: "Network request failed",
		Err:     err,
	}
}

func NewTimeoutError(err error) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: "Request timed out",
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal error",
		Err:     err,
	}
}

// CodeOf returns the AppError code found in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsValidation reports whether err was rejected before any network call.
func IsValidation(err error) bool { return HasCode(err, CodeValidation) }

// IsAuth reports whether err needs the user to authenticate again.
func IsAuth(err error) bool {
	code := CodeOf(err)
	return code == CodeUnauthorized || code == CodeForbidden
}

// IsRetryable reports whether a manual retry may succeed.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeNetwork, CodeTimeout:
		return true
	}
	return false
}
