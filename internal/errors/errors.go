package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"pvcli/internal/envelope"
	"pvcli/internal/license"
	"pvcli/internal/security"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// FieldError represents a single failed request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details any) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined error types for common scenarios
var (
	// 400 Bad Request
	ErrInvalidRequest   = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrValidationFailed = New(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed")

	// 401 Unauthorized
	ErrUnauthorized = New(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")

	// 404 Not Found
	ErrNotFound = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")

	// 422 Unprocessable Entity — the license text could not be read at all
	ErrFraming    = New(http.StatusUnprocessableEntity, "FRAMING_ERROR", "License boundary markers are missing or malformed")
	ErrDecryption = New(http.StatusUnprocessableEntity, "DECRYPTION_FAILED", "License could not be decrypted")
	ErrParse      = New(http.StatusUnprocessableEntity, "PARSE_ERROR", "License payload is not well-formed")

	// 403 Forbidden — the license was read but does not grant access
	ErrLicenseInvalid = New(http.StatusForbidden, "VALIDATION_FAILED", "License record is invalid")
	ErrLicenseExpired = New(http.StatusForbidden, "LICENSE_EXPIRED", "License has expired")

	// 429 Too Many Requests
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")

	// 500 Internal Server Error
	ErrInternalServer = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	ErrKeyMaterial    = New(http.StatusInternalServerError, "KEY_MATERIAL_ERROR", "Key material could not be loaded")

	// 503 Service Unavailable
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
)

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// ErrValidation creates a validation error with field details
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", FieldError{
		Field:   field,
		Message: message,
	})
}

// FromImportError maps a typed license pipeline error to its API form.
// Framing, decryption, and parse failures mean the submitted text is not a
// license; key material failures are the server's fault, not the client's.
func FromImportError(err error) *APIError {
	var frameErr *envelope.FramingError
	if errors.As(err, &frameErr) {
		return NewWithDetails(ErrFraming.StatusCode, ErrFraming.ErrorCode, ErrFraming.Message, frameErr.Reason)
	}
	var decErr *security.DecryptionError
	if errors.As(err, &decErr) {
		return ErrDecryption
	}
	var parseErr *license.ParseError
	if errors.As(err, &parseErr) {
		return NewWithDetails(ErrParse.StatusCode, ErrParse.ErrorCode, ErrParse.Message, parseErr.Reason)
	}
	var keyErr *security.KeySourceError
	if errors.As(err, &keyErr) {
		return ErrKeyMaterial
	}
	return NewWithDetails(ErrInternalServer.StatusCode, ErrInternalServer.ErrorCode, ErrInternalServer.Message, err.Error())
}

// FromValidationError maps a license record validation failure to its API
// form, carrying the failing rule as detail.
func FromValidationError(err error) *APIError {
	var valErr *license.ValidationError
	if errors.As(err, &valErr) {
		return NewWithDetails(ErrLicenseInvalid.StatusCode, ErrLicenseInvalid.ErrorCode, ErrLicenseInvalid.Message, valErr.Reason)
	}
	return NewWithDetails(ErrLicenseInvalid.StatusCode, ErrLicenseInvalid.ErrorCode, ErrLicenseInvalid.Message, err.Error())
}

// NotFoundError creates a not found error with details
func NotFoundError(resource string) *APIError {
	return NewWithDetails(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource), resource)
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err *APIError) *ErrorResponse {
	return &ErrorResponse{
		Success: false,
		Error:   err,
	}
}

// Render implements the render.Renderer interface
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return e.Error.Render(w, r)
}

// NewValidationErrors creates a validation error from multiple fields
func NewValidationErrors(fields []FieldError) *APIError {
	return NewWithDetails(
		http.StatusBadRequest,
		"VALIDATION_FAILED",
		"Request validation failed",
		map[string][]FieldError{"errors": fields},
	)
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	json.NewEncoder(w).Encode(NewErrorResponse(err))
}

// NewInternalError creates a simple internal server error
func NewInternalError(message string) *APIError {
	return New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message)
}
