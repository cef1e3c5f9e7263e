package apierrors

import (
	"net/http"
)

// Reason identifies why an authorization attempt was allowed or denied.
type Reason string

const (
	ReasonOK               Reason = "OK"
	ReasonMalformedToken   Reason = "MALFORMED_TOKEN"
	ReasonBadSignature     Reason = "BAD_SIGNATURE"
	ReasonExpired          Reason = "EXPIRED"
	ReasonIssuerMismatch   Reason = "ISSUER_MISMATCH"
	ReasonAudienceMismatch Reason = "AUDIENCE_MISMATCH"
	ReasonSubjectMismatch  Reason = "SUBJECT_MISMATCH"
	ReasonUserNotFound     Reason = "USER_NOT_FOUND"
	ReasonQuotaExceeded    Reason = "QUOTA_EXCEEDED"
	ReasonStorageFailure   Reason = "STORAGE_FAILURE"
)

// reasonMessages holds the human-readable detail for each reason.
var reasonMessages = map[Reason]string{
	ReasonOK:               "Request authorized",
	ReasonMalformedToken:   "Token is malformed or missing",
	ReasonBadSignature:     "Token signature verification failed",
	ReasonExpired:          "Token has expired",
	ReasonIssuerMismatch:   "Token issuer does not match",
	ReasonAudienceMismatch: "Token audience does not match",
	ReasonSubjectMismatch:  "Token subject does not match client id",
	ReasonUserNotFound:     "No quota record exists for this user",
	ReasonQuotaExceeded:    "API usage quota exceeded",
	ReasonStorageFailure:   "Quota storage is unavailable",
}

// Message returns the human-readable detail for the reason.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return "Unknown authorization failure"
}

// HTTPStatus maps a reason to the status the front end should return.
// Every legitimate denial is a 401-class response; only a storage
// fault is surfaced as an operational error instead.
func (r Reason) HTTPStatus() int {
	switch r {
	case ReasonOK:
		return http.StatusOK
	case ReasonStorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"
	ErrInvalidJSON      ErrorCode = "40003"

	// Authentication errors (401xx)
	ErrUnauthorized ErrorCode = "40101"

	// Resource errors (404xx)
	ErrPostNotFound ErrorCode = "40401"
	ErrUserNotFound ErrorCode = "40402"

	// Conflict errors (406xx, kept from the original API surface)
	ErrNotAcceptable ErrorCode = "40601"

	// Server errors (500xx)
	ErrInternalServer ErrorCode = "50001"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Common errors
var (
	ErrUnauthorizedError = &APIError{
		Code:       ErrUnauthorized,
		Message:    "API authentication failed",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrPostNotFoundError = &APIError{
		Code:       ErrPostNotFound,
		Message:    "Post not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrUserNotFoundError = &APIError{
		Code:       ErrUserNotFound,
		Message:    "User not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}
