package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	// Retryable marks failures of a collaborator that may succeed on a later attempt.
	Retryable bool
	Err       error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewUpstreamError reports an identity provider failure. The cause is kept for
// logging only and never rendered to the caller.
func NewUpstreamError(err error, retryable bool) error {
	return &DomainError{
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    "identity provider unavailable",
		HTTPStatus: http.StatusBadGateway,
		Retryable:  retryable,
		Err:        err,
	}
}

// NewStoreError reports a document store failure.
func NewStoreError(err error, retryable bool) error {
	return &DomainError{
		Code:       "STORE_UNAVAILABLE",
		Message:    "storage unavailable",
		HTTPStatus: http.StatusInternalServerError,
		Retryable:  retryable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}

// IsCode reports whether err carries the given DomainError code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsRetryable reports whether err is a transient collaborator failure.
func IsRetryable(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	return false
}

// Envelope is the success body returned for every operation.
type Envelope struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
}

// ErrorBody carries the machine readable part of an error envelope.
type ErrorBody struct {
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

// ErrorEnvelope is the body returned for every failed operation.
type ErrorEnvelope struct {
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	Error      ErrorBody `json:"error"`
}

// Success builds a success envelope.
func Success(status int, message string, data any) Envelope {
	return Envelope{StatusCode: status, Message: message, Data: data}
}

// Failure builds the error envelope for err. Details of 5xx errors are never exposed.
func Failure(err error) ErrorEnvelope {
	domainErr := ToDomainError(err)
	details := domainErr.Details
	if domainErr.HTTPStatus >= http.StatusInternalServerError || details == nil {
		details = map[string]any{}
	}
	return ErrorEnvelope{
		StatusCode: domainErr.HTTPStatus,
		Message:    domainErr.Message,
		Error:      ErrorBody{Code: domainErr.Code, Details: details},
	}
}
