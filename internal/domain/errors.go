package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error codes for the analytics API and diagnostics list.
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeDuplicateRecord     = "DUPLICATE_RECORD"
	ErrCodeInsufficientHistory = "INSUFFICIENT_HISTORY"
	ErrCodeMalformedSeries     = "MALFORMED_SERIES"
	ErrCodeInsufficientPeers   = "INSUFFICIENT_PEER_DATA"
	ErrCodeDatasetFetch        = "DATASET_FETCH_ERROR"
	ErrCodeDatabase            = "DATABASE_ERROR"
	ErrCodeInternal            = "INTERNAL_SERVER_ERROR"
	ErrCodeRateLimit           = "RATE_LIMIT_EXCEEDED"
)

// Series-level sentinel errors. A failed series is omitted from the response
// with a diagnostic; sibling series are unaffected.
var (
	ErrInsufficientHistory = errors.New("insufficient history for forecast")
	ErrMalformedSeries     = errors.New("series has duplicate or non-increasing periods")
)

// APIError is the standardized error envelope returned to callers.
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates an APIError with the current timestamp.
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError reports a problem local to a single raw record. It never
// aborts the batch; the offending record is rejected and reported.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// RequestError reports malformed request parameters. It aborts the whole
// request and maps to HTTP 400.
type RequestError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// NewRequestError creates a RequestError for the given field.
func NewRequestError(field, message string) *RequestError {
	return &RequestError{Field: field, Message: message}
}

// DiagnosticSeverity grades diagnostics surfaced alongside results.
type DiagnosticSeverity string

const (
	SeverityWarning DiagnosticSeverity = "WARNING"
	SeverityError   DiagnosticSeverity = "ERROR"
)

// Diagnostic is one entry of the response diagnostics list. Every rejected
// record, collapsed duplicate, skipped series and low-confidence downgrade
// produces exactly one diagnostic; nothing is silently swallowed.
type Diagnostic struct {
	Code       string             `json:"code"`
	Severity   DiagnosticSeverity `json:"severity"`
	Message    string             `json:"message"`
	ProviderID string             `json:"provider_id,omitempty"`
	SeriesID   string             `json:"series_id,omitempty"`
	Field      string             `json:"field,omitempty"`
}

// NewDiagnostic creates a diagnostic with the given code and severity.
func NewDiagnostic(code string, severity DiagnosticSeverity, message string) Diagnostic {
	return Diagnostic{Code: code, Severity: severity, Message: message}
}
