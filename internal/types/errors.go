package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Components MUST use these instead of hardcoded strings.
const (
	// Configuration
	ErrCodeConfigTemplateMissing ErrorCode = "config_template_missing"
	ErrCodeConfigInvalid         ErrorCode = "config_invalid"
	ErrCodeConfigInactive        ErrorCode = "config_notifier_inactive"

	// Collection
	ErrCodeCollectExtractor ErrorCode = "collect_extractor_failed"

	// Rendering
	ErrCodeRenderTemplateParse ErrorCode = "render_template_parse_failed"
	ErrCodeRenderExecute       ErrorCode = "render_execute_failed"

	// Archival
	ErrCodeArchiveWrite    ErrorCode = "archive_write_failed"
	ErrCodeArchiveCompress ErrorCode = "archive_compress_failed"
	ErrCodeArchiveSplit    ErrorCode = "archive_split_failed"

	// Dispatch
	ErrCodeDispatchQueueFull   ErrorCode = "dispatch_queue_full"
	ErrCodeDispatchRateLimited ErrorCode = "dispatch_rate_limited"
	ErrCodeDispatchClosed      ErrorCode = "dispatch_closed"

	// Internal/Upstream
	ErrCodeInternalUnexpected     ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamTrackerRejects ErrorCode = "upstream_tracker_rejected"
	ErrCodeUpstreamUnavailable    ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited    ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamStorage        ErrorCode = "upstream_storage_unavailable"
	ErrCodeUpstreamQueue          ErrorCode = "upstream_queue_unavailable"
)

// HTTPStatus maps an ErrorCode to an HTTP status code. The notifier never
// returns these to clients of the host application; the mapping is used when
// an AppError is surfaced by the demo server and in upstream error handling.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "config_"):
		return http.StatusInternalServerError
	case s == string(ErrCodeDispatchQueueFull), s == string(ErrCodeDispatchRateLimited):
		return http.StatusTooManyRequests
	case s == string(ErrCodeDispatchClosed):
		return http.StatusServiceUnavailable
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether an operation that failed with this code is
// worth retrying later (for example by redelivering an SQS message).
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeUpstreamUnavailable, ErrCodeUpstreamRateLimited, ErrCodeUpstreamQueue:
		return true
	default:
		return false
	}
}

// AppError is the standard error type. Components express failures as
// AppError so callers can branch on Code without string matching.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf extracts the ErrorCode from the first AppError in err's chain.
// Returns ErrCodeInternalUnexpected when no AppError is present.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}
