package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthenticated indicates the API credential is missing, unknown or inactive
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRateLimited indicates the tenant exceeded its plan window
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrPayloadTooLarge indicates the upload exceeds the plan's size limit
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrBatchTooLarge indicates the batch exceeds the plan's item limit
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrUpstreamFailure indicates a pipeline stage call failed after retries
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrBridgeTimeout indicates the synchronous bridge wait bound was exceeded.
	// Distinct from ErrUpstreamFailure: the underlying job keeps running.
	ErrBridgeTimeout = errors.New("bridge timeout")

	// ErrInvalidTransition indicates an attempt to move a job status backwards
	// or out of a terminal state
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrVersionConflict indicates a concurrent job update won the race
	ErrVersionConflict = errors.New("version conflict")

	// ErrStoreUnconfigured indicates a required backing store or upstream
	// client was not wired for this deployment
	ErrStoreUnconfigured = errors.New("not configured")
)

// Stable API error codes. Clients branch on these, so they never change.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	CodeBatchTooLarge   = "BATCH_TOO_LARGE"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeNotFound        = "NOT_FOUND"
	CodeUpstreamFailure = "UPSTREAM_FAILURE"
	CodeTimeout         = "TIMEOUT"
)

// APIError is the structured error carried on the wire as
// {"error": ..., "code": ..., "details": ...}.
type APIError struct {
	Message string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError builds an APIError with optional details.
func NewAPIError(code, message string, details map[string]any) *APIError {
	return &APIError{Code: code, Message: message, Details: details}
}
