package errors

import "fmt"

// ErrorCode represents a Reverie error code.
type ErrorCode string

const (
	ErrValidation         ErrorCode = "VALIDATION"          // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrStorage            ErrorCode = "STORAGE"             // 500
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrGatewayUnavailable ErrorCode = "GATEWAY_UNAVAILABLE" // 503 (missing/invalid remote config)
	ErrGatewayHTTP        ErrorCode = "GATEWAY_HTTP"        // remote returned non-2xx
	ErrGatewayDecode      ErrorCode = "GATEWAY_DECODE"      // remote body failed to parse
)

// ReverieError represents a structured error with code, status, and details.
type ReverieError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ReverieError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidation creates a 400 error for invalid input.
// Validation failures are rejected synchronously and never persisted.
func NewValidation(msg string) *ReverieError {
	return &ReverieError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for an unknown turn id.
func NewNotFound(id string) *ReverieError {
	return &ReverieError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("turn not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewStorage creates a 500 error for persistence-layer failures.
func NewStorage(err error) *ReverieError {
	msg := "storage error"
	if err != nil {
		msg = err.Error()
	}
	return &ReverieError{
		Code:    ErrStorage,
		Status:  500,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ReverieError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ReverieError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// NewGatewayUnavailable creates an error for missing or invalid remote
// configuration. Callers short-circuit to local fallback content without
// attempting a request.
func NewGatewayUnavailable(msg string) *ReverieError {
	return &ReverieError{
		Code:    ErrGatewayUnavailable,
		Status:  503,
		Message: msg,
	}
}

// NewGatewayHTTP creates an error for a non-2xx remote response.
// Carries status code and raw body for diagnostics; never retried here.
func NewGatewayHTTP(status int, body string) *ReverieError {
	return &ReverieError{
		Code:    ErrGatewayHTTP,
		Status:  status,
		Message: fmt.Sprintf("gateway returned status %d", status),
		Details: map[string]any{"status": status, "body": body},
	}
}

// NewGatewayDecode creates an error for a remote body that failed to parse
// against the expected shape. Callers treat it like a network failure.
func NewGatewayDecode(err error) *ReverieError {
	msg := "failed to decode gateway response"
	if err != nil {
		msg = err.Error()
	}
	return &ReverieError{
		Code:    ErrGatewayDecode,
		Status:  502,
		Message: msg,
	}
}

// Is checks if an error is a ReverieError with the given code.
func Is(err error, code ErrorCode) bool {
	if rErr, ok := err.(*ReverieError); ok {
		return rErr.Code == code
	}
	return false
}
