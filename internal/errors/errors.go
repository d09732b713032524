package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("timeout")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrUnsupported       = errors.New("unsupported by engine")
	ErrContractViolation = errors.New("collection contract violation")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeConnection  ErrorType = "connection"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeUnsupported ErrorType = "unsupported"
	ErrorTypeAPI         ErrorType = "api"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeDecode      ErrorType = "decode"
)

// EngineError is a structured error for container engine operations
type EngineError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "list_containers", "list_pods")
	Host       string // Engine endpoint the operation targeted
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Timestamp  time.Time
	Retryable  bool
}

func (e *EngineError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Host, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *EngineError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	case ErrUnsupported:
		return e.Type == ErrorTypeUnsupported
	}

	return errors.Is(e.Err, target)
}

// NewEngineError creates a new EngineError
func NewEngineError(errorType ErrorType, op, host string, err error) *EngineError {
	return &EngineError{
		Type:      errorType,
		Op:        op,
		Host:      host,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

// WithStatusCode adds HTTP status code to the error
func (e *EngineError) WithStatusCode(code int) *EngineError {
	e.StatusCode = code
	if code >= 500 || code == 429 || code == 408 {
		e.Retryable = true
	} else if code >= 400 && code < 500 {
		e.Retryable = false
	}
	return e
}

func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeConnection, ErrorTypeTimeout, ErrorTypeAPI:
		return true
	default:
		return false
	}
}

// WrapConnectionError wraps a connection error with context
func WrapConnectionError(op, host string, err error) error {
	return NewEngineError(ErrorTypeConnection, op, host, err)
}

// WrapAPIError wraps an API error with context
func WrapAPIError(op, host string, err error, statusCode int) error {
	return NewEngineError(ErrorTypeAPI, op, host, err).WithStatusCode(statusCode)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var engErr *EngineError
	if errors.As(err, &engErr) {
		return engErr.Retryable
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed)
}

// ContractError reports a lifecycle misuse of an observable collection:
// double add, remove without add, or emitting outside bootstrap..close.
type ContractError struct {
	Op     string
	Kind   string
	ID     string
	Reason string
}

func (e *ContractError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Kind, e.Op, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Op, e.Reason)
}

func (e *ContractError) Is(target error) bool {
	return target == ErrContractViolation
}
