package shared

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryDatabase      ErrorCategory = "database"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryProcessing    ErrorCategory = "processing"
	ErrorCategoryResource      ErrorCategory = "resource"
	ErrorCategoryTimeout       ErrorCategory = "timeout"
)

// ServiceError represents a standardized error with additional context
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     interface{}   `json:"details,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(details interface{}) *ServiceError {
	e.Details = details
	return e
}

// IsRetryable returns whether the error is retryable
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"timestamp":        e.Timestamp,
		"details":          e.Details,
		"underlying_error": e.Cause,
	}).Error("Service error occurred")
}

// NewFetchError wraps a transient fetch failure (network, timeout,
// anti-bot block). Retryable: the dealer is skipped for this cycle and
// tried again on the next run.
func NewFetchError(operation, message string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryNetwork, "FETCH_FAILED", message, "FetcherService", operation, true, cause)
}

// NewValidationError wraps a per-field rule failure. Not retryable: the
// offer is dropped and the batch continues.
func NewValidationError(operation, message string) *ServiceError {
	return NewServiceError(ErrorCategoryValidation, "VALIDATION_REJECTED", message, "OfferValidator", operation, false, nil)
}

// NewReconcileError wraps a transactional write failure. The dealer's
// prior active offers remain untouched.
func NewReconcileError(operation, message string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryDatabase, "RECONCILE_FAILED", message, "OfferService", operation, false, cause)
}

// NewServiceUnavailableError signals that the backing store is
// unreachable at query time. Callers must surface this as a retryable
// condition distinct from an empty result set.
func NewServiceUnavailableError(serviceName, operation string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryDatabase, "SERVICE_UNAVAILABLE",
		"backend temporarily unavailable", serviceName, operation, true, cause)
}

// IsServiceUnavailable reports whether err is a retryable backend
// availability failure.
func IsServiceUnavailable(err error) bool {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code == "SERVICE_UNAVAILABLE"
	}
	return false
}
