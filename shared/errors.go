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
	ErrorCategoryDatabase      ErrorCategory = "database"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryNotFound      ErrorCategory = "not_found"
	ErrorCategoryStateConflict ErrorCategory = "state_conflict"
	ErrorCategoryAuthorization ErrorCategory = "authorization"
	ErrorCategoryProcessing    ErrorCategory = "processing"
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

// NewNotFoundError reports a missing application, user or catalog entry.
func NewNotFoundError(code, message, serviceName, operation string) *ServiceError {
	return NewServiceError(ErrorCategoryNotFound, code, message, serviceName, operation, false, nil)
}

// NewStateConflictError reports an operation rejected by the current state,
// such as a second withdrawal.
func NewStateConflictError(code, message, serviceName, operation string) *ServiceError {
	return NewServiceError(ErrorCategoryStateConflict, code, message, serviceName, operation, false, nil)
}

// NewValidationError reports degenerate input.
func NewValidationError(code, message, serviceName, operation string) *ServiceError {
	return NewServiceError(ErrorCategoryValidation, code, message, serviceName, operation, false, nil)
}

// NewAuthorizationError reports access to another user's resources.
func NewAuthorizationError(code, message, serviceName, operation string) *ServiceError {
	return NewServiceError(ErrorCategoryAuthorization, code, message, serviceName, operation, false, nil)
}

// NewPersistenceError wraps a store failure.
func NewPersistenceError(cause error, serviceName, operation string) *ServiceError {
	if cause == nil {
		return nil
	}
	return NewServiceError(ErrorCategoryDatabase, "PERSISTENCE_FAILED", cause.Error(), serviceName, operation, true, cause)
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

// GetCategory returns the error category
func (e *ServiceError) GetCategory() ErrorCategory {
	return e.Category
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

// WrapError wraps an existing error with service error context
func WrapError(err error, category ErrorCategory, code, serviceName, operation string, retryable bool) *ServiceError {
	if err == nil {
		return nil
	}

	// If it's already a ServiceError, just update the context
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		serviceErr.ServiceName = serviceName
		serviceErr.Operation = operation
		return serviceErr
	}

	return NewServiceError(category, code, err.Error(), serviceName, operation, retryable, err)
}

// CategoryOf returns the category of the first ServiceError in err's chain.
func CategoryOf(err error) (ErrorCategory, bool) {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Category, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	c, ok := CategoryOf(err)
	return ok && c == ErrorCategoryNotFound
}

func IsStateConflict(err error) bool {
	c, ok := CategoryOf(err)
	return ok && c == ErrorCategoryStateConflict
}

func IsValidation(err error) bool {
	c, ok := CategoryOf(err)
	return ok && c == ErrorCategoryValidation
}

func IsAuthorization(err error) bool {
	c, ok := CategoryOf(err)
	return ok && c == ErrorCategoryAuthorization
}
