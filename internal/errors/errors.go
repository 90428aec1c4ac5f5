package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/raid-tracker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents admin request errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryAuth represents upstream credential failures; fatal for the provider within an operation
	CategoryAuth ErrorCategory = "auth"
	// CategoryNotFound represents upstream or local not-found; providers treat it as no data
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryProvider represents other upstream failures (5xx, network, decode)
	CategoryProvider ErrorCategory = "provider"
	// CategoryResolution represents local resolution failures during catalog sync
	CategoryResolution ErrorCategory = "resolution"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryConflict represents conflicting operations
	CategoryConflict ErrorCategory = "conflict"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictError creates a conflict error; cause is the sentinel callers match with errors.Is
func NewConflictError(code string, message string, cause error) *CategorizedError {
	if code == "" {
		code = "CONFLICT"
	}
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       code,
		Message:    message,
		Cause:      cause,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Upstream provider errors

// NewProviderAuthError creates an upstream credential error
func NewProviderAuthError(provider types.Provider, status int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuth,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_AUTH",
		Message:    fmt.Sprintf("%s rejected credentials (status %d)", provider, status),
		Details: map[string]interface{}{
			"provider": string(provider),
			"status":   status,
		},
	}
}

// NewProviderNotFoundError creates an upstream not-found error
func NewProviderNotFoundError(provider types.Provider, resource string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "PROVIDER_NOT_FOUND",
		Message:    fmt.Sprintf("%s has no data for %s", provider, resource),
		Details: map[string]interface{}{
			"provider": string(provider),
			"resource": resource,
		},
	}
}

// NewProviderError creates a generic upstream failure
func NewProviderError(provider types.Provider, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("data provider error: %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": string(provider),
		},
	}
}

// NewProviderStatusError creates an upstream failure from an unexpected HTTP status
func NewProviderStatusError(provider types.Provider, status int, body string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("%s returned status %d: %s", provider, status, body),
		Details: map[string]interface{}{
			"provider": string(provider),
			"status":   status,
		},
	}
}

// NewResolutionError creates a local resolution error
func NewResolutionError(unit string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryResolution,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "RESOLUTION_FAILED",
		Message:    fmt.Sprintf("%s: %s", unit, reason),
		Details: map[string]interface{}{
			"unit": unit,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// IsConflict reports whether err rejects an operation already in progress
func IsConflict(err error) bool {
	return hasCategory(err, CategoryConflict)
}

func hasCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.Category == category
	}
	return false
}

// IsAuth reports whether err is an upstream credential failure
func IsAuth(err error) bool {
	return hasCategory(err, CategoryAuth)
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return hasCategory(err, CategoryNotFound)
}

// IsProvider reports whether err is a generic upstream failure
func IsProvider(err error) bool {
	return hasCategory(err, CategoryProvider)
}

// IsResolution reports whether err is a local resolution failure
func IsResolution(err error) bool {
	return hasCategory(err, CategoryResolution)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
