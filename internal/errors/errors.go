// Package errors defines the categorized error taxonomy of the
// reconciliation core. The category decides whether a failure aborts the
// fetch cycle (source unavailability, persistence) or is absorbed locally
// with documented defaults (partial resolution, data shape anomalies).
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/portfolio-reconciler/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategorySourceUnavailable means a data collaborator cannot be reached
	// at all; fatal for the current fetch cycle
	CategorySourceUnavailable ErrorCategory = "source_unavailable"
	// CategoryPartialResolution means an individual token's metadata or
	// price could not be resolved; non-fatal, defaults substituted
	CategoryPartialResolution ErrorCategory = "partial_resolution"
	// CategoryDataShape means a raw record is missing an expected field;
	// the record is excluded with a warning
	CategoryDataShape ErrorCategory = "data_shape"
	// CategoryPersistence means the ledger or snapshot could not be
	// written; fatal, breaks the audit-trail guarantee
	CategoryPersistence ErrorCategory = "persistence"
	// CategoryValidation represents invalid input to the status API
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents missing resources on the status API
	CategoryNotFound ErrorCategory = "not_found"
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

// NewSourceUnavailableError creates a fatal source-unavailable error
func NewSourceUnavailableError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySourceUnavailable,
		StatusCode: http.StatusBadGateway,
		Code:       "SOURCE_UNAVAILABLE",
		Message:    fmt.Sprintf("data source unreachable: %s", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewResolutionError creates a non-fatal partial resolution error
func NewResolutionError(chain types.ChainID, address string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPartialResolution,
		StatusCode: http.StatusBadGateway,
		Code:       "RESOLUTION_FAILED",
		Message:    fmt.Sprintf("failed to resolve token %s on %s", address, chain),
		Cause:      cause,
		Details: map[string]interface{}{
			"chain":   string(chain),
			"address": address,
		},
	}
}

// NewDataShapeError creates an error for a raw record missing an expected field
func NewDataShapeError(field string, record string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDataShape,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "DATA_SHAPE_ANOMALY",
		Message:    fmt.Sprintf("raw record %s is missing field %s", record, field),
		Details: map[string]interface{}{
			"field":  field,
			"record": record,
		},
	}
}

// NewPersistenceError creates a fatal persistence error
func NewPersistenceError(target string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPersistence,
		StatusCode: http.StatusInternalServerError,
		Code:       "PERSISTENCE_FAILED",
		Message:    fmt.Sprintf("failed to persist %s", target),
		Cause:      cause,
		Details: map[string]interface{}{
			"target": target,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
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

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return &CategorizedError{
		Category:   CategorySourceUnavailable,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    "unexpected error",
		Cause:      err,
	}
}

// IsFatal reports whether an error must abort the current fetch cycle.
// Source unavailability and persistence failures escalate; everything else
// is absorbed at the wallet/chain task boundary.
func IsFatal(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategorySourceUnavailable, CategoryPersistence:
		return true
	default:
		return false
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
