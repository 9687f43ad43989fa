// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hypersignal/backend/internal/agent"
	"github.com/hypersignal/backend/internal/engine"
	"github.com/hypersignal/backend/internal/ingest"
	"github.com/hypersignal/backend/internal/metastore"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// MapDomainError converts pipeline errors into APIErrors with the error
// taxonomy codes the client dispatches on. Unrecognized errors become
// 500s without leaking internals.
func MapDomainError(err error) *APIError {
	var ingErr *ingest.IngestionError
	var genErr *agent.SQLGenerationError
	var synErr *engine.SyntaxError
	var toErr *engine.TimeoutError

	switch {
	case errors.Is(err, metastore.ErrNotFound):
		return &APIError{
			Status:  http.StatusNotFound,
			Code:    "NOT_FOUND",
			Message: "resource not found",
		}
	case errors.As(err, &ingErr):
		return &APIError{
			Status:  http.StatusBadRequest,
			Code:    "INGESTION_ERROR",
			Message: ingErr.Message,
		}
	case errors.As(err, &genErr):
		return &APIError{
			Status:  http.StatusUnprocessableEntity,
			Code:    "SQL_GENERATION_ERROR",
			Message: "could not generate SQL for the question",
			Details: genErr.Reason,
		}
	case errors.As(err, &synErr):
		return &APIError{
			Status:  http.StatusBadRequest,
			Code:    "QUERY_SYNTAX_ERROR",
			Message: synErr.Message,
		}
	case errors.As(err, &toErr):
		return &APIError{
			Status:  http.StatusGatewayTimeout,
			Code:    "QUERY_TIMEOUT",
			Message: toErr.Error(),
		}
	default:
		return NewInternalError("An unexpected error occurred", err)
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	switch e := err.(type) {
	case *APIError:
		apiErr = e
	case *echo.HTTPError:
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		apiErr = MapDomainError(err)
	}

	if !c.Response().Committed {
		c.JSON(apiErr.Status, apiErr)
	}
}
