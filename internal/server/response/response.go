// Package response provides standardized HTTP response structures and helpers
// for the syncflow API server. All API responses follow a consistent format
// with a data field for successful responses and an error field for failures.
package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/agentstation/syncflow/pkg/errors"
)

// Response represents the standardized API response structure.
// All endpoints return this format for consistency.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error represents an API error with code, message, and optional details.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Success creates a successful response with data.
func Success(data any) Response {
	return Response{
		Data:  data,
		Error: nil,
	}
}

// Fail creates an error response.
func Fail(code, message, details string) Response {
	return Response{
		Data: nil,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors are ignored as headers are already sent (best effort)
	_ = json.NewEncoder(w).Encode(resp)
}

// OK writes a successful response with 200 status.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Success(data))
}

// Created writes a successful response with 201 status.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Success(data))
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusBadRequest, Fail("BAD_REQUEST", message, details))
}

// Unauthorized writes a 401 error response.
func Unauthorized(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusUnauthorized, Fail("UNAUTHORIZED", message, details))
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusNotFound, Fail("NOT_FOUND", message, details))
}

// Accepted writes a successful response with 202 status.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, Success(data))
}

// Conflict writes a 409 error response.
func Conflict(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusConflict, Fail("CONFLICT", message, details))
}

// MethodNotAllowed writes a 405 error response.
func MethodNotAllowed(w http.ResponseWriter, method string) {
	JSON(w, http.StatusMethodNotAllowed, Fail(
		"METHOD_NOT_ALLOWED",
		"Method not allowed",
		"Method "+method+" is not supported for this endpoint",
	))
}

// RateLimited writes a 429 error response.
func RateLimited(w http.ResponseWriter, message string) {
	JSON(w, http.StatusTooManyRequests, Fail(
		"RATE_LIMITED",
		"Rate limit exceeded",
		message,
	))
}

// InternalError writes a 500 error response.
func InternalError(w http.ResponseWriter, _ error) {
	// Log the actual error but don't expose details to client
	// Note: Logging should be handled by middleware or passed via context
	JSON(w, http.StatusInternalServerError, Fail(
		"INTERNAL_ERROR",
		"Internal server error",
		"An unexpected error occurred",
	))
}

// ServiceUnavailable writes a 503 error response.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	JSON(w, http.StatusServiceUnavailable, Fail(
		"SERVICE_UNAVAILABLE",
		"Service unavailable",
		message,
	))
}

// ErrorFromType maps typed errors to appropriate HTTP responses. Engine
// state errors (a run already active, nothing to cancel, too late to
// cancel) are conflicts with the current state rather than bad input.
func ErrorFromType(w http.ResponseWriter, err error) {
	var apiErr *errors.APIError
	switch {
	case errors.IsNotFound(err):
		NotFound(w, err.Error(), "")
	case errors.IsValidationError(err):
		BadRequest(w, err.Error(), "")
	case stderrors.Is(err, errors.ErrRunInProgress),
		stderrors.Is(err, errors.ErrNotRunning),
		stderrors.Is(err, errors.ErrCancelRejected):
		Conflict(w, err.Error(), "")
	case stderrors.Is(err, errors.ErrClosed):
		ServiceUnavailable(w, err.Error())
	case stderrors.As(err, &apiErr):
		if apiErr.StatusCode >= 500 {
			InternalError(w, err)
		} else {
			BadRequest(w, apiErr.Error(), "")
		}
	default:
		InternalError(w, err)
	}
}
