// Package errors provides custom error types for the syncflow system.
// These errors enable better error handling, programmatic error checking,
// and improved debugging throughout the application.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the syncflow system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrRateLimited indicates that a remote rate limit has been exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrSourceUnavailable indicates that a source is temporarily unavailable
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRunInProgress indicates a trigger arrived while another run was active
	ErrRunInProgress = errors.New("run already in progress")

	// ErrNotRunning indicates an operation that needs an active run found none
	ErrNotRunning = errors.New("no run in progress")

	// ErrCancelRejected indicates the active run is past the point where it can be canceled
	ErrCancelRejected = errors.New("run can no longer be canceled")

	// ErrAllSourcesFailed indicates no source produced a snapshot
	ErrAllSourcesFailed = errors.New("all sources failed")

	// ErrUnresolved indicates a field conflict could not be resolved
	ErrUnresolved = errors.New("unresolved conflict")

	// ErrSealed indicates an attempt to modify a sealed run report
	ErrSealed = errors.New("report sealed")

	// ErrClosed indicates the engine was closed
	ErrClosed = errors.New("engine closed")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// NormalizationError is raised for a raw record that cannot be turned into a
// canonical record. The record is skipped; the run continues.
type NormalizationError struct {
	SourceID    string
	RecordIndex int
	Field       string
	Reason      string
	Err         error
}

// Error implements the error interface
func (e *NormalizationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("normalize %s record %d field %s: %s", e.SourceID, e.RecordIndex, e.Field, e.Reason)
	}
	return fmt.Sprintf("normalize %s record %d: %s", e.SourceID, e.RecordIndex, e.Reason)
}

// Unwrap implements errors.Unwrap
func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *NormalizationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewNormalizationError creates a new NormalizationError
func NewNormalizationError(sourceID string, index int, field, reason string) *NormalizationError {
	return &NormalizationError{
		SourceID:    sourceID,
		RecordIndex: index,
		Field:       field,
		Reason:      reason,
	}
}

// DuplicateRecordError flags a source that reported the same entity key
// more than once in a single snapshot.
type DuplicateRecordError struct {
	SourceID  string
	EntityKey string
	Count     int
}

// Error implements the error interface
func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("source %s reported entity %q %d times, kept last observed", e.SourceID, e.EntityKey, e.Count)
}

// NewDuplicateRecordError creates a new DuplicateRecordError
func NewDuplicateRecordError(sourceID, entityKey string, count int) *DuplicateRecordError {
	return &DuplicateRecordError{SourceID: sourceID, EntityKey: entityKey, Count: count}
}

// SourceFetchError represents a source that failed to produce a snapshot.
type SourceFetchError struct {
	SourceID string
	Timeout  time.Duration
	TimedOut bool
	Err      error
}

// Error implements the error interface
func (e *SourceFetchError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("fetch from source %s timed out after %s", e.SourceID, e.Timeout)
	}
	return fmt.Sprintf("fetch from source %s failed: %v", e.SourceID, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *SourceFetchError) Is(target error) bool {
	return e.TimedOut && target == ErrTimeout
}

// NewSourceFetchError creates a new SourceFetchError
func NewSourceFetchError(sourceID string, timeout time.Duration, timedOut bool, err error) *SourceFetchError {
	return &SourceFetchError{
		SourceID: sourceID,
		Timeout:  timeout,
		TimedOut: timedOut,
		Err:      err,
	}
}

// UnresolvedConflictError represents a field conflict no rule could settle.
type UnresolvedConflictError struct {
	EntityKey string
	Field     string
	Reason    string
}

// Error implements the error interface
func (e *UnresolvedConflictError) Error() string {
	return fmt.Sprintf("unresolved conflict on %s.%s: %s", e.EntityKey, e.Field, e.Reason)
}

// Is implements errors.Is support
func (e *UnresolvedConflictError) Is(target error) bool {
	return target == ErrUnresolved
}

// NewUnresolvedConflictError creates a new UnresolvedConflictError
func NewUnresolvedConflictError(entityKey, field, reason string) *UnresolvedConflictError {
	return &UnresolvedConflictError{EntityKey: entityKey, Field: field, Reason: reason}
}

// PublishError represents a failed write of the merged dataset.
type PublishError struct {
	Destination string
	Err         error
}

// Error implements the error interface
func (e *PublishError) Error() string {
	if e.Destination != "" {
		return fmt.Sprintf("publish to %s failed: %v", e.Destination, e.Err)
	}
	return fmt.Sprintf("publish failed: %v", e.Err)
}

// Unwrap implements errors.Unwrap
func (e *PublishError) Unwrap() error {
	return e.Err
}

// NewPublishError creates a new PublishError
func NewPublishError(destination string, err error) *PublishError {
	return &PublishError{Destination: destination, Err: err}
}

// AllSourcesFailedError is the run-level fatal error raised when no
// configured source produced a snapshot.
type AllSourcesFailedError struct {
	Sources []string
	Errs    []error
}

// Error implements the error interface
func (e *AllSourcesFailedError) Error() string {
	if len(e.Sources) == 0 {
		return "all sources failed: no sources configured"
	}
	return fmt.Sprintf("all sources failed: %s", strings.Join(e.Sources, ", "))
}

// Unwrap implements multi-error unwrapping
func (e *AllSourcesFailedError) Unwrap() []error {
	return e.Errs
}

// Is implements errors.Is support
func (e *AllSourcesFailedError) Is(target error) bool {
	return target == ErrAllSourcesFailed
}

// NewAllSourcesFailedError creates a new AllSourcesFailedError
func NewAllSourcesFailedError(sources []string, errs []error) *AllSourcesFailedError {
	return &AllSourcesFailedError{Sources: sources, Errs: errs}
}

// APIError represents an error from a remote source API
type APIError struct {
	Source     string
	StatusCode int
	Message    string
	Endpoint   string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error from %s (status %d): %s", e.Source, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error from %s: %s", e.Source, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *APIError) Is(target error) bool {
	if e.StatusCode == 429 {
		return target == ErrRateLimited
	}
	if e.StatusCode >= 500 {
		return target == ErrSourceUnavailable
	}
	return false
}

// NewAPIError creates a new APIError
func NewAPIError(source string, statusCode int, message string) *APIError {
	return &APIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml", "csv", etc.
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "create", "delete", "open", "close"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// ResourceError represents an error during resource operations
type ResourceError struct {
	Operation string // "create", "record", "query", "fetch"
	Resource  string // "run", "source", "override", "history"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// TimeoutError represents an operation timeout
type TimeoutError struct {
	Operation string
	Duration  string
	Message   string
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	if e.Duration != "" {
		return fmt.Sprintf("operation %s timed out after %s: %s", e.Operation, e.Duration, e.Message)
	}
	return fmt.Sprintf("operation %s timed out: %s", e.Operation, e.Message)
}

// Is implements errors.Is support
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(operation, duration, message string) *TimeoutError {
	return &TimeoutError{
		Operation: operation,
		Duration:  duration,
		Message:   message,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsRunInProgress checks if a trigger was rejected because a run is active
func IsRunInProgress(err error) bool {
	return errors.Is(err, ErrRunInProgress)
}

// IsCancelRejected checks if a cancel arrived after publishing began
func IsCancelRejected(err error) bool {
	return errors.Is(err, ErrCancelRejected)
}

// IsAllSourcesFailed checks if a run failed because no source succeeded
func IsAllSourcesFailed(err error) bool {
	return errors.Is(err, ErrAllSourcesFailed)
}

// IsUnresolved checks if an error marks an unresolved field conflict
func IsUnresolved(err error) bool {
	return errors.Is(err, ErrUnresolved)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}
