package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Common domain errors that can occur while running and evaluating scenarios.
var (
	// ErrMissingConfiguration indicates that a required setting was absent or
	// empty in every configured secret source.
	ErrMissingConfiguration = errors.New("missing configuration")

	// ErrChatService indicates that the chat completion service failed to
	// produce a response.
	ErrChatService = errors.New("chat service error")

	// ErrEvaluator indicates that an evaluator could not produce its metric.
	ErrEvaluator = errors.New("evaluator error")

	// ErrMetricNotFound indicates that a requested metric does not exist in
	// an EvaluationResult.
	ErrMetricNotFound = errors.New("metric not found")

	// ErrDuplicateMetric indicates that a metric name was added twice to an
	// EvaluationResult.
	ErrDuplicateMetric = errors.New("duplicate metric")

	// ErrDuplicateEvaluator indicates that two evaluators in one gate claim
	// the same metric name.
	ErrDuplicateEvaluator = errors.New("duplicate evaluator metric name")

	// ErrEmptyValue indicates that a required value is empty or nil.
	ErrEmptyValue = errors.New("empty value")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// MissingConfigurationError lists every required setting that could not be
// resolved. It unwraps to ErrMissingConfiguration.
type MissingConfigurationError struct {
	// Keys are the names of the missing settings.
	Keys []string
}

// Error implements the error interface for MissingConfigurationError.
func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("missing configuration: %s", strings.Join(e.Keys, ", "))
}

// Unwrap returns ErrMissingConfiguration.
func (e *MissingConfigurationError) Unwrap() error { return ErrMissingConfiguration }

// ChatFailureKind classifies why a chat completion request failed.
type ChatFailureKind string

// Chat failure kinds.
const (
	ChatFailureUnknown        ChatFailureKind = "unknown"
	ChatFailureAuthentication ChatFailureKind = "authentication"
	ChatFailureNetwork        ChatFailureKind = "network"
	ChatFailureTimeout        ChatFailureKind = "timeout"
	ChatFailureCanceled       ChatFailureKind = "canceled"
	// ChatFailureStatus is any other non-success response from the service.
	ChatFailureStatus ChatFailureKind = "status"
)

// ChatFailure is implemented by client errors that already know how they
// failed, such as classified provider errors.
type ChatFailure interface {
	error
	ChatFailureKind() ChatFailureKind
	// HTTPStatus returns the response status code, or 0 when the request
	// never got a response.
	HTTPStatus() int
}

// ChatServiceError reports a failed chat completion request.
// Kind tells network failures, authentication failures and non-success
// responses apart.
type ChatServiceError struct {
	// Model is the model the request was sent to.
	Model string

	Kind ChatFailureKind

	// StatusCode is the HTTP status of the failed response, 0 if none.
	StatusCode int

	// Err is the underlying error returned by the client.
	Err error
}

// Error implements the error interface for ChatServiceError.
func (e *ChatServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("chat service error: model=%s, kind=%s, status=%d, err=%v", e.Model, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("chat service error: model=%s, kind=%s, err=%v", e.Model, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ChatServiceError) Unwrap() []error { return []error{ErrChatService, e.Err} }

// NewChatServiceError creates a ChatServiceError, classifying err.
func NewChatServiceError(model string, err error) *ChatServiceError {
	kind, status := ClassifyChatFailure(err)
	return &ChatServiceError{Model: model, Kind: kind, StatusCode: status, Err: err}
}

// ClassifyChatFailure returns the failure kind and HTTP status of a chat
// client error. A ChatFailure in the chain wins; otherwise context and
// network errors are recognized and anything else is ChatFailureUnknown.
func ClassifyChatFailure(err error) (ChatFailureKind, int) {
	var cf ChatFailure
	if errors.As(err, &cf) {
		return cf.ChatFailureKind(), cf.HTTPStatus()
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ChatFailureTimeout, 0
	case errors.Is(err, context.Canceled):
		return ChatFailureCanceled, 0
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return ChatFailureTimeout, 0
		}
		return ChatFailureNetwork, 0
	default:
		return ChatFailureUnknown, 0
	}
}

// EvaluatorError reports that an evaluator could not score a response,
// typically because its judge model call failed.
type EvaluatorError struct {
	// Metric is the name of the metric the evaluator was producing.
	Metric string

	// Stage describes what the evaluator was doing, e.g. "judge call" or
	// "parse response".
	Stage string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for EvaluatorError.
func (e *EvaluatorError) Error() string {
	return fmt.Sprintf("evaluator error: metric=%s, stage=%s, err=%v", e.Metric, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *EvaluatorError) Unwrap() []error { return []error{ErrEvaluator, e.Err} }

// NewEvaluatorError creates a new EvaluatorError.
func NewEvaluatorError(metric, stage string, err error) *EvaluatorError {
	return &EvaluatorError{Metric: metric, Stage: stage, Err: err}
}

// MetricError reports a failed lookup or insert on an EvaluationResult.
type MetricError struct {
	// Name is the metric name involved in the failed operation.
	Name string

	// Err is ErrMetricNotFound or ErrDuplicateMetric.
	Err error
}

// Error implements the error interface for MetricError.
func (e *MetricError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Name)
}

// Unwrap returns the underlying error.
func (e *MetricError) Unwrap() error { return e.Err }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap returns ErrInvalidConfiguration so validation failures can be
// matched with errors.Is.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
