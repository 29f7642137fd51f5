package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

// Common errors returned by the LLM client and providers.
var (
	// ErrEmptyAPIKey indicates that an API key was required but not provided.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse indicates that the provider's API returned an empty or nil response body.
	ErrEmptyResponse = errors.New("empty response from API")
	// ErrNoResponseChoice indicates that the provider's response contained no valid choices.
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType categorizes a provider failure. Its value is also the status
// label recorded for failed chat requests.
type ErrorType string

// Provider error types. ErrorTypeUnknown is empty so it never appears as a
// label or in messages.
const (
	ErrorTypeUnknown        ErrorType = ""
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeBadRequest     ErrorType = "bad_request"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeServerError    ErrorType = "server_error"
	ErrorTypeContentPolicy  ErrorType = "content_policy"
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeTimeout        ErrorType = "timeout"
)

// transientTypes are worth retrying.
var transientTypes = map[ErrorType]bool{
	ErrorTypeRateLimit:   true,
	ErrorTypeServerError: true,
	ErrorTypeNetwork:     true,
	ErrorTypeTimeout:     true,
}

// ProviderError is a provider failure normalized across SDKs. It satisfies
// domain.ChatFailure, so a ChatServiceError built from it carries the
// provider's classification.
type ProviderError struct {
	Type     ErrorType
	Provider string
	// StatusCode is the HTTP status of the provider response, 0 if none.
	StatusCode int
	Message    string
	// WrappedError is the SDK or transport error.
	WrappedError error
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

// Error renders as "azure error (HTTP 429) [rate_limit]: message: cause".
func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" error")
	if e.StatusCode > 0 {
		b.WriteString(" (HTTP " + strconv.Itoa(e.StatusCode) + ")")
	}
	if e.Type != ErrorTypeUnknown {
		b.WriteString(" [" + string(e.Type) + "]")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.WrappedError != nil {
		b.WriteString(": " + e.WrappedError.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.WrappedError }

// IsRetryable reports whether the failure is transient. Caller cancellation
// never is.
func (e *ProviderError) IsRetryable() bool {
	return transientTypes[e.Type] && !errors.Is(e.WrappedError, context.Canceled)
}

// ChatFailureKind maps the provider classification onto the kinds a
// domain.ChatServiceError reports.
func (e *ProviderError) ChatFailureKind() domain.ChatFailureKind {
	switch {
	case errors.Is(e.WrappedError, context.Canceled):
		return domain.ChatFailureCanceled
	case e.Type == ErrorTypeAuthentication:
		return domain.ChatFailureAuthentication
	case e.Type == ErrorTypeTimeout:
		return domain.ChatFailureTimeout
	case e.Type == ErrorTypeNetwork:
		return domain.ChatFailureNetwork
	case e.StatusCode > 0 || e.Type != ErrorTypeUnknown:
		return domain.ChatFailureStatus
	default:
		return domain.ChatFailureUnknown
	}
}

// HTTPStatus returns StatusCode.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

// typeForStatus classifies an HTTP response status.
func typeForStatus(code int) ErrorType {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorTypeAuthentication
	case code == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case code == http.StatusNotFound:
		return ErrorTypeNotFound
	case code >= 400 && code < 500:
		return ErrorTypeBadRequest
	case code >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// ErrorClassifier turns SDK errors of one provider into ProviderErrors.
type ErrorClassifier struct {
	Provider string
}

// Classify builds a ProviderError from err and the HTTP status the SDK
// reported, if any. Context errors take precedence over the status, and
// transport failures without a status are classified as network errors.
func (ec *ErrorClassifier) Classify(statusCode int, message string, err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "context deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "request canceled", err)
	case statusCode > 0:
		return NewProviderError(ec.Provider, typeForStatus(statusCode), statusCode, ec.statusMessage(statusCode, message), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "network timeout", err)
		}
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "network failure", err)
	}
	return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "request failed", err)
}

func (ec *ErrorClassifier) statusMessage(code int, message string) string {
	switch typeForStatus(code) {
	case ErrorTypeAuthentication:
		return ec.Provider + " authentication failed"
	case ErrorTypeRateLimit:
		return ec.Provider + " rate limit exceeded"
	}
	if message != "" {
		return message
	}
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "unexpected status"
}
