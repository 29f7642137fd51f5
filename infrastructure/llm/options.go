package llm

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

// Option keys understood by every provider's DoRequest.
const (
	OptTemperature    = "temperature"
	OptMaxTokens      = "max_tokens"
	OptResponseFormat = "response_format"
	OptModel          = "model"
	OptTopP           = "top_p"
)

// These constants define the valid ranges for common LLM parameters.
// They are used for validation across different providers to ensure consistency.
const (
	// MinTemperature is the minimum allowed value for temperature.
	MinTemperature = 0.0
	// MaxTemperature is the maximum allowed value for temperature.
	// This is set to 2.0 to accommodate providers like Gemini.
	MaxTemperature = 2.0
	// MinTopP is the minimum allowed value for Top-P sampling.
	MinTopP = 0.0
	// MaxTopP is the maximum allowed value for Top-P sampling.
	MaxTopP = 1.0
	// DefaultMaxTokens is used by providers that require an explicit limit.
	DefaultMaxTokens = 1024
	// MinTimeout is the minimum allowed duration for a request timeout.
	MinTimeout = 1 * time.Second
	// MaxTimeout is the maximum allowed duration for a request timeout.
	MaxTimeout = 10 * time.Minute
)

// ChatOptionsToMap converts typed chat options into the option map passed
// down the middleware chain. Unset fields are omitted so providers fall back
// to their own defaults.
func ChatOptionsToMap(opts domain.ChatOptions) map[string]any {
	m := make(map[string]any, 3)
	if opts.Temperature != nil {
		m[OptTemperature] = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		m[OptMaxTokens] = opts.MaxTokens
	}
	if opts.ResponseFormat != "" {
		m[OptResponseFormat] = string(opts.ResponseFormat)
	}
	return m
}

// RequestOptions represents a standardized set of configuration parameters for an LLM request.
type RequestOptions struct {
	// MaxTokens specifies the maximum number of tokens to generate.
	// Zero leaves the provider default in place.
	MaxTokens int
	// Model is the identifier of the language model to use for the request.
	Model string
	// Temperature controls the randomness of the output.
	// A nil value indicates that the provider's default should be used.
	Temperature *float64
	// TopP is nucleus sampling. A nil value uses the provider default.
	TopP *float64
	// JSON requests a JSON object reply instead of free text.
	JSON bool
}

// ParseRequestOptions extracts and validates LLM request parameters from a map,
// using defaultModel when no model override is present.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: ExtractOptionalInt(opts, OptMaxTokens, 0, IsPositiveInt),
		Model:     ExtractOptionalString(opts, OptModel, defaultModel, IsNonEmptyString),
		JSON: ExtractOptionalString(opts, OptResponseFormat, string(domain.ResponseFormatText), nil) ==
			string(domain.ResponseFormatJSON),
	}

	if temp := ExtractOptionalFloat64(opts, OptTemperature, -1, IsValidTemperature); temp != -1 {
		options.Temperature = &temp
	}
	if topP := ExtractOptionalFloat64(opts, OptTopP, -1, IsValidTopP); topP != -1 {
		options.TopP = &topP
	}
	return options
}

// ExtractOptionalInt extracts an integer value from options map with validation.
// Returns defaultVal if key doesn't exist, value is not an int, or validator fails.
func ExtractOptionalInt(opts map[string]any, key string, defaultVal int, validator func(int) bool) int {
	val, ok := opts[key]
	if !ok {
		return defaultVal
	}
	intVal, ok := val.(int)
	if !ok || (validator != nil && !validator(intVal)) {
		return defaultVal
	}
	return intVal
}

// ExtractOptionalString extracts a string value from options map with validation.
// Returns defaultVal if key doesn't exist, value is not a string, or validator fails.
func ExtractOptionalString(opts map[string]any, key string, defaultVal string, validator func(string) bool) string {
	val, ok := opts[key]
	if !ok {
		return defaultVal
	}
	strVal, ok := val.(string)
	if !ok || (validator != nil && !validator(strVal)) {
		return defaultVal
	}
	return strVal
}

// ExtractOptionalFloat64 extracts a float64 value from options map with validation.
// float32 values are widened. Returns defaultVal if key doesn't exist, value
// is not a float, or validator fails.
func ExtractOptionalFloat64(opts map[string]any, key string, defaultVal float64, validator func(float64) bool) float64 {
	val, ok := opts[key]
	if !ok {
		return defaultVal
	}
	var floatVal float64
	switch v := val.(type) {
	case float64:
		floatVal = v
	case float32:
		floatVal = float64(v)
	default:
		return defaultVal
	}
	if validator != nil && !validator(floatVal) {
		return defaultVal
	}
	return floatVal
}

// IsValidTemperature checks if the temperature is within the valid range [0.0, 2.0].
func IsValidTemperature(val float64) bool {
	return val >= MinTemperature && val <= MaxTemperature
}

// IsValidTopP checks if the top_p value is within the valid range [0.0, 1.0].
func IsValidTopP(val float64) bool { return val >= MinTopP && val <= MaxTopP }

// IsPositiveInt checks if the integer value is positive.
func IsPositiveInt(val int) bool { return val > 0 }

// IsNonEmptyString checks if the string is non-empty.
func IsNonEmptyString(val string) bool { return val != "" }

// ValidateBaseURL validates and normalizes a base URL string.
// It ensures the URL has a valid scheme (http or https) and a host.
// An empty string is considered valid and returns no error, allowing for default URLs.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsedURL.Scheme == "" {
		return "", fmt.Errorf("URL must include a scheme (e.g., http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, but got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return parsedURL.String(), nil
}

// ValidateTimeout ensures the timeout is within a reasonable range.
// A zero or negative timeout returns zero, meaning the default is used.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return min(max(timeout, MinTimeout), MaxTimeout)
}

// ClampFloat64 clamps a float64 value to be within the specified lo and hi range.
func ClampFloat64(val, lo, hi float64) float64 { return min(max(val, lo), hi) }
