package ports

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCacheError tests the functionality of the CacheError error type.
// It verifies that the error message is formatted correctly and contains the expected context.
func TestCacheError(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		operation string
		err       error
		wantMsg   string
	}{
		{
			name:      "cache miss",
			key:       "test-key",
			operation: "Get",
			err:       errors.New("key not found"),
			wantMsg:   "cache error: operation=Get, key=test-key, err=key not found",
		},
		{
			name:      "cache corruption",
			key:       "user:123",
			operation: "Get",
			err:       ErrCacheCorrupted,
			wantMsg:   "cache error: operation=Get, key=user:123, err=cache corrupted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCacheError(tt.key, tt.operation, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.key, err.Key)
			assert.Equal(t, tt.operation, err.Operation)
			assert.True(t, errors.Is(err, tt.err))
		})
	}
}

// TestReportError tests the functionality of the ReportError error type.
// It verifies the message carries the execution and scenario of the record.
func TestReportError(t *testing.T) {
	err := NewReportError("20250101T120000", "venus", "Read", ErrReportNotFound)

	assert.Equal(t,
		"report error: operation=Read, execution=20250101T120000, scenario=venus, err=report not found",
		err.Error())
	assert.Equal(t, "venus", err.Scenario)
	assert.True(t, errors.Is(err, ErrReportNotFound))
}

// TestConfigError tests the functionality of the ConfigError error type.
// It verifies that the error message is formatted correctly and contains the relevant configuration key.
func TestConfigError(t *testing.T) {
	err := NewConfigError("FOUNDRY_API_KEY", ErrConfigNotFound)

	assert.Equal(t, "config error: key=FOUNDRY_API_KEY, err=configuration not found", err.Error())
	assert.Equal(t, "FOUNDRY_API_KEY", err.ConfigKey)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

// TestCommonInfrastructureErrors tests that the common infrastructure errors are defined.
// It checks that each error has the expected error message.
func TestCommonInfrastructureErrors(t *testing.T) {
	tests := []struct {
		err     error
		message string
	}{
		{ErrInvalidResponse, "invalid response"},
		{ErrReportNotFound, "report not found"},
		{ErrReportExists, "report already exists"},
		{ErrSchemaViolation, "report schema violation"},
		{ErrCacheCorrupted, "cache corrupted"},
		{ErrConfigNotFound, "configuration not found"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}

// TestErrorUnwrapping tests that all custom error types in the package support unwrapping.
// It ensures that the underlying error can be extracted correctly using errors.Is and Unwrap.
func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("underlying error")

	errorList := []interface {
		error
		Unwrap() error
	}{
		NewCacheError("key", "op", baseErr),
		NewReportError("exec", "scenario", "op", baseErr),
		NewConfigError("key", baseErr),
	}

	for _, err := range errorList {
		unwrapped := err.Unwrap()
		assert.Equal(t, baseErr, unwrapped, "%T should unwrap to base error", err)
		assert.True(t, errors.Is(err, baseErr), "%T should match base error with Is", err)
	}
}
