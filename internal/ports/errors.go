package ports

import (
	"errors"
	"fmt"
)

// Common infrastructure errors that can occur during external service
// interactions.
var (
	// ErrInvalidResponse indicates that the service returned an invalid
	// response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrCacheCorrupted indicates that cached data is corrupted or invalid.
	ErrCacheCorrupted = errors.New("cache corrupted")

	// ErrConfigNotFound indicates that a configuration source does not exist.
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrReportNotFound indicates that no record exists for the requested
	// execution and scenario.
	ErrReportNotFound = errors.New("report not found")

	// ErrReportExists indicates that a record was already written for the
	// execution and scenario.
	ErrReportExists = errors.New("report already exists")

	// ErrSchemaViolation indicates that a record does not conform to the
	// report schema.
	ErrSchemaViolation = errors.New("report schema violation")
)

// CacheError represents an error from cache operations.
// It includes the key and operation that failed.
type CacheError struct {
	// Key is the cache key that was involved in the failed operation.
	Key string

	// Operation is the name of the cache operation that failed.
	Operation string

	// Err is the underlying error that caused the cache operation to fail.
	Err error
}

// Error implements the error interface for CacheError.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *CacheError) Unwrap() error { return e.Err }

// NewCacheError creates a new CacheError with the given details.
func NewCacheError(key, operation string, err error) *CacheError {
	return &CacheError{
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}

// ReportError represents an error from report storage operations.
type ReportError struct {
	// Execution is the execution name of the record involved.
	Execution string

	// Scenario is the scenario name of the record involved. It is empty for
	// execution-level operations.
	Scenario string

	// Operation is the name of the storage operation that failed.
	Operation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for ReportError.
func (e *ReportError) Error() string {
	return fmt.Sprintf("report error: operation=%s, execution=%s, scenario=%s, err=%v",
		e.Operation, e.Execution, e.Scenario, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReportError) Unwrap() error { return e.Err }

// NewReportError creates a new ReportError with the given details.
func NewReportError(execution, scenario, operation string, err error) *ReportError {
	return &ReportError{
		Execution: execution,
		Scenario:  scenario,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// ConfigKey is the configuration key or source that was involved in the
	// failed operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
