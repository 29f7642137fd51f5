// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

// ChatClient defines the interface for sending conversations to a chat
// completion model. It is used both for the model under test and for the
// judge model that evaluators consult.
// Implementations should handle provider-specific details like authentication,
// request formatting, and response parsing.
type ChatClient interface {
	// Chat sends the conversation to the model and returns its reply.
	// Implementations must not retry on their own; retry is an opt-in
	// middleware concern.
	Chat(ctx context.Context, conv domain.Conversation, opts domain.ChatOptions) (domain.ChatResponse, error)

	// EstimateTokens calculates the approximate token count for a given text.
	// This is useful for cost estimation and staying within model limits.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// Evaluator scores a model response. Each evaluator declares the metric
// names it produces up front so a gate can reject collisions before any
// evaluation runs.
type Evaluator interface {
	// MetricNames returns the names of the metrics this evaluator emits.
	MetricNames() []string

	// Evaluate scores resp as a reply to conv. Judge-backed evaluators use
	// judge for scoring; deterministic evaluators ignore it.
	// A judge failure is reported as a failed metric in the returned result,
	// not as an error. An error return means the evaluator could not produce
	// a result at all.
	Evaluate(
		ctx context.Context,
		conv domain.Conversation,
		resp domain.ChatResponse,
		judge ChatClient,
	) (*domain.EvaluationResult, error)
}

// CacheStore defines the interface for caching serialized chat responses.
// Implementations could use the local disk or in-memory storage.
type CacheStore interface {
	// Get retrieves a cached value by key.
	// Returns the value and true if found, or nil and false if not found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value in the cache with an expiration time.
	// A zero duration means the item doesn't expire.
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache.
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// ReportStore persists scenario run records. Records are keyed by
// execution name and scenario name and are never modified once written.
type ReportStore interface {
	// Write persists run. Writing a second record for the same
	// execution and scenario returns ErrReportExists.
	Write(ctx context.Context, run *domain.ScenarioRun) error

	// Read loads the record for the given execution and scenario.
	// It returns ErrReportNotFound if no such record exists.
	Read(ctx context.Context, execution, scenario string) (*domain.ScenarioRun, error)

	// ListExecutions returns every execution name in sorted order.
	ListExecutions(ctx context.Context) ([]string, error)

	// ListScenarios returns the scenario names recorded under execution in
	// sorted order.
	ListScenarios(ctx context.Context, execution string) ([]string, error)
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like cache hits/misses, errors, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like latencies and scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// SecretSource resolves named settings from one backing store such as
// the process environment or a local secrets file.
type SecretSource interface {
	// Name identifies the source in logs and error messages.
	Name() string

	// Lookup returns the value stored under key and whether it was present.
	// Keys use the canonical environment variable spelling, for example
	// FOUNDRY_API_KEY; sources with other naming schemes translate them.
	// An error means the source itself could not be read.
	Lookup(ctx context.Context, key string) (string, bool, error)
}
