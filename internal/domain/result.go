package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// EvaluationResult maps metric names to metrics. Each name may be added
// once; Add is safe for concurrent use so evaluators running in parallel can
// write disjoint keys into one result.
type EvaluationResult struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewEvaluationResult creates a result containing the given metrics.
// It returns ErrDuplicateMetric if two metrics share a name.
func NewEvaluationResult(metrics ...Metric) (*EvaluationResult, error) {
	r := &EvaluationResult{metrics: make(map[string]Metric, len(metrics))}
	for _, m := range metrics {
		if err := r.Add(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add inserts m under its name. A second insert for the same name is
// rejected with ErrDuplicateMetric and leaves the first metric in place.
func (r *EvaluationResult) Add(m Metric) error {
	if m.Name == "" {
		return fmt.Errorf("%w: metric name cannot be empty", ErrEmptyValue)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.metrics == nil {
		r.metrics = make(map[string]Metric)
	}
	if _, exists := r.metrics[m.Name]; exists {
		return &MetricError{Name: m.Name, Err: ErrDuplicateMetric}
	}
	r.metrics[m.Name] = m.clone()
	return nil
}

// Get returns the metric with the given name. Looking up a name that was
// never added is an error, never a zero-valued metric.
func (r *EvaluationResult) Get(name string) (Metric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.metrics[name]
	if !ok {
		return Metric{}, &MetricError{Name: name, Err: ErrMetricNotFound}
	}
	return m.clone(), nil
}

// Has reports whether a metric with the given name exists.
func (r *EvaluationResult) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.metrics[name]
	return ok
}

// Len returns the number of metrics in the result.
func (r *EvaluationResult) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metrics)
}

// Names returns the metric names in sorted order.
func (r *EvaluationResult) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.metrics))
}

// Metrics returns copies of all metrics sorted by name.
func (r *EvaluationResult) Metrics() []Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metric, 0, len(r.metrics))
	for _, name := range slices.Sorted(maps.Keys(r.metrics)) {
		out = append(out, r.metrics[name].clone())
	}
	return out
}

// Merge adds every metric from other into r. It stops at the first name
// collision and returns ErrDuplicateMetric.
func (r *EvaluationResult) Merge(other *EvaluationResult) error {
	if other == nil {
		return nil
	}
	for _, m := range other.Metrics() {
		if err := r.Add(m); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON encodes the result as a list of metrics sorted by name.
func (r *EvaluationResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Metrics())
}

// UnmarshalJSON decodes a list of metrics, rejecting duplicate names.
func (r *EvaluationResult) UnmarshalJSON(data []byte) error {
	var metrics []Metric
	if err := json.Unmarshal(data, &metrics); err != nil {
		return err
	}
	decoded, err := NewEvaluationResult(metrics...)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = decoded.metrics
	return nil
}

// ScenarioRun is the durable record of one evaluated scenario. Records are
// append-only and never modified after creation.
type ScenarioRun struct {
	// ID uniquely identifies this record.
	ID string `json:"id"`

	// ExecutionName groups runs produced by the same invocation,
	// typically a timestamp.
	ExecutionName string `json:"execution_name"`

	// ScenarioName identifies the scenario within the execution.
	ScenarioName string `json:"scenario_name"`

	// Tags are free-form labels attached to the execution.
	Tags []string `json:"tags,omitempty"`

	// Messages is the conversation sent to the model.
	Messages []Message `json:"messages"`

	// Response is the model's reply.
	Response ChatResponse `json:"response"`

	// Result holds the metrics produced by the evaluators.
	Result *EvaluationResult `json:"result"`

	// CreatedAt records when the run was recorded.
	CreatedAt time.Time `json:"created_at"`
}
