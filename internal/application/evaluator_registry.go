package application

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ahrav/go-qualitygate/infrastructure/evaluators"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

// Built-in evaluator types accepted by suite files.
const (
	EvaluatorCoherence  = "coherence"
	EvaluatorRelevance  = "relevance"
	EvaluatorFluency    = "fluency"
	EvaluatorSimilarity = "similarity"
	EvaluatorJudge      = "judge"
)

// EvaluatorFactory builds an evaluator from suite-file parameters.
type EvaluatorFactory func(params map[string]any, opts ...evaluators.Option) (ports.Evaluator, error)

// EvaluatorRegistry maps evaluator type names to factories. It comes with
// the built-in evaluators registered and accepts custom ones at runtime.
type EvaluatorRegistry struct {
	mu        sync.RWMutex
	factories map[string]EvaluatorFactory
	logger    *slog.Logger
}

// NewEvaluatorRegistry creates a registry with the built-in evaluator types.
func NewEvaluatorRegistry(logger *slog.Logger) *EvaluatorRegistry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &EvaluatorRegistry{
		factories: make(map[string]EvaluatorFactory),
		logger:    logger,
	}
	r.registerBuiltinFactories()
	return r
}

func (r *EvaluatorRegistry) registerBuiltinFactories() {
	r.factories[EvaluatorCoherence] = func(params map[string]any, opts ...evaluators.Option) (ports.Evaluator, error) {
		cfg, err := evaluators.JudgeConfigFromParams(params)
		if err != nil {
			return nil, err
		}
		return evaluators.NewCoherenceEvaluator(cfg, opts...)
	}

	r.factories[EvaluatorRelevance] = func(params map[string]any, opts ...evaluators.Option) (ports.Evaluator, error) {
		cfg, err := evaluators.JudgeConfigFromParams(params)
		if err != nil {
			return nil, err
		}
		return evaluators.NewRelevanceEvaluator(cfg, opts...)
	}

	r.factories[EvaluatorFluency] = func(params map[string]any, opts ...evaluators.Option) (ports.Evaluator, error) {
		cfg, err := evaluators.JudgeConfigFromParams(params)
		if err != nil {
			return nil, err
		}
		return evaluators.NewFluencyEvaluator(cfg, opts...)
	}

	r.factories[EvaluatorSimilarity] = func(params map[string]any, opts ...evaluators.Option) (ports.Evaluator, error) {
		reference, _ := params["reference"].(string)
		caseSensitive, _ := params["case_sensitive"].(bool)
		return evaluators.NewSimilarityEvaluator(evaluators.SimilarityConfig{
			Reference:     reference,
			CaseSensitive: caseSensitive,
		}, opts...)
	}

	// A judge evaluator scores a custom metric with a caller-supplied rubric.
	r.factories[EvaluatorJudge] = func(params map[string]any, opts ...evaluators.Option) (ports.Evaluator, error) {
		metric, _ := params["metric"].(string)
		prompt, _ := params["prompt"].(string)
		cfg, err := evaluators.JudgeConfigFromParams(params)
		if err != nil {
			return nil, err
		}
		return evaluators.NewJudgeEvaluator(metric, prompt, cfg, opts...)
	}
}

// Create builds an evaluator of the given type.
func (r *EvaluatorRegistry) Create(evaluatorType string, params map[string]any, opts ...evaluators.Option) (ports.Evaluator, error) {
	r.mu.RLock()
	factory, exists := r.factories[evaluatorType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported evaluator type: %s", evaluatorType)
	}
	if params == nil {
		params = make(map[string]any)
	}

	ev, err := factory(params, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluator of type %s: %w", evaluatorType, err)
	}
	r.logger.Debug("evaluator created", "type", evaluatorType, "metrics", ev.MetricNames())
	return ev, nil
}

// Register adds or replaces the factory for evaluatorType.
func (r *EvaluatorRegistry) Register(evaluatorType string, factory EvaluatorFactory) error {
	if evaluatorType == "" {
		return fmt.Errorf("evaluator type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[evaluatorType] = factory
	return nil
}

// SupportedTypes returns the registered evaluator types in sorted order.
func (r *EvaluatorRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Supports reports whether evaluatorType is registered.
func (r *EvaluatorRegistry) Supports(evaluatorType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[evaluatorType]
	return ok
}
