package application

import (
	"context"
	"fmt"
	"slices"

	"github.com/ahrav/go-qualitygate/infrastructure/evaluators"
	"github.com/ahrav/go-qualitygate/internal/assertion"
	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

// QualityGate pairs a set of evaluators with the rules their metrics must
// satisfy.
type QualityGate struct {
	evaluator *evaluators.CompositeEvaluator
	rules     []assertion.Rule
}

// NewQualityGate builds a gate. With no rules, every metric is held to
// assertion.StandardRule. Rules naming a metric no evaluator produces, or
// carrying a condition that does not compile, are rejected.
func NewQualityGate(evals []ports.Evaluator, rules []assertion.Rule, opts ...evaluators.Option) (*QualityGate, error) {
	composite, err := evaluators.NewCompositeEvaluator(evals, opts...)
	if err != nil {
		return nil, err
	}

	names := composite.MetricNames()
	if len(rules) == 0 {
		rules = assertion.StandardRules(names...)
	}
	for _, r := range rules {
		if !slices.Contains(names, r.Metric) {
			return nil, fmt.Errorf("%w: rule references unknown metric %q", domain.ErrInvalidConfiguration, r.Metric)
		}
		if r.Condition != "" {
			if _, err := assertion.CompileCondition(r.Condition); err != nil {
				return nil, err
			}
		}
	}

	return &QualityGate{evaluator: composite, rules: slices.Clone(rules)}, nil
}

// MetricNames returns every metric the gate produces.
func (g *QualityGate) MetricNames() []string { return g.evaluator.MetricNames() }

// Rules returns a copy of the gate's rules.
func (g *QualityGate) Rules() []assertion.Rule { return slices.Clone(g.rules) }

// Evaluate scores resp with every evaluator.
func (g *QualityGate) Evaluate(ctx context.Context, conv domain.Conversation, resp domain.ChatResponse, judge ports.ChatClient) (*domain.EvaluationResult, error) {
	return g.evaluator.Evaluate(ctx, conv, resp, judge)
}

// Check applies the gate's rules to result. It returns nil or a
// *assertion.ViolationError listing every violation.
func (g *QualityGate) Check(result *domain.EvaluationResult) error {
	return assertion.Check(result, g.rules...)
}
