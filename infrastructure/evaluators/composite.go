package evaluators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

var _ ports.Evaluator = (*CompositeEvaluator)(nil)

// CompositeEvaluator runs a set of evaluators against the same response and
// merges their metrics into one result. Metric names must be unique across
// the set. A child that fails outright contributes failed metrics for each
// name it declared; the other children are unaffected.
type CompositeEvaluator struct {
	evaluators  []ports.Evaluator
	names       []string
	concurrency int
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewCompositeEvaluator returns a composite over evaluators. It returns an
// error wrapping domain.ErrDuplicateEvaluator when two evaluators declare
// the same metric name.
func NewCompositeEvaluator(evaluators []ports.Evaluator, opts ...Option) (*CompositeEvaluator, error) {
	if len(evaluators) == 0 {
		return nil, fmt.Errorf("%w: composite evaluator needs at least one evaluator", domain.ErrInvalidConfiguration)
	}

	seen := make(map[string]struct{})
	var names []string
	for i, ev := range evaluators {
		if ev == nil {
			return nil, fmt.Errorf("%w: evaluator %d is nil", domain.ErrInvalidConfiguration, i)
		}
		declared := ev.MetricNames()
		if len(declared) == 0 {
			return nil, fmt.Errorf("%w: evaluator %d declares no metrics", domain.ErrInvalidConfiguration, i)
		}
		for _, name := range declared {
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateEvaluator, name)
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}

	o := buildOptions(opts)
	return &CompositeEvaluator{
		evaluators:  append([]ports.Evaluator(nil), evaluators...),
		names:       names,
		concurrency: o.concurrency,
		logger:      o.logger,
		tracer:      o.tracer,
	}, nil
}

// MetricNames returns every child metric name in construction order.
func (c *CompositeEvaluator) MetricNames() []string {
	return append([]string(nil), c.names...)
}

// Evaluate runs the children concurrently, bounded by the configured
// limit. The result always holds exactly one metric per declared name.
func (c *CompositeEvaluator) Evaluate(
	ctx context.Context,
	conv domain.Conversation,
	resp domain.ChatResponse,
	judge ports.ChatClient,
) (*domain.EvaluationResult, error) {
	ctx, span := c.tracer.Start(ctx, "evaluator.Composite",
		trace.WithAttributes(
			attribute.Int("evaluator.count", len(c.evaluators)),
			attribute.StringSlice("evaluator.metrics", c.names),
		),
	)
	defer span.End()

	start := time.Now()
	result := &domain.EvaluationResult{}

	// A plain group: one child failing must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for _, ev := range c.evaluators {
		g.Go(func() error {
			return c.runChild(ctx, ev, conv, resp, judge, result)
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	failed := 0
	for _, m := range result.Metrics() {
		if m.Interpretation != nil && m.Interpretation.Failed {
			failed++
		}
	}
	span.SetAttributes(
		attribute.Int("eval.failed_metrics", failed),
		attribute.Int64("eval.latency_ms", time.Since(start).Milliseconds()),
	)
	c.logger.DebugContext(ctx, "composite evaluation completed",
		"metrics", len(c.names),
		"failed", failed,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (c *CompositeEvaluator) runChild(
	ctx context.Context,
	ev ports.Evaluator,
	conv domain.Conversation,
	resp domain.ChatResponse,
	judge ports.ChatClient,
	into *domain.EvaluationResult,
) error {
	sub, err := ev.Evaluate(ctx, conv, resp, judge)
	for _, name := range ev.MetricNames() {
		var m domain.Metric
		switch {
		case err != nil:
			m = domain.NewFailedMetric(name, domain.NewEvaluatorError(name, "evaluate", err))
		case sub == nil:
			m = domain.NewFailedMetric(name, domain.NewEvaluatorError(name, "evaluate", domain.ErrMetricNotFound))
		default:
			got, getErr := sub.Get(name)
			if getErr != nil {
				got = domain.NewFailedMetric(name, domain.NewEvaluatorError(name, "collect metric", getErr))
			}
			m = got
		}
		if addErr := into.Add(m); addErr != nil {
			return addErr
		}
	}
	if err != nil {
		c.logger.WarnContext(ctx, "evaluator failed",
			"metrics", ev.MetricNames(),
			"error", err,
		)
	}
	return nil
}
