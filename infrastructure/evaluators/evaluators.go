// Package evaluators provides quality evaluators that score a model
// response against the conversation that produced it. Each evaluator
// implements ports.Evaluator and emits metrics under fixed names.
//
// Judge-backed evaluators (Coherence, Relevance, Fluency and custom rubric
// judges) render a prompt, ask a separate judge model for a JSON verdict
// and interpret the returned score on the 1-5 scale. Judge failures never
// escape as errors; they become failed metrics with Error diagnostics so
// sibling evaluators in a CompositeEvaluator still complete.
//
// The Similarity evaluator is deterministic and ignores the judge.
package evaluators

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Metric names emitted by the built-in evaluators.
const (
	CoherenceMetricName  = "Coherence"
	RelevanceMetricName  = "Relevance"
	FluencyMetricName    = "Fluency"
	SimilarityMetricName = "Similarity"
)

// DefaultConcurrency bounds how many evaluators a CompositeEvaluator runs at
// once when no explicit limit is configured.
const DefaultConcurrency = 4

const tracerName = "github.com/ahrav/go-qualitygate/evaluators"

// Package-level validator instance for configuration and judge replies.
var validate = validator.New()

type options struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	concurrency int
}

// Option configures an evaluator.
type Option func(*options)

// WithLogger sets the logger used for evaluation events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer sets the tracer used for evaluation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithConcurrency limits how many child evaluators a CompositeEvaluator
// runs in parallel. Values below one select DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

func buildOptions(opts []Option) options {
	o := options{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.concurrency < 1 {
		o.concurrency = DefaultConcurrency
	}
	return o
}
