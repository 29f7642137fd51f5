package evaluators

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

var _ ports.Evaluator = (*SimilarityEvaluator)(nil)

// MaxReferenceLength bounds the reference and response sizes compared by
// the Similarity evaluator, in bytes.
const MaxReferenceLength = 10_000

// SimilarityConfig configures the Similarity evaluator.
type SimilarityConfig struct {
	// Reference is the expected answer.
	Reference string `yaml:"reference" json:"reference" validate:"required,max=10000"`

	// CaseSensitive disables Unicode case folding before comparison.
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`
}

// SimilarityEvaluator compares a response with a reference answer using
// normalized Levenshtein similarity and maps it onto the 1-5 scale:
// identical text scores 5, nothing in common scores 1. It never calls the
// judge.
type SimilarityEvaluator struct {
	config    SimilarityConfig
	reference string
	tracer    trace.Tracer
}

// NewSimilarityEvaluator validates cfg and returns the evaluator.
func NewSimilarityEvaluator(cfg SimilarityConfig, opts ...Option) (*SimilarityEvaluator, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("similarity configuration validation failed: %w", err)
	}
	o := buildOptions(opts)
	e := &SimilarityEvaluator{config: cfg, tracer: o.tracer}
	e.reference = e.prepare(cfg.Reference)
	return e, nil
}

// MetricNames returns the "Similarity" metric name.
func (e *SimilarityEvaluator) MetricNames() []string { return []string{SimilarityMetricName} }

// Evaluate scores resp against the configured reference.
func (e *SimilarityEvaluator) Evaluate(
	ctx context.Context,
	_ domain.Conversation,
	resp domain.ChatResponse,
	_ ports.ChatClient,
) (*domain.EvaluationResult, error) {
	_, span := e.tracer.Start(ctx, "evaluator.Evaluate",
		trace.WithAttributes(
			attribute.String("evaluator.metric", SimilarityMetricName),
			attribute.Bool("config.case_sensitive", e.config.CaseSensitive),
			attribute.Bool("no_llm_cost", true),
		),
	)
	defer span.End()

	if len(resp.Text) > MaxReferenceLength {
		err := fmt.Errorf("response too long: %d bytes exceeds limit of %d", len(resp.Text), MaxReferenceLength)
		span.RecordError(err)
		return domain.NewEvaluationResult(domain.NewFailedMetric(SimilarityMetricName,
			domain.NewEvaluatorError(SimilarityMetricName, stageValidate, err)))
	}

	similarity := Similarity(e.prepare(resp.Text), e.reference)
	score := domain.MinScore + similarity*(domain.MaxScore-domain.MinScore)
	span.SetAttributes(attribute.Float64("eval.score", score))

	m := domain.NewMetric(SimilarityMetricName, score,
		fmt.Sprintf("response is %.2f%% similar to the reference answer", similarity*100))
	m.Metadata = map[string]string{"similarity": strconv.FormatFloat(similarity, 'f', 4, 64)}
	return domain.NewEvaluationResult(m)
}

func (e *SimilarityEvaluator) prepare(s string) string {
	s = strings.TrimSpace(s)
	if !e.config.CaseSensitive {
		// A Caser holds transform state, so each call gets its own.
		s = cases.Fold().String(s)
	}
	return s
}

// Similarity returns 1 - distance/maxRunes for the Levenshtein distance
// between a and b. Two empty strings are identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}

	similarity := 1.0 - float64(distance)/float64(maxLen)
	if similarity < 0 {
		similarity = 0
	}
	return similarity
}
