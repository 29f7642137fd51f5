package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

// TracerName is the instrumentation scope for scenario spans.
const TracerName = "github.com/ahrav/go-qualitygate"

// Tracer returns the global tracer for scenario spans.
func Tracer() trace.Tracer { return otel.Tracer(TracerName) }

// StartScenarioSpan starts the span covering one scenario run.
func StartScenarioSpan(ctx context.Context, tracer trace.Tracer, execution, scenario string, tags []string) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = Tracer()
	}
	return tracer.Start(ctx, "scenario.Run",
		trace.WithAttributes(
			attribute.String("scenario.name", scenario),
			attribute.String("scenario.execution", execution),
			attribute.StringSlice("scenario.tags", tags),
		),
	)
}

// EndScenarioSpan annotates span with every metric in result and the run
// outcome, then ends it. Metric attributes are keyed metric.<name>.*, with
// the name lowercased.
func EndScenarioSpan(span trace.Span, result *domain.EvaluationResult, err error) {
	defer span.End()

	if result != nil {
		for _, m := range result.Metrics() {
			prefix := "metric." + strings.ToLower(m.Name)
			if m.Value != nil {
				span.SetAttributes(attribute.Float64(prefix+".value", *m.Value))
			}
			if m.Interpretation != nil {
				span.SetAttributes(
					attribute.String(prefix+".rating", m.Interpretation.Rating.String()),
					attribute.Bool(prefix+".failed", m.Interpretation.Failed),
				)
			}
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
