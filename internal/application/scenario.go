package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-qualitygate/infrastructure/observability"
	"github.com/ahrav/go-qualitygate/infrastructure/reporting"
	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

// Scenario outcome statuses, also used as metric labels.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
	StatusError  = "error"
)

// ScenarioContext holds the process-wide dependencies every scenario
// shares. Build it once after configuration is loaded and treat it as
// read-only afterwards.
type ScenarioContext struct {
	// Chat is the model under test. Ignored when Reporting is set, whose
	// handles supply the (possibly cache-wrapped) client instead.
	Chat ports.ChatClient

	// Judge is the model evaluators consult. Nil reuses Chat.
	Judge ports.ChatClient

	// Reporting, when set, records every scenario run.
	Reporting *reporting.ReportingConfiguration

	// ExecutionName labels spans when Reporting is nil.
	ExecutionName string

	Metrics ports.MetricsCollector
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

func (sc *ScenarioContext) logger() *slog.Logger {
	if sc.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return sc.Logger
}

func (sc *ScenarioContext) executionName() string {
	if sc.Reporting != nil {
		return sc.Reporting.ExecutionName()
	}
	return sc.ExecutionName
}

// Scenario is one conversation held to one quality gate.
type Scenario struct {
	Name         string
	Tags         []string
	Conversation domain.Conversation
	Gate         *QualityGate

	// Options overrides the runner's default chat options.
	Options *domain.ChatOptions
}

// ScenarioOutcome is the result of running one scenario.
type ScenarioOutcome struct {
	Scenario string
	Response domain.ChatResponse
	// Result is nil when the chat call or evaluation failed outright.
	Result *domain.EvaluationResult
	// Violations is nil or a *assertion.ViolationError.
	Violations error
	// Err is a chat, evaluation or persistence failure.
	Err      error
	Duration time.Duration
}

// Passed reports whether the scenario ran cleanly and met every rule.
func (o ScenarioOutcome) Passed() bool { return o.Err == nil && o.Violations == nil }

// Status returns StatusPassed, StatusFailed or StatusError.
func (o ScenarioOutcome) Status() string {
	switch {
	case o.Err != nil:
		return StatusError
	case o.Violations != nil:
		return StatusFailed
	default:
		return StatusPassed
	}
}

// Error joins the run failure and the violations, or returns nil.
func (o ScenarioOutcome) Error() error { return errors.Join(o.Err, o.Violations) }

// RunScenario sends the scenario's conversation once, scores the reply and
// checks it against the gate's rules. Failures are reported in the outcome
// rather than returned, so callers can run many scenarios independently.
func RunScenario(ctx context.Context, sc *ScenarioContext, s Scenario) (out ScenarioOutcome) {
	start := time.Now()
	logger := sc.logger().With("scenario", s.Name)
	out.Scenario = s.Name

	ctx, span := observability.StartScenarioSpan(ctx, sc.Tracer, sc.executionName(), s.Name, s.Tags)
	defer func() {
		out.Duration = time.Since(start)
		observability.EndScenarioSpan(span, out.Result, out.Error())
		recordOutcome(sc.Metrics, out)
		logOutcome(ctx, logger, out)
	}()

	if s.Gate == nil {
		out.Err = fmt.Errorf("%w: scenario %s has no quality gate", domain.ErrInvalidConfiguration, s.Name)
		return out
	}

	chat, judge := sc.Chat, sc.Judge
	var handle *reporting.ScenarioRunHandle
	if sc.Reporting != nil {
		h, err := sc.Reporting.CreateScenarioRun(ctx, s.Name)
		if err != nil {
			out.Err = err
			return out
		}
		handle = h
		chat, judge = h.ChatClient(), h.JudgeClient()
	}
	if judge == nil {
		judge = chat
	}

	runner := NewConversationRunner(chat, logger)
	if s.Options != nil {
		runner = runner.WithOptions(*s.Options)
	}
	resp, err := runner.Run(ctx, s.Conversation)
	if err != nil {
		out.Err = err
		return out
	}
	out.Response = resp

	result, err := s.Gate.Evaluate(ctx, s.Conversation, resp, judge)
	if err != nil {
		out.Err = fmt.Errorf("evaluate scenario: %w", err)
		return out
	}
	out.Result = result

	if handle != nil {
		if err := handle.Record(ctx, s.Conversation, resp, result); err != nil {
			out.Err = err
		}
	}

	out.Violations = s.Gate.Check(result)
	return out
}

func recordOutcome(mc ports.MetricsCollector, out ScenarioOutcome) {
	if mc == nil {
		return
	}
	status := map[string]string{"status": out.Status()}
	mc.RecordCounter(observability.MetricScenarioRuns, 1, status)
	mc.RecordLatency(observability.MetricScenarioDuration, out.Duration, status)

	if out.Result == nil {
		return
	}
	for _, m := range out.Result.Metrics() {
		labels := map[string]string{"metric": m.Name}
		if m.Value != nil {
			mc.RecordHistogram(observability.MetricEvaluationScore, *m.Value, labels)
		}
		if m.Interpretation != nil && m.Interpretation.Failed {
			mc.RecordCounter(observability.MetricFailedMetrics, 1, labels)
		}
	}
}

func logOutcome(ctx context.Context, logger *slog.Logger, out ScenarioOutcome) {
	attrs := []any{
		"status", out.Status(),
		"latency_ms", out.Duration.Milliseconds(),
	}
	switch out.Status() {
	case StatusPassed:
		logger.InfoContext(ctx, "scenario passed", attrs...)
	case StatusFailed:
		logger.WarnContext(ctx, "scenario failed", append(attrs, "violations", out.Violations)...)
	default:
		logger.ErrorContext(ctx, "scenario errored", append(attrs, "error", out.Err)...)
	}
}
