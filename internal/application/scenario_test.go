package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-qualitygate/infrastructure/evaluators"
	"github.com/ahrav/go-qualitygate/infrastructure/observability"
	"github.com/ahrav/go-qualitygate/infrastructure/reporting"
	"github.com/ahrav/go-qualitygate/internal/assertion"
	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
	"github.com/ahrav/go-qualitygate/internal/testutils"
)

func moonScenario(t *testing.T) Scenario {
	t.Helper()
	scenarios, err := AstronomyScenarios()
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	return scenarios[1]
}

func TestNewQualityGate(t *testing.T) {
	coherence, err := evaluators.NewCoherenceEvaluator(evaluators.DefaultJudgeConfig())
	require.NoError(t, err)

	t.Run("defaults to standard rules", func(t *testing.T) {
		gate, err := NewQualityGate([]ports.Evaluator{coherence}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{evaluators.CoherenceMetricName}, gate.MetricNames())
		assert.Equal(t, []assertion.Rule{assertion.StandardRule(evaluators.CoherenceMetricName)}, gate.Rules())
	})

	t.Run("rule for unknown metric", func(t *testing.T) {
		_, err := NewQualityGate([]ports.Evaluator{coherence}, []assertion.Rule{{Metric: "Groundedness"}})
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("bad condition", func(t *testing.T) {
		_, err := NewQualityGate([]ports.Evaluator{coherence},
			[]assertion.Rule{{Metric: evaluators.CoherenceMetricName, Condition: "value >>"}})
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("duplicate evaluator", func(t *testing.T) {
		again, err := evaluators.NewCoherenceEvaluator(evaluators.DefaultJudgeConfig())
		require.NoError(t, err)
		_, err = NewQualityGate([]ports.Evaluator{coherence, again}, nil)
		assert.ErrorIs(t, err, domain.ErrDuplicateEvaluator)
	})
}

func TestRunScenario_AstronomyPasses(t *testing.T) {
	model := astronomyModel()
	judge := judgeScoring(5, 5)
	metrics := &recordingCollector{}
	sc := &ScenarioContext{Chat: model, Judge: judge, Metrics: metrics, ExecutionName: "exec"}

	out := RunScenario(context.Background(), sc, moonScenario(t))

	require.NoError(t, out.Error())
	assert.True(t, out.Passed())
	assert.Equal(t, StatusPassed, out.Status())
	assert.Equal(t, moonAnswer, out.Response.Text)
	assert.Equal(t, []string{"Coherence", "Relevance"}, out.Result.Names())
	assert.Equal(t, 1, model.CallCount())
	assert.Equal(t, 2, judge.CallCount())

	for _, name := range []string{"Coherence", "Relevance"} {
		m, err := out.Result.Get(name)
		require.NoError(t, err)
		assert.Equal(t, domain.RatingExceptional, m.Interpretation.Rating)
		assert.False(t, m.Interpretation.Failed)
	}

	runs := metrics.find("counter", observability.MetricScenarioRuns)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusPassed, runs[0].labels["status"])
	assert.Len(t, metrics.find("histogram", observability.MetricEvaluationScore), 2)
	assert.Empty(t, metrics.find("counter", observability.MetricFailedMetrics))
	assert.Len(t, metrics.find("latency", observability.MetricScenarioDuration), 1)
}

func TestRunScenario_DurationReported(t *testing.T) {
	const delay = 30 * time.Millisecond
	metrics := &recordingCollector{}
	sc := &ScenarioContext{Chat: astronomyModel().WithDelay(delay), Judge: judgeScoring(5, 5), Metrics: metrics}

	out := RunScenario(context.Background(), sc, moonScenario(t))

	require.NoError(t, out.Error())
	assert.GreaterOrEqual(t, out.Duration, delay)
	latency := metrics.find("latency", observability.MetricScenarioDuration)
	require.Len(t, latency, 1)
	assert.GreaterOrEqual(t, latency[0].value, delay.Seconds())
}

func TestRunScenario_Violations(t *testing.T) {
	metrics := &recordingCollector{}
	sc := &ScenarioContext{Chat: astronomyModel(), Judge: judgeScoring(2, 5), Metrics: metrics}

	out := RunScenario(context.Background(), sc, moonScenario(t))

	assert.False(t, out.Passed())
	assert.Equal(t, StatusFailed, out.Status())
	require.NoError(t, out.Err)

	var ve *assertion.ViolationError
	require.ErrorAs(t, out.Violations, &ve)
	for _, v := range ve.Violations {
		assert.Equal(t, "Coherence", v.Metric)
	}

	failed := metrics.find("counter", observability.MetricFailedMetrics)
	require.Len(t, failed, 1)
	assert.Equal(t, "Coherence", failed[0].labels["metric"])
}

func TestRunScenario_JudgeFailureIsolated(t *testing.T) {
	judge := testutils.NewMockChatClient("judge-model").
		OnError(coherencePattern, errors.New("judge unreachable")).
		On(relevancePattern, testutils.JudgeReply(5, 0.9, "On topic."))
	sc := &ScenarioContext{Chat: astronomyModel(), Judge: judge}

	out := RunScenario(context.Background(), sc, moonScenario(t))

	require.NoError(t, out.Err, "a judge failure is a failed metric, not a run error")
	require.Error(t, out.Violations)

	coherence, err := out.Result.Get("Coherence")
	require.NoError(t, err)
	assert.True(t, coherence.Interpretation.Failed)
	assert.Nil(t, coherence.Value)
	assert.Equal(t, domain.SeverityError, coherence.MaxSeverity())

	relevance, err := out.Result.Get("Relevance")
	require.NoError(t, err)
	assert.False(t, relevance.Interpretation.Failed)
}

func TestRunScenario_ChatFailure(t *testing.T) {
	model := testutils.NewMockChatClient("gpt-4o").OnError("moon", errors.New("503 service unavailable"))
	judge := judgeScoring(5, 5)
	metrics := &recordingCollector{}
	sc := &ScenarioContext{Chat: model, Judge: judge, Metrics: metrics}

	out := RunScenario(context.Background(), sc, moonScenario(t))

	assert.Equal(t, StatusError, out.Status())
	assert.ErrorIs(t, out.Err, domain.ErrChatService)
	assert.Nil(t, out.Result)
	assert.Zero(t, judge.CallCount(), "nothing is evaluated without a response")

	runs := metrics.find("counter", observability.MetricScenarioRuns)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusError, runs[0].labels["status"])
}

func TestRunScenario_NoGate(t *testing.T) {
	out := RunScenario(context.Background(), &ScenarioContext{Chat: astronomyModel()}, Scenario{Name: "bare"})
	assert.ErrorIs(t, out.Err, domain.ErrInvalidConfiguration)
}

func TestRunScenario_JudgeDefaultsToChat(t *testing.T) {
	client := testutils.NewMockChatClient("gpt-4o").
		On(coherencePattern, testutils.JudgeReply(4, 0.9, "Fine.")).
		On(relevancePattern, testutils.JudgeReply(4, 0.9, "Fine.")).
		On("the moon from the earth", moonAnswer)

	out := RunScenario(context.Background(), &ScenarioContext{Chat: client}, moonScenario(t))

	require.NoError(t, out.Error())
	assert.Equal(t, 3, client.CallCount())
}

func TestRunScenario_Reporting(t *testing.T) {
	root := t.TempDir()
	model := astronomyModel()
	cfg, err := reporting.NewReportingConfiguration(reporting.Options{
		StorageRoot:           root,
		Chat:                  model,
		Judge:                 judgeScoring(5, 4),
		EnableResponseCaching: true,
		ExecutionName:         "20250301T120000",
		Tags:                  []string{AstronomyTag},
	})
	require.NoError(t, err)
	sc := &ScenarioContext{Reporting: cfg}

	scenario := moonScenario(t)
	out := RunScenario(context.Background(), sc, scenario)
	require.NoError(t, out.Error())

	stored, err := cfg.Store().Read(context.Background(), "20250301T120000", scenario.Name)
	require.NoError(t, err)
	assert.Equal(t, []string{"Coherence", "Relevance"}, stored.Result.Names())
	assert.Equal(t, moonAnswer, stored.Response.Text)
	assert.Equal(t, []string{AstronomyTag}, stored.Tags)

	again := RunScenario(context.Background(), sc, scenario)
	assert.ErrorIs(t, again.Err, ports.ErrReportExists)
	assert.True(t, again.Response.Cached, "the second run is answered from the response cache")
	assert.Equal(t, 1, model.CallCount())
	require.NotNil(t, again.Result, "the result survives a persistence failure")
}
