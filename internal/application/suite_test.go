package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
	"github.com/ahrav/go-qualitygate/internal/testutils"
)

func TestRunSuite_Astronomy(t *testing.T) {
	scenarios, err := AstronomyScenarios()
	require.NoError(t, err)

	var logs strings.Builder
	sc := &ScenarioContext{
		Chat:          astronomyModel(),
		Judge:         judgeScoring(5, 5),
		ExecutionName: "exec-1",
		Logger:        slog.New(slog.NewTextHandler(&logs, nil)),
	}
	report := RunSuite(context.Background(), sc, scenarios, 0)

	assert.True(t, report.Passed())
	assert.Empty(t, report.Failures())
	assert.Equal(t, "exec-1", report.Execution)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, scenarios[0].Name, report.Outcomes[0].Scenario)
	assert.Equal(t, scenarios[1].Name, report.Outcomes[1].Scenario)
	assert.Equal(t, venusAnswer, report.Outcomes[0].Response.Text)
	assert.Equal(t, moonAnswer, report.Outcomes[1].Response.Text)

	passed, failed, errored := report.Counts()
	assert.Equal(t, [3]int{2, 0, 0}, [3]int{passed, failed, errored})
	assert.Contains(t, logs.String(), "suite finished")
}

func TestRunSuite_FailuresAreIsolated(t *testing.T) {
	scenarios, err := AstronomyScenarios()
	require.NoError(t, err)

	model := testutils.NewMockChatClient("gpt-4o").
		OnError("planet venus", errors.New("429 too many requests")).
		On("the moon from the earth", moonAnswer)
	sc := &ScenarioContext{Chat: model, Judge: judgeScoring(5, 5)}

	report := RunSuite(context.Background(), sc, scenarios, 2)

	assert.False(t, report.Passed())
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, scenarios[0].Name, report.Failures()[0].Scenario)
	assert.ErrorIs(t, report.Outcomes[0].Err, domain.ErrChatService)
	assert.True(t, report.Outcomes[1].Passed())

	passed, failed, errored := report.Counts()
	assert.Equal(t, [3]int{1, 0, 1}, [3]int{passed, failed, errored})
}

// gaugeClient tracks how many Chat calls are in flight.
type gaugeClient struct {
	ports.ChatClient
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *gaugeClient) Chat(ctx context.Context, conv domain.Conversation, opts domain.ChatOptions) (domain.ChatResponse, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return g.ChatClient.Chat(ctx, conv, opts)
}

func TestRunSuite_Parallelism(t *testing.T) {
	base, err := AstronomyScenarios()
	require.NoError(t, err)
	var scenarios []Scenario
	for range 4 {
		scenarios = append(scenarios, base...)
	}

	tests := []struct {
		name        string
		parallelism int
		maxPeak     int32
	}{
		{"sequential by default", 0, 1},
		{"bounded", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &gaugeClient{ChatClient: astronomyModel().WithDelay(20 * time.Millisecond)}
			sc := &ScenarioContext{Chat: model, Judge: judgeScoring(5, 5)}

			report := RunSuite(context.Background(), sc, scenarios, tt.parallelism)

			require.Len(t, report.Outcomes, len(scenarios))
			for i, o := range report.Outcomes {
				assert.Equal(t, scenarios[i].Name, o.Scenario, "outcomes keep declaration order")
			}
			assert.LessOrEqual(t, model.peak.Load(), tt.maxPeak)
		})
	}
}

func TestRunSuite_CancelledContext(t *testing.T) {
	scenarios, err := AstronomyScenarios()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := astronomyModel()
	report := RunSuite(ctx, &ScenarioContext{Chat: model}, scenarios, 1)

	require.Len(t, report.Outcomes, 2)
	for _, o := range report.Outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled)
		assert.Equal(t, StatusError, o.Status())
	}
	assert.Zero(t, model.CallCount())
}
