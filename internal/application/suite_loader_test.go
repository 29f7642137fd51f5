package application

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-qualitygate/internal/assertion"
	"github.com/ahrav/go-qualitygate/internal/domain"
)

const astronomySuiteYAML = `
version: "1.0.0"
metadata:
  name: astronomy
  description: Planetary distance questions
  tags: [simple-test]
defaults:
  system_prompt: |-
    You are an AI assistant that can answer questions related to astronomy.
    Keep your responses concise staying under 100 words as much as possible.
    Use the imperial measurement system for all measurements in your response.
  evaluators:
    - type: coherence
    - type: relevance
      parameters:
        max_tokens: 300
  judge_model: openai/gpt-4o
parallelism: 2
scenarios:
  - name: SimpleEvaluations.EvaluateResponse.Venus
    messages:
      - role: user
        content: How far is the planet Venus from the Earth at its closest and furthest points?
  - name: SimpleEvaluations.EvaluateResponseReport.Moon
    tags: [moon]
    messages:
      - role: user
        content: How far is the Moon from the Earth at its closest and furthest points?
    evaluators:
      - type: similarity
        parameters:
          reference: "The Moon is about 225,700 miles from Earth at perigee and about 252,000 miles at apogee."
    rules:
      - metric: Similarity
        min_value: 4.5
        condition: "value >= 4.5 && !failed"
    chat_options:
      temperature: 0.3
      max_tokens: 200
`

func newTestLoader(t *testing.T) *SuiteLoader {
	t.Helper()
	loader, err := NewSuiteLoader(NewEvaluatorRegistry(nil))
	require.NoError(t, err)
	return loader
}

func TestSuiteLoader_LoadAndBuild(t *testing.T) {
	loader := newTestLoader(t)

	config, err := loader.LoadFromReader(context.Background(), strings.NewReader(astronomySuiteYAML))
	require.NoError(t, err)
	assert.Equal(t, "astronomy", config.Metadata.Name)
	assert.Equal(t, 2, config.Parallelism)
	assert.Equal(t, "openai/gpt-4o", config.Defaults.JudgeModel)
	require.Len(t, config.Scenarios, 2)

	scenarios, err := loader.Build(config)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	venus := scenarios[0]
	assert.Equal(t, "SimpleEvaluations.EvaluateResponse.Venus", venus.Name)
	assert.Equal(t, []string{AstronomyTag}, venus.Tags)
	assert.Equal(t, AstronomyConversation(VenusQuestion).Messages(), venus.Conversation.Messages(),
		"the default system prompt is prepended")
	assert.Equal(t, []string{"Coherence", "Relevance"}, venus.Gate.MetricNames())
	assert.Equal(t, assertion.StandardRules("Coherence", "Relevance"), venus.Gate.Rules())
	assert.Nil(t, venus.Options)

	moon := scenarios[1]
	assert.Equal(t, []string{AstronomyTag, "moon"}, moon.Tags)
	assert.Equal(t, []string{"Similarity"}, moon.Gate.MetricNames())
	require.Len(t, moon.Gate.Rules(), 1)
	require.NotNil(t, moon.Gate.Rules()[0].MinValue)
	assert.Equal(t, 4.5, *moon.Gate.Rules()[0].MinValue)
	require.NotNil(t, moon.Options)
	assert.Equal(t, 0.3, *moon.Options.Temperature)
	assert.Equal(t, 200, moon.Options.MaxTokens)
	assert.Equal(t, domain.ResponseFormatText, moon.Options.ResponseFormat)
}

func TestSuiteLoader_BuiltSuiteRuns(t *testing.T) {
	loader := newTestLoader(t)
	config, err := loader.LoadFromReader(context.Background(), strings.NewReader(astronomySuiteYAML))
	require.NoError(t, err)
	scenarios, err := loader.Build(config)
	require.NoError(t, err)

	model := astronomyModel()
	sc := &ScenarioContext{Chat: model, Judge: judgeScoring(5, 4)}
	report := RunSuite(context.Background(), sc, scenarios, config.Parallelism)

	require.True(t, report.Passed(), "%v", report.Failures())
	temp := model.Calls()
	require.Len(t, temp, 2)
	for _, call := range temp {
		if strings.Contains(call.Conversation.Messages()[1].Content, "Moon") {
			assert.Equal(t, 0.3, *call.Options.Temperature)
		}
	}
}

func TestSuiteLoader_ExistingSystemMessageKept(t *testing.T) {
	loader := newTestLoader(t)
	yml := `
version: "1.0.0"
metadata:
  name: override
defaults:
  system_prompt: default prompt
  evaluators:
    - type: fluency
scenarios:
  - name: own-system
    messages:
      - role: system
        content: scenario prompt
      - role: user
        content: hello
  - name: scenario-prompt
    system_prompt: replaced prompt
    messages:
      - role: user
        content: hello
`
	config, err := loader.LoadFromReader(context.Background(), strings.NewReader(yml))
	require.NoError(t, err)
	scenarios, err := loader.Build(config)
	require.NoError(t, err)

	assert.Equal(t, []domain.Message{
		domain.SystemMessage("scenario prompt"),
		domain.UserMessage("hello"),
	}, scenarios[0].Conversation.Messages())
	assert.Equal(t, []domain.Message{
		domain.SystemMessage("replaced prompt"),
		domain.UserMessage("hello"),
	}, scenarios[1].Conversation.Messages())
}

func TestSuiteLoader_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name: "unknown field",
			yaml: `
version: "1.0.0"
metadata: {name: x}
scenarioz: []
`,
			wantErr: []string{"field scenarioz not found"},
		},
		{
			name: "struct validation",
			yaml: `
version: "one"
metadata: {name: x}
parallelism: 100
scenarios:
  - name: a/b
    messages:
      - role: robot
        content: hi
`,
			wantErr: []string{"Version", "Parallelism", "scenarioname", "oneof"},
		},
		{
			name: "semantic problems are aggregated",
			yaml: `
version: "1.0.0"
metadata: {name: x}
scenarios:
  - name: dup
    messages:
      - {role: user, content: hi}
    evaluators:
      - type: groundedness
  - name: dup
    messages:
      - {role: assistant, content: hello}
    evaluators:
      - type: similarity
    rules:
      - metric: Similarity
        condition: "value >>"
`,
			wantErr: []string{
				`duplicate scenario name "dup"`,
				`unsupported type "groundedness"`,
				"similarity requires a non-empty 'reference' parameter",
				"rule for Similarity",
				"conversation must contain a user message",
			},
		},
		{
			name: "no evaluators anywhere",
			yaml: `
version: "1.0.0"
metadata: {name: x}
scenarios:
  - name: bare
    messages:
      - {role: user, content: hi}
`,
			wantErr: []string{"scenario bare: no evaluators configured"},
		},
		{
			name: "bad judge model",
			yaml: `
version: "1.0.0"
metadata: {name: x}
defaults:
  judge_model: gpt-4o
  evaluators:
    - type: coherence
scenarios:
  - name: a
    messages:
      - {role: user, content: hi}
`,
			wantErr: []string{"modelformat"},
		},
		{
			name: "judge parameter out of range",
			yaml: `
version: "1.0.0"
metadata: {name: x}
defaults:
  evaluators:
    - type: coherence
      parameters: {temperature: 3}
scenarios:
  - name: a
    messages:
      - {role: user, content: hi}
`,
			wantErr: []string{"temperature must be between 0 and 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader(t).LoadFromReader(context.Background(), strings.NewReader(tt.yaml))
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestSuiteLoader_ValidationErrorType(t *testing.T) {
	yml := `
version: "1.0.0"
metadata: {name: x}
scenarios:
  - name: bare
    messages:
      - {role: user, content: hi}
`
	_, err := newTestLoader(t).LoadFromReader(context.Background(), strings.NewReader(yml))

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestSuiteLoader_Cache(t *testing.T) {
	loader := newTestLoader(t)
	ctx := context.Background()

	first, err := loader.LoadFromReader(ctx, strings.NewReader(astronomySuiteYAML))
	require.NoError(t, err)

	// Same document with different formatting hashes to the same entry.
	reformatted := strings.ReplaceAll(astronomySuiteYAML, "tags: [simple-test]", "tags:\n    - simple-test")
	second, err := loader.LoadFromReader(ctx, strings.NewReader(reformatted))
	require.NoError(t, err)
	assert.Same(t, first, second)

	loader.ClearCache()
	third, err := loader.LoadFromReader(ctx, strings.NewReader(astronomySuiteYAML))
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, first.Metadata, third.Metadata)
}

func TestSuiteLoader_LoadFromFile(t *testing.T) {
	loader := newTestLoader(t)
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(astronomySuiteYAML), 0o600))

	config, err := loader.LoadFromFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, config.Scenarios, 2)

	_, err = loader.LoadFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSuiteLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestLoader(t).LoadFromReader(ctx, strings.NewReader(astronomySuiteYAML))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSuiteLoader_NilRegistry(t *testing.T) {
	_, err := NewSuiteLoader(nil)
	assert.ErrorIs(t, err, domain.ErrMissingConfiguration)
}
