package application

import (
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-qualitygate/internal/assertion"
)

// SuiteConfig is the YAML description of a set of scenarios and the
// quality gate each one must pass.
type SuiteConfig struct {
	// Version is the suite schema version (X.Y.Z).
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata names and labels the suite.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Defaults apply to every scenario that does not override them.
	Defaults ScenarioDefaults `yaml:"defaults"`
	// Parallelism bounds how many scenarios run at once. Zero runs them
	// one at a time.
	Parallelism int `yaml:"parallelism" validate:"min=0,max=64"`
	// Scenarios lists the conversations to run.
	Scenarios []ScenarioConfig `yaml:"scenarios" validate:"required,min=1,dive"`
}

// Metadata provides descriptive information about a suite.
type Metadata struct {
	Name        string            `yaml:"name" validate:"required,min=1,max=255"`
	Description string            `yaml:"description" validate:"max=1000"`
	Tags        []string          `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
	Labels      map[string]string `yaml:"labels" validate:"max=50"`
}

// ScenarioDefaults holds settings shared by every scenario in a suite.
type ScenarioDefaults struct {
	// SystemPrompt is prepended to scenarios that do not start with a
	// system message of their own.
	SystemPrompt string `yaml:"system_prompt"`
	// Evaluators score scenarios that declare none.
	Evaluators []EvaluatorConfig `yaml:"evaluators" validate:"dive"`
	// Rules apply to scenarios that declare none. Empty holds every metric
	// to the standard rule.
	Rules []assertion.Rule `yaml:"rules" validate:"dive"`
	// ChatOptions overrides the default temperature 0 text request.
	ChatOptions *ChatOptionsConfig `yaml:"chat_options"`
	// JudgeModel selects the judge as "provider/model". Empty reuses the
	// model under test.
	JudgeModel string `yaml:"judge_model" validate:"omitempty,modelformat"`
}

// ScenarioConfig describes one scenario.
type ScenarioConfig struct {
	// Name identifies the scenario within an execution. It becomes a file
	// name, so path separators are rejected.
	Name string `yaml:"name" validate:"required,max=200,scenarioname"`
	Tags []string `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
	// SystemPrompt overrides Defaults.SystemPrompt.
	SystemPrompt string `yaml:"system_prompt"`
	// Messages is the conversation sent to the model under test.
	Messages []MessageConfig `yaml:"messages" validate:"required,min=1,dive"`
	// Evaluators overrides Defaults.Evaluators.
	Evaluators []EvaluatorConfig `yaml:"evaluators" validate:"dive"`
	// Rules overrides Defaults.Rules.
	Rules []assertion.Rule `yaml:"rules" validate:"dive"`
	// ChatOptions overrides Defaults.ChatOptions.
	ChatOptions *ChatOptionsConfig `yaml:"chat_options"`
}

// MessageConfig is one conversation message.
type MessageConfig struct {
	Role    string `yaml:"role" validate:"required,oneof=system user assistant"`
	Content string `yaml:"content" validate:"required"`
}

// EvaluatorConfig selects an evaluator from the registry.
type EvaluatorConfig struct {
	// Type is a registered evaluator type such as "coherence".
	Type string `yaml:"type" validate:"required"`
	// Parameters are decoded per type; see ValidateEvaluatorParameters.
	Parameters yaml.Node `yaml:"parameters"`
}

// ChatOptionsConfig is the YAML form of domain.ChatOptions.
type ChatOptionsConfig struct {
	Temperature    *float64 `yaml:"temperature" validate:"omitempty,min=0,max=2"`
	MaxTokens      int      `yaml:"max_tokens" validate:"min=0,max=128000"`
	ResponseFormat string   `yaml:"response_format" validate:"omitempty,oneof=text json_object"`
}
