package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-qualitygate/infrastructure/evaluators"
	"github.com/ahrav/go-qualitygate/internal/assertion"
	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

// SuiteLoader parses, validates and builds suite files. Validated configs
// are cached by the SHA256 of their normalized form, so reloading an
// unchanged file is cheap.
type SuiteLoader struct {
	validator *validator.Validate
	registry  *EvaluatorRegistry

	// Cached configs MUST NOT be mutated.
	cache   map[string]*SuiteConfig
	cacheMu sync.RWMutex
	sf      singleflight.Group
}

// NewSuiteLoader returns a loader that resolves evaluator types against
// registry.
func NewSuiteLoader(registry *EvaluatorRegistry) (*SuiteLoader, error) {
	if registry == nil {
		return nil, &domain.MissingConfigurationError{Keys: []string{"evaluator registry"}}
	}
	v := validator.New()
	if err := RegisterSuiteValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &SuiteLoader{
		validator: v,
		registry:  registry,
		cache:     make(map[string]*SuiteConfig),
	}, nil
}

// LoadFromFile reads and validates the suite at path.
func (sl *SuiteLoader) LoadFromFile(ctx context.Context, path string) (*SuiteConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}
	return sl.load(ctx, data)
}

// LoadFromReader reads and validates a suite from r.
func (sl *SuiteLoader) LoadFromReader(ctx context.Context, r io.Reader) (*SuiteConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}
	return sl.load(ctx, data)
}

func (sl *SuiteLoader) load(ctx context.Context, data []byte) (*SuiteConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	config, err := sl.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	hash, err := sl.calculateConfigHash(config)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := sl.sf.Do(hash, func() (any, error) {
		if cached, ok := sl.getCached(hash); ok {
			return cached, nil
		}
		if err := sl.Validate(config); err != nil {
			return nil, err
		}
		sl.putCached(hash, config)
		return config, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SuiteConfig), nil
}

// parseYAML decodes strictly so a misspelled key fails instead of being
// silently ignored.
func (sl *SuiteLoader) parseYAML(data []byte) (*SuiteConfig, error) {
	var config SuiteConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// Validate runs struct-tag validation followed by semantic checks. Every
// semantic problem is reported in one *domain.ValidationError.
func (sl *SuiteLoader) Validate(config *SuiteConfig) error {
	if err := sl.validator.Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			ve := domain.NewValidationError("suite")
			for _, fe := range verrs {
				ve.AddError(fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return ve
		}
		return fmt.Errorf("struct validation failed: %w", err)
	}
	return sl.validateSemantics(config)
}

func (sl *SuiteLoader) validateSemantics(config *SuiteConfig) error {
	ve := domain.NewValidationError("suite")

	sl.validateEvaluators(ve, "defaults", config.Defaults.Evaluators)
	validateRules(ve, "defaults", config.Defaults.Rules)

	seen := make(map[string]struct{}, len(config.Scenarios))
	for _, s := range config.Scenarios {
		if _, dup := seen[s.Name]; dup {
			ve.AddError(fmt.Sprintf("duplicate scenario name %q", s.Name))
		}
		seen[s.Name] = struct{}{}

		scope := "scenario " + s.Name
		if len(s.Evaluators) == 0 && len(config.Defaults.Evaluators) == 0 {
			ve.AddError(scope + ": no evaluators configured")
		}
		sl.validateEvaluators(ve, scope, s.Evaluators)
		validateRules(ve, scope, s.Rules)

		hasUser := false
		for _, m := range s.Messages {
			hasUser = hasUser || m.Role == string(domain.RoleUser)
		}
		if !hasUser {
			ve.AddError(scope + ": conversation must contain a user message")
		}
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

func (sl *SuiteLoader) validateEvaluators(ve *domain.ValidationError, scope string, evals []EvaluatorConfig) {
	for i, e := range evals {
		if !sl.registry.Supports(e.Type) {
			ve.AddError(fmt.Sprintf("%s: evaluator %d has unsupported type %q", scope, i, e.Type))
			continue
		}
		if err := ValidateEvaluatorParameters(e.Type, e.Parameters); err != nil {
			ve.AddError(fmt.Sprintf("%s: evaluator %d (%s): %v", scope, i, e.Type, err))
		}
	}
}

func validateRules(ve *domain.ValidationError, scope string, rules []assertion.Rule) {
	for _, r := range rules {
		if r.Condition == "" {
			continue
		}
		if _, err := assertion.CompileCondition(r.Condition); err != nil {
			ve.AddError(fmt.Sprintf("%s: rule for %s: %v", scope, r.Metric, err))
		}
	}
}

// Build turns a validated config into runnable scenarios. Evaluator
// options, such as a logger, are passed to every evaluator and gate.
func (sl *SuiteLoader) Build(config *SuiteConfig, opts ...evaluators.Option) ([]Scenario, error) {
	scenarios := make([]Scenario, 0, len(config.Scenarios))
	for _, sc := range config.Scenarios {
		s, err := sl.buildScenario(config, sc, opts)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func (sl *SuiteLoader) buildScenario(config *SuiteConfig, sc ScenarioConfig, opts []evaluators.Option) (Scenario, error) {
	evalConfigs := sc.Evaluators
	if len(evalConfigs) == 0 {
		evalConfigs = config.Defaults.Evaluators
	}
	evals := make([]ports.Evaluator, 0, len(evalConfigs))
	for _, ec := range evalConfigs {
		params, err := decodeParameters(ec.Parameters)
		if err != nil {
			return Scenario{}, err
		}
		ev, err := sl.registry.Create(ec.Type, params, opts...)
		if err != nil {
			return Scenario{}, err
		}
		evals = append(evals, ev)
	}

	rules := sc.Rules
	if len(rules) == 0 {
		rules = config.Defaults.Rules
	}
	gate, err := NewQualityGate(evals, rules, opts...)
	if err != nil {
		return Scenario{}, err
	}

	systemPrompt := sc.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = config.Defaults.SystemPrompt
	}
	var msgs []domain.Message
	if systemPrompt != "" && (len(sc.Messages) == 0 || sc.Messages[0].Role != string(domain.RoleSystem)) {
		msgs = append(msgs, domain.SystemMessage(systemPrompt))
	}
	for _, m := range sc.Messages {
		msgs = append(msgs, domain.Message{Role: domain.Role(m.Role), Content: m.Content})
	}

	chatOpts := sc.ChatOptions
	if chatOpts == nil {
		chatOpts = config.Defaults.ChatOptions
	}

	return Scenario{
		Name:         sc.Name,
		Tags:         append(append([]string(nil), config.Metadata.Tags...), sc.Tags...),
		Conversation: domain.NewConversation(msgs...),
		Gate:         gate,
		Options:      toChatOptions(chatOpts),
	}, nil
}

func toChatOptions(c *ChatOptionsConfig) *domain.ChatOptions {
	if c == nil {
		return nil
	}
	opts := domain.DefaultChatOptions()
	if c.Temperature != nil {
		t := *c.Temperature
		opts.Temperature = &t
	}
	if c.MaxTokens > 0 {
		opts.MaxTokens = c.MaxTokens
	}
	if c.ResponseFormat != "" {
		opts.ResponseFormat = domain.ResponseFormat(c.ResponseFormat)
	}
	return &opts
}

// calculateConfigHash hashes the re-encoded config so formatting and key
// order differences map to the same cache entry.
func (sl *SuiteLoader) calculateConfigHash(config *SuiteConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func (sl *SuiteLoader) getCached(hash string) (*SuiteConfig, bool) {
	sl.cacheMu.RLock()
	defer sl.cacheMu.RUnlock()
	c, ok := sl.cache[hash]
	return c, ok
}

func (sl *SuiteLoader) putCached(hash string, config *SuiteConfig) {
	sl.cacheMu.Lock()
	defer sl.cacheMu.Unlock()
	sl.cache[hash] = config
}

// ClearCache drops every cached config.
func (sl *SuiteLoader) ClearCache() {
	sl.cacheMu.Lock()
	defer sl.cacheMu.Unlock()
	sl.cache = make(map[string]*SuiteConfig)
}
