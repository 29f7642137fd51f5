package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-qualitygate/infrastructure/evaluators"
	"github.com/ahrav/go-qualitygate/infrastructure/llm"
	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

// ExecutionNameLayout formats default execution names.
const ExecutionNameLayout = "20060102T150405"

// DefaultExecutionName returns the execution name for a run started at now.
func DefaultExecutionName(now time.Time) string {
	return now.Format(ExecutionNameLayout)
}

// Options configures a ReportingConfiguration.
type Options struct {
	// StorageRoot is the directory holding results and the response cache.
	StorageRoot string

	// Evaluators score every scenario; they run together as one composite.
	// Without evaluators, handles can only Record results scored elsewhere.
	Evaluators []ports.Evaluator

	// Chat is the model under test.
	Chat ports.ChatClient

	// Judge is the model evaluators consult. Nil reuses Chat.
	Judge ports.ChatClient

	// EnableResponseCaching wraps Chat and Judge with a response cache.
	EnableResponseCaching bool

	// CacheTTL bounds cache entry lifetime. Zero keeps entries forever.
	CacheTTL time.Duration

	// ExecutionName groups the runs of this invocation. Empty selects
	// DefaultExecutionName at construction time.
	ExecutionName string

	// Tags are recorded on every run.
	Tags []string

	// Store overrides the default DiskReportStore under StorageRoot.
	Store ports.ReportStore

	// Cache overrides the default DiskCacheStore under StorageRoot.
	Cache ports.CacheStore

	// Concurrency bounds how many evaluators run at once.
	Concurrency int

	Logger *slog.Logger
}

// ReportingConfiguration binds evaluators, chat clients and storage for a
// whole execution. Create one per invocation and a ScenarioRunHandle per
// scenario.
type ReportingConfiguration struct {
	executionName string
	tags          []string
	gate          *evaluators.CompositeEvaluator
	store         ports.ReportStore
	chat          ports.ChatClient
	judge         ports.ChatClient
	logger        *slog.Logger
	now           func() time.Time
}

// NewReportingConfiguration validates o and prepares storage and clients.
func NewReportingConfiguration(o Options) (*ReportingConfiguration, error) {
	if o.Chat == nil {
		return nil, &domain.MissingConfigurationError{Keys: []string{"chat client"}}
	}
	if o.StorageRoot == "" && (o.Store == nil || (o.EnableResponseCaching && o.Cache == nil)) {
		return nil, &domain.MissingConfigurationError{Keys: []string{"storage root"}}
	}

	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		gate *evaluators.CompositeEvaluator
		err  error
	)
	if len(o.Evaluators) > 0 {
		gate, err = evaluators.NewCompositeEvaluator(o.Evaluators,
			evaluators.WithConcurrency(o.Concurrency),
			evaluators.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("build evaluators: %w", err)
		}
	}

	store := o.Store
	if store == nil {
		if store, err = NewDiskReportStore(o.StorageRoot); err != nil {
			return nil, err
		}
	}

	chat, judge := o.Chat, o.Judge
	if judge == nil {
		judge = chat
	}
	if o.EnableResponseCaching {
		cache := o.Cache
		if cache == nil {
			if cache, err = NewDiskCacheStore(o.StorageRoot); err != nil {
				return nil, err
			}
		}
		chat = llm.NewCachingChatClient(chat, cache, o.CacheTTL, logger)
		judge = llm.NewCachingChatClient(judge, cache, o.CacheTTL, logger)
	}

	now := time.Now
	execution := o.ExecutionName
	if execution == "" {
		execution = DefaultExecutionName(now())
	}

	return &ReportingConfiguration{
		executionName: execution,
		tags:          append([]string(nil), o.Tags...),
		gate:          gate,
		store:         store,
		chat:          chat,
		judge:         judge,
		logger:        logger,
		now:           now,
	}, nil
}

// ExecutionName returns the execution every run is recorded under.
func (c *ReportingConfiguration) ExecutionName() string { return c.executionName }

// Store returns the report store runs are written to.
func (c *ReportingConfiguration) Store() ports.ReportStore { return c.store }

// MetricNames returns the metrics every scenario will carry.
func (c *ReportingConfiguration) MetricNames() []string {
	if c.gate == nil {
		return nil
	}
	return c.gate.MetricNames()
}

// CreateScenarioRun starts the run for scenario.
func (c *ReportingConfiguration) CreateScenarioRun(ctx context.Context, scenario string) (*ScenarioRunHandle, error) {
	if !validPathSegment(scenario) {
		return nil, fmt.Errorf("%w: invalid scenario name %q", domain.ErrInvalidConfiguration, scenario)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "scenario run created",
		"execution", c.executionName,
		"scenario", scenario,
	)
	return &ScenarioRunHandle{config: c, scenario: scenario, id: uuid.NewString()}, nil
}

// ScenarioRunHandle is one scenario's view of a ReportingConfiguration.
type ScenarioRunHandle struct {
	config   *ReportingConfiguration
	scenario string
	id       string
}

// ID returns the run identifier recorded with the result.
func (h *ScenarioRunHandle) ID() string { return h.id }

// ScenarioName returns the scenario this handle records.
func (h *ScenarioRunHandle) ScenarioName() string { return h.scenario }

// ChatClient returns the client for the model under test, cache-wrapped
// when response caching is enabled.
func (h *ScenarioRunHandle) ChatClient() ports.ChatClient { return h.config.chat }

// JudgeClient returns the client evaluators use.
func (h *ScenarioRunHandle) JudgeClient() ports.ChatClient { return h.config.judge }

// Evaluate scores resp with the configured evaluators and records the run.
// The result is returned even when persisting it fails; the error then
// describes the storage failure.
func (h *ScenarioRunHandle) Evaluate(ctx context.Context, conv domain.Conversation, resp domain.ChatResponse) (*domain.EvaluationResult, error) {
	c := h.config
	if c.gate == nil {
		return nil, fmt.Errorf("%w: no evaluators configured", domain.ErrInvalidConfiguration)
	}
	result, err := c.gate.Evaluate(ctx, conv, resp, c.judge)
	if err != nil {
		return nil, err
	}
	if err := h.Record(ctx, conv, resp, result); err != nil {
		return result, err
	}
	return result, nil
}

// Record persists a result scored outside this configuration.
func (h *ScenarioRunHandle) Record(ctx context.Context, conv domain.Conversation, resp domain.ChatResponse, result *domain.EvaluationResult) error {
	c := h.config
	run := &domain.ScenarioRun{
		ID:            h.id,
		ExecutionName: c.executionName,
		ScenarioName:  h.scenario,
		Tags:          c.tags,
		Messages:      conv.Messages(),
		Response:      resp,
		Result:        result,
		CreatedAt:     c.now().UTC(),
	}
	if err := c.store.Write(ctx, run); err != nil {
		c.logger.WarnContext(ctx, "failed to persist scenario run",
			"execution", c.executionName,
			"scenario", h.scenario,
			"error", err,
		)
		return fmt.Errorf("persist scenario run: %w", err)
	}

	c.logger.InfoContext(ctx, "scenario run recorded",
		"execution", c.executionName,
		"scenario", h.scenario,
		"metrics", result.Len(),
	)
	return nil
}
