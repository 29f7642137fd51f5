package evaluators

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/template"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

var _ ports.Evaluator = (*JudgeEvaluator)(nil)

// Judge defaults.
const (
	DefaultJudgeTemperature   = 0.0
	DefaultJudgeMaxTokens     = 800
	DefaultJudgeMinConfidence = 0.5
)

var (
	// ErrJudgeRefused is returned when the judge declines to score.
	ErrJudgeRefused = errors.New("judge refused to score the response")

	// ErrNoJSON is returned when the judge reply contains no JSON object.
	ErrNoJSON = errors.New("no JSON object in judge reply")

	// ErrScoreOutOfRange is returned when the judge score lies outside 1-5.
	ErrScoreOutOfRange = errors.New("judge score out of range")
)

// Evaluation stages recorded on EvaluatorError.
const (
	stageRender   = "render prompt"
	stageJudge    = "judge call"
	stageParse    = "parse response"
	stageValidate = "validate score"
	stageRefusal  = "judge refusal"
)

// judgeInstructions is appended to every rendered rubric.
const judgeInstructions = `

Respond with valid JSON only, in exactly this format:
{"score": <integer 1-5>, "confidence": <0.0-1.0>, "reasoning": "<short explanation>"}
If you cannot evaluate the response, respond with {"refusal": "<reason>"} instead.`

const judgeSystemPrompt = "You are a strict, impartial evaluator of AI assistant responses. " +
	"You grade exactly one quality dimension and reply with JSON only."

// JudgeConfig controls how a judge model is asked for a score.
type JudgeConfig struct {
	// Temperature for the judge request. Zero keeps scoring repeatable.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0,max=2"`

	// MaxTokens bounds the judge reply.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"min=50,max=4000"`

	// MinConfidence is the judge confidence below which an Informational
	// diagnostic is attached to the metric.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence" validate:"min=0,max=1"`
}

// DefaultJudgeConfig returns the judge settings used when none are given.
func DefaultJudgeConfig() JudgeConfig {
	return JudgeConfig{
		Temperature:   DefaultJudgeTemperature,
		MaxTokens:     DefaultJudgeMaxTokens,
		MinConfidence: DefaultJudgeMinConfidence,
	}
}

// Validate checks the configuration ranges.
func (c JudgeConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("judge configuration validation failed: %w", err)
	}
	return nil
}

// JudgeConfigFromParams overlays recognised keys from params onto the
// defaults. Numeric values may arrive as int, float64 or string, as they do
// when decoded from YAML.
func JudgeConfigFromParams(params map[string]any) (JudgeConfig, error) {
	cfg := DefaultJudgeConfig()
	if v, ok, err := floatParam(params, "temperature"); err != nil {
		return cfg, err
	} else if ok {
		cfg.Temperature = v
	}
	if v, ok, err := floatParam(params, "max_tokens"); err != nil {
		return cfg, err
	} else if ok {
		cfg.MaxTokens = int(v)
	}
	if v, ok, err := floatParam(params, "min_confidence"); err != nil {
		return cfg, err
	} else if ok {
		cfg.MinConfidence = v
	}
	return cfg, cfg.Validate()
}

func floatParam(params map[string]any, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false, fmt.Errorf("parameter %s: %w", key, err)
		}
		return parsed, true, nil
	default:
		return 0, false, fmt.Errorf("parameter %s: unsupported type %T", key, raw)
	}
}

// judgeReply is the JSON verdict expected from the judge.
type judgeReply struct {
	Score      *float64 `json:"score" validate:"required"`
	Confidence *float64 `json:"confidence" validate:"omitempty,min=0,max=1"`
	Reasoning  string   `json:"reasoning" validate:"required"`
	Refusal    string   `json:"refusal,omitempty"`
}

// promptData is the template input for judge rubrics.
type promptData struct {
	// Conversation is the transcript preceding the response.
	Conversation string
	// Messages are the conversation messages.
	Messages []domain.Message
	// Question is the final user message.
	Question string
	// SystemPrompt is the combined system instruction.
	SystemPrompt string
	// Response is the model reply being graded.
	Response string
}

// JudgeEvaluator scores one quality dimension by prompting a judge model
// with a rubric template. It emits a single metric and is safe for
// concurrent use.
type JudgeEvaluator struct {
	metric string
	tmpl   *template.Template
	config JudgeConfig
	logger *slog.Logger
	tracer trace.Tracer
}

// NewJudgeEvaluator creates an evaluator that emits metric using the rubric
// in prompt. The prompt is a text/template over Conversation, Messages,
// Question, SystemPrompt and Response.
func NewJudgeEvaluator(metric, prompt string, cfg JudgeConfig, opts ...Option) (*JudgeEvaluator, error) {
	if strings.TrimSpace(metric) == "" {
		return nil, fmt.Errorf("%w: metric name cannot be empty", domain.ErrEmptyValue)
	}
	if len(strings.TrimSpace(prompt)) < 20 {
		return nil, fmt.Errorf("%w: judge prompt for %s is too short", domain.ErrInvalidConfiguration, metric)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tmpl, err := template.New(metric).Funcs(PromptFuncMap()).Option("missingkey=error").Parse(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse judge prompt template for %s: %w", metric, err)
	}

	o := buildOptions(opts)
	return &JudgeEvaluator{
		metric: metric,
		tmpl:   tmpl,
		config: cfg,
		logger: o.logger,
		tracer: o.tracer,
	}, nil
}

// MetricNames returns the single metric this evaluator emits.
func (e *JudgeEvaluator) MetricNames() []string { return []string{e.metric} }

// Evaluate asks judge to grade resp. Judge and parsing failures are
// reported inside the returned result as a failed metric; the error return
// is reserved for a missing judge.
func (e *JudgeEvaluator) Evaluate(
	ctx context.Context,
	conv domain.Conversation,
	resp domain.ChatResponse,
	judge ports.ChatClient,
) (*domain.EvaluationResult, error) {
	if judge == nil {
		return nil, fmt.Errorf("%s evaluator: %w: judge client is required", e.metric, domain.ErrInvalidConfiguration)
	}

	ctx, span := e.tracer.Start(ctx, "evaluator.Evaluate",
		trace.WithAttributes(
			attribute.String("evaluator.metric", e.metric),
			attribute.String("judge.model", judge.GetModel()),
		),
	)
	defer span.End()

	start := time.Now()
	metric := e.score(ctx, conv, resp, judge)
	latency := time.Since(start)

	if metric.HasValue() {
		span.SetAttributes(attribute.Float64("eval.score", *metric.Value))
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, metric.Interpretation.Reason)
	}
	span.SetAttributes(attribute.Int64("eval.latency_ms", latency.Milliseconds()))

	result, err := domain.NewEvaluationResult(metric)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *JudgeEvaluator) score(
	ctx context.Context,
	conv domain.Conversation,
	resp domain.ChatResponse,
	judge ports.ChatClient,
) domain.Metric {
	prompt, err := e.render(conv, resp)
	if err != nil {
		return e.failed(judge, stageRender, err)
	}

	temp := e.config.Temperature
	request := domain.NewConversation(
		domain.SystemMessage(judgeSystemPrompt),
		domain.UserMessage(prompt+judgeInstructions),
	)
	reply, err := judge.Chat(ctx, request, domain.ChatOptions{
		Temperature:    &temp,
		ResponseFormat: domain.ResponseFormatJSON,
		MaxTokens:      e.config.MaxTokens,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "judge call failed",
			"metric", e.metric,
			"model", judge.GetModel(),
			"error", err,
		)
		return e.failed(judge, stageJudge, err)
	}

	verdict, stage, err := parseJudgeReply(reply.Text)
	if err != nil {
		e.logger.WarnContext(ctx, "judge reply rejected",
			"metric", e.metric,
			"stage", stage,
			"error", err,
		)
		m := e.failed(judge, stage, err)
		addJudgeMetadata(&m, reply)
		return m
	}

	m := domain.NewMetric(e.metric, *verdict.Score, verdict.Reasoning)
	m.Metadata = map[string]string{"judge_model": judge.GetModel()}
	addJudgeMetadata(&m, reply)
	if verdict.Confidence != nil {
		m.Metadata["confidence"] = strconv.FormatFloat(*verdict.Confidence, 'f', 2, 64)
		if *verdict.Confidence < e.config.MinConfidence {
			m.AddDiagnostic(domain.InformationalDiagnostic(fmt.Sprintf(
				"judge confidence %.2f is below %.2f", *verdict.Confidence, e.config.MinConfidence)))
		}
	}

	e.logger.DebugContext(ctx, "judge scored response",
		"metric", e.metric,
		"score", *verdict.Score,
		"cached", reply.Cached,
	)
	return m
}

func (e *JudgeEvaluator) render(conv domain.Conversation, resp domain.ChatResponse) (string, error) {
	messages := conv.Messages()
	data := promptData{
		Conversation: transcript(messages),
		Messages:     messages,
		SystemPrompt: conv.SystemPrompt(),
		Response:     resp.Text,
	}
	if q, ok := conv.LastUserMessage(); ok {
		data.Question = q.Content
	}

	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

func (e *JudgeEvaluator) failed(judge ports.ChatClient, stage string, err error) domain.Metric {
	m := domain.NewFailedMetric(e.metric, domain.NewEvaluatorError(e.metric, stage, err))
	m.Metadata = map[string]string{"judge_model": judge.GetModel()}
	return m
}

func addJudgeMetadata(m *domain.Metric, reply domain.ChatResponse) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata["judge_input_tokens"] = strconv.Itoa(reply.Usage.InputTokens)
	m.Metadata["judge_output_tokens"] = strconv.Itoa(reply.Usage.OutputTokens)
	if reply.Cached {
		m.Metadata["judge_cached"] = "true"
	}
}

// parseJudgeReply extracts and validates the judge verdict. On failure it
// also returns the stage that failed.
func parseJudgeReply(text string) (judgeReply, string, error) {
	raw := extractJSON(text)
	if raw == "" {
		if looksLikeRefusal(text) {
			return judgeReply{}, stageRefusal, fmt.Errorf("%w: %s", ErrJudgeRefused, firstLine(text))
		}
		return judgeReply{}, stageParse, fmt.Errorf("%w (reply length: %d chars)", ErrNoJSON, len(text))
	}

	var reply judgeReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return judgeReply{}, stageParse, fmt.Errorf("failed to parse judge JSON: %w", err)
	}
	if strings.TrimSpace(reply.Refusal) != "" {
		return judgeReply{}, stageRefusal, fmt.Errorf("%w: %s", ErrJudgeRefused, reply.Refusal)
	}
	if err := validate.Struct(reply); err != nil {
		return judgeReply{}, stageParse, fmt.Errorf("invalid judge reply structure: %w", err)
	}
	if *reply.Score < domain.MinScore || *reply.Score > domain.MaxScore {
		return judgeReply{}, stageValidate, fmt.Errorf("%w: %.2f not in [%.0f, %.0f]",
			ErrScoreOutOfRange, *reply.Score, domain.MinScore, domain.MaxScore)
	}
	return reply, "", nil
}

var refusalMarkers = []string{
	"i can't",
	"i cannot",
	"i can not",
	"i'm unable",
	"i am unable",
	"i won't",
	"i'm sorry",
	"unable to evaluate",
	"cannot evaluate",
}

func looksLikeRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return line
}

// extractJSON returns the first JSON object in response, looking inside
// markdown code fences first.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if nl := strings.Index(response[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	// Match braces outside string literals.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
