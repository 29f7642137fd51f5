package evaluators

// Rubric prompts for the built-in judge evaluators.
const (
	coherencePrompt = `Evaluate the COHERENCE of the RESPONSE below.
Coherence measures whether the response reads as a logically ordered, internally consistent whole.
Ideas should connect, statements should not contradict each other, and the structure should be easy to follow.

Rate on an integer scale from 1 to 5:
1 - Incoherent: disconnected or contradictory statements.
2 - Mostly incoherent: occasional connected ideas, frequent jumps or contradictions.
3 - Partially coherent: understandable but with noticeable gaps in logic or flow.
4 - Coherent: logically ordered with only minor lapses.
5 - Fully coherent: every statement follows naturally and the whole is consistent.

CONVERSATION:
{{.Conversation}}

RESPONSE:
{{.Response}}`

	relevancePrompt = `Evaluate the RELEVANCE of the RESPONSE below to the QUESTION.
Relevance measures how directly and completely the response addresses what was asked,
while respecting any instructions given in the system prompt.

Rate on an integer scale from 1 to 5:
1 - Irrelevant: does not address the question at all.
2 - Marginally relevant: touches the topic but misses the question.
3 - Partially relevant: addresses part of the question or includes much unrelated content.
4 - Relevant: answers the question with minor omissions or digressions.
5 - Fully relevant: answers exactly what was asked and follows the instructions.
{{if .SystemPrompt}}
SYSTEM PROMPT:
{{.SystemPrompt}}
{{end}}
QUESTION:
{{.Question}}

RESPONSE:
{{.Response}}`

	fluencyPrompt = `Evaluate the FLUENCY of the RESPONSE below.
Fluency measures grammar, spelling, word choice and sentence structure. Judge the language only, not the facts.

Rate on an integer scale from 1 to 5:
1 - Emergent: pervasive errors make the text hard to read.
2 - Basic: frequent errors and awkward phrasing.
3 - Competent: generally clear with some errors or clumsy sentences.
4 - Proficient: well written with rare, minor errors.
5 - Exceptional: polished, precise and natural throughout.

RESPONSE:
{{.Response}}`
)

// CoherenceEvaluator grades how logically ordered and consistent a
// response is. It emits the "Coherence" metric.
type CoherenceEvaluator struct {
	*JudgeEvaluator
}

// NewCoherenceEvaluator returns a Coherence evaluator using cfg for the
// judge request.
func NewCoherenceEvaluator(cfg JudgeConfig, opts ...Option) (*CoherenceEvaluator, error) {
	judge, err := NewJudgeEvaluator(CoherenceMetricName, coherencePrompt, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &CoherenceEvaluator{JudgeEvaluator: judge}, nil
}

// RelevanceEvaluator grades how well a response answers the final user
// question. It emits the "Relevance" metric.
type RelevanceEvaluator struct {
	*JudgeEvaluator
}

// NewRelevanceEvaluator returns a Relevance evaluator.
func NewRelevanceEvaluator(cfg JudgeConfig, opts ...Option) (*RelevanceEvaluator, error) {
	judge, err := NewJudgeEvaluator(RelevanceMetricName, relevancePrompt, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &RelevanceEvaluator{JudgeEvaluator: judge}, nil
}

// FluencyEvaluator grades grammar and readability. It emits the "Fluency"
// metric.
type FluencyEvaluator struct {
	*JudgeEvaluator
}

// NewFluencyEvaluator returns a Fluency evaluator.
func NewFluencyEvaluator(cfg JudgeConfig, opts ...Option) (*FluencyEvaluator, error) {
	judge, err := NewJudgeEvaluator(FluencyMetricName, fluencyPrompt, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &FluencyEvaluator{JudgeEvaluator: judge}, nil
}
