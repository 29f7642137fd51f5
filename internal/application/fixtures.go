package application

import (
	"github.com/ahrav/go-qualitygate/infrastructure/evaluators"
	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

// Astronomy fixtures: a concise, imperial-units astronomy assistant asked
// about planetary distances.
const (
	AstronomySystemPrompt = "You are an AI assistant that can answer questions related to astronomy.\n" +
		"Keep your responses concise staying under 100 words as much as possible.\n" +
		"Use the imperial measurement system for all measurements in your response."

	VenusQuestion = "How far is the planet Venus from the Earth at its closest and furthest points?"
	MoonQuestion  = "How far is the Moon from the Earth at its closest and furthest points?"

	// AstronomyTag labels every astronomy scenario.
	AstronomyTag = "simple-test"
)

// AstronomyConversation returns the system prompt followed by question.
func AstronomyConversation(question string) domain.Conversation {
	return domain.NewConversation(
		domain.SystemMessage(AstronomySystemPrompt),
		domain.UserMessage(question),
	)
}

// AstronomyScenarios returns the Venus and Moon scenarios, each scored for
// Coherence and Relevance and held to the standard rules.
func AstronomyScenarios(opts ...evaluators.Option) ([]Scenario, error) {
	questions := []struct{ name, question string }{
		{"SimpleEvaluations.EvaluateResponse.Venus", VenusQuestion},
		{"SimpleEvaluations.EvaluateResponseReport.Moon", MoonQuestion},
	}

	scenarios := make([]Scenario, 0, len(questions))
	for _, q := range questions {
		gate, err := astronomyGate(opts...)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, Scenario{
			Name:         q.name,
			Tags:         []string{AstronomyTag},
			Conversation: AstronomyConversation(q.question),
			Gate:         gate,
		})
	}
	return scenarios, nil
}

func astronomyGate(opts ...evaluators.Option) (*QualityGate, error) {
	coherence, err := evaluators.NewCoherenceEvaluator(evaluators.DefaultJudgeConfig(), opts...)
	if err != nil {
		return nil, err
	}
	relevance, err := evaluators.NewRelevanceEvaluator(evaluators.DefaultJudgeConfig(), opts...)
	if err != nil {
		return nil, err
	}
	return NewQualityGate([]ports.Evaluator{coherence, relevance}, nil, opts...)
}
