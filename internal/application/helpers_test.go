package application

import (
	"sync"
	"time"

	"github.com/ahrav/go-qualitygate/internal/testutils"
)

const (
	venusAnswer = "Venus comes within about 24 million miles of Earth at its closest " +
		"and drifts to roughly 162 million miles at its furthest, on the far side of the Sun."
	moonAnswer = "The Moon is about 225,700 miles from Earth at perigee and about " +
		"252,000 miles at apogee."

	coherencePattern = "evaluate the coherence"
	relevancePattern = "evaluate the relevance"
)

// astronomyModel answers the two astronomy questions.
func astronomyModel() *testutils.MockChatClient {
	return testutils.NewMockChatClient("gpt-4o").
		On("planet venus", venusAnswer).
		On("the moon from the earth", moonAnswer)
}

// judgeScoring returns a judge that gives the supplied coherence and
// relevance scores with full confidence.
func judgeScoring(coherence, relevance float64) *testutils.MockChatClient {
	return testutils.NewMockChatClient("judge-model").
		On(coherencePattern, testutils.JudgeReply(coherence, 0.9, "The answer flows logically.")).
		On(relevancePattern, testutils.JudgeReply(relevance, 0.9, "The answer addresses the question."))
}

type metricCall struct {
	kind   string
	name   string
	value  float64
	labels map[string]string
}

// recordingCollector is a ports.MetricsCollector that keeps every call.
type recordingCollector struct {
	mu    sync.Mutex
	calls []metricCall
}

func (c *recordingCollector) add(kind, name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricCall{kind: kind, name: name, value: value, labels: labels})
}

func (c *recordingCollector) RecordLatency(op string, d time.Duration, labels map[string]string) {
	c.add("latency", op, d.Seconds(), labels)
}

func (c *recordingCollector) RecordCounter(metric string, v float64, labels map[string]string) {
	c.add("counter", metric, v, labels)
}

func (c *recordingCollector) RecordGauge(metric string, v float64, labels map[string]string) {
	c.add("gauge", metric, v, labels)
}

func (c *recordingCollector) RecordHistogram(metric string, v float64, labels map[string]string) {
	c.add("histogram", metric, v, labels)
}

func (c *recordingCollector) find(kind, name string) []metricCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []metricCall
	for _, call := range c.calls {
		if call.kind == kind && call.name == name {
			out = append(out, call)
		}
	}
	return out
}
