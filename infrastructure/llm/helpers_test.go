package llm

import (
	"sync"
	"time"
)

type metricRecord struct {
	kind   string
	name   string
	value  float64
	labels map[string]string
}

// recordingCollector keeps every call so tests can assert on labels.
type recordingCollector struct {
	mu      sync.Mutex
	records []metricRecord
}

func (c *recordingCollector) add(kind, name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	c.records = append(c.records, metricRecord{kind: kind, name: name, value: value, labels: copied})
}

func (c *recordingCollector) RecordLatency(op string, d time.Duration, labels map[string]string) {
	c.add("latency", op, d.Seconds(), labels)
}

func (c *recordingCollector) RecordCounter(name string, v float64, labels map[string]string) {
	c.add("counter", name, v, labels)
}

func (c *recordingCollector) RecordGauge(name string, v float64, labels map[string]string) {
	c.add("gauge", name, v, labels)
}

func (c *recordingCollector) RecordHistogram(name string, v float64, labels map[string]string) {
	c.add("histogram", name, v, labels)
}

func (c *recordingCollector) find(name string, match map[string]string) []metricRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []metricRecord
	for _, r := range c.records {
		if r.name != name {
			continue
		}
		ok := true
		for k, v := range match {
			if r.labels[k] != v {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}
