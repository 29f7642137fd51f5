package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluationResult_AddGet(t *testing.T) {
	r, err := NewEvaluationResult(NewMetric("Coherence", 5, "clear"))
	require.NoError(t, err)

	got, err := r.Get("Coherence")
	require.NoError(t, err)
	assert.Equal(t, 5.0, *got.Value)

	_, err = r.Get("Fluency")
	require.Error(t, err, "unknown metric lookups must fail")
	assert.True(t, errors.Is(err, ErrMetricNotFound))

	var merr *MetricError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "Fluency", merr.Name)
}

func TestEvaluationResult_InsertOnce(t *testing.T) {
	r, err := NewEvaluationResult()
	require.NoError(t, err)

	require.NoError(t, r.Add(NewMetric("Relevance", 4.5, "first")))
	err = r.Add(NewMetric("Relevance", 1, "second"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateMetric))

	got, err := r.Get("Relevance")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Reason, "first insert should win")

	err = r.Add(Metric{})
	assert.True(t, errors.Is(err, ErrEmptyValue))
}

func TestEvaluationResult_DuplicateConstructor(t *testing.T) {
	_, err := NewEvaluationResult(NewMetric("A", 5, ""), NewMetric("A", 4, ""))
	assert.True(t, errors.Is(err, ErrDuplicateMetric))
}

func TestEvaluationResult_GetReturnsCopy(t *testing.T) {
	r, err := NewEvaluationResult(NewMetric("Coherence", 4.5, ""))
	require.NoError(t, err)

	got, err := r.Get("Coherence")
	require.NoError(t, err)
	*got.Value = 1

	again, err := r.Get("Coherence")
	require.NoError(t, err)
	assert.Equal(t, 4.5, *again.Value)
}

func TestEvaluationResult_ConcurrentAdd(t *testing.T) {
	r, err := NewEvaluationResult()
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Add(NewMetric(fmt.Sprintf("m%02d", i), 5, "")))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, r.Len())
	names := r.Names()
	assert.Equal(t, "m00", names[0])
	assert.Equal(t, "m49", names[n-1])
}

func TestEvaluationResult_Merge(t *testing.T) {
	a, _ := NewEvaluationResult(NewMetric("Coherence", 5, ""))
	b, _ := NewEvaluationResult(NewMetric("Relevance", 4, ""))

	require.NoError(t, a.Merge(b))
	assert.Equal(t, []string{"Coherence", "Relevance"}, a.Names())
	assert.NoError(t, a.Merge(nil))

	err := a.Merge(b)
	assert.True(t, errors.Is(err, ErrDuplicateMetric))
}

func TestEvaluationResult_JSON(t *testing.T) {
	r, _ := NewEvaluationResult(
		NewMetric("Relevance", 4.5, "on topic"),
		NewFailedMetric("Coherence", errors.New("judge failed")),
	)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded EvaluationResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"Coherence", "Relevance"}, decoded.Names())

	failed, err := decoded.Get("Coherence")
	require.NoError(t, err)
	assert.Nil(t, failed.Value)
	assert.True(t, failed.Interpretation.Failed)

	err = json.Unmarshal([]byte(`[{"name":"A"},{"name":"A"}]`), &decoded)
	assert.True(t, errors.Is(err, ErrDuplicateMetric))
}
