package evaluators

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "moon", b: "moon", want: 1},
		{name: "both empty", a: "", b: "", want: 1},
		{name: "one empty", a: "", b: "moon", want: 0},
		{name: "classic example", a: "kitten", b: "sitting", want: 1 - 3.0/7.0},
		{name: "disjoint", a: "abc", b: "xyz", want: 0},
		{name: "multibyte runes", a: "café", b: "cafe", want: 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarityEvaluator_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        SimilarityConfig
		response   string
		wantValue  float64
		wantRating domain.Rating
		wantFailed bool
	}{
		{
			name:       "exact match scores five",
			cfg:        SimilarityConfig{Reference: "About 238,900 miles."},
			response:   "About 238,900 miles.",
			wantValue:  5,
			wantRating: domain.RatingExceptional,
		},
		{
			name:       "case folding ignores case",
			cfg:        SimilarityConfig{Reference: "ABOUT 238,900 MILES."},
			response:   "  about 238,900 miles.  ",
			wantValue:  5,
			wantRating: domain.RatingExceptional,
		},
		{
			name:       "case sensitive comparison",
			cfg:        SimilarityConfig{Reference: "ABC", CaseSensitive: true},
			response:   "abc",
			wantValue:  1,
			wantRating: domain.RatingUnacceptable,
			wantFailed: true,
		},
		{
			name:       "partial match lands mid scale",
			cfg:        SimilarityConfig{Reference: "kitten"},
			response:   "sitting",
			wantValue:  1 + 4*(4.0/7.0),
			wantRating: domain.RatingGood,
			wantFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NewSimilarityEvaluator(tt.cfg)
			require.NoError(t, err)

			result, err := ev.Evaluate(context.Background(), domain.Conversation{}, domain.ChatResponse{Text: tt.response}, nil)
			require.NoError(t, err)

			m, err := result.Get(SimilarityMetricName)
			require.NoError(t, err)
			require.NotNil(t, m.Value)
			assert.InDelta(t, tt.wantValue, *m.Value, 1e-9)
			assert.Equal(t, tt.wantRating, m.Interpretation.Rating)
			assert.Equal(t, tt.wantFailed, m.Interpretation.Failed)
			assert.NotEmpty(t, m.Metadata["similarity"])
		})
	}
}

func TestSimilarityEvaluator_TooLong(t *testing.T) {
	ev, err := NewSimilarityEvaluator(SimilarityConfig{Reference: "short"})
	require.NoError(t, err)

	result, err := ev.Evaluate(context.Background(), domain.Conversation{},
		domain.ChatResponse{Text: strings.Repeat("x", MaxReferenceLength+1)}, nil)
	require.NoError(t, err)

	m, err := result.Get(SimilarityMetricName)
	require.NoError(t, err)
	assert.Nil(t, m.Value)
	assert.Equal(t, domain.SeverityError, m.MaxSeverity())
}

func TestNewSimilarityEvaluator_RequiresReference(t *testing.T) {
	_, err := NewSimilarityEvaluator(SimilarityConfig{})
	assert.Error(t, err)

	_, err = NewSimilarityEvaluator(SimilarityConfig{Reference: strings.Repeat("x", MaxReferenceLength+1)})
	assert.Error(t, err)
}
