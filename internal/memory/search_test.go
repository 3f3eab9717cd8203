package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarityBasics(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float64{1, 0}, []float64{1, 0}), 1e-9)
	require.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	require.InDelta(t, -1.0, cosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
}

func TestCosineSimilarityDegenerateCases(t *testing.T) {
	// Zero-length, zero-norm, and mismatched dimensions all score 0,
	// never NaN.
	require.Equal(t, 0.0, cosineSimilarity(nil, []float64{1}))
	require.Equal(t, 0.0, cosineSimilarity([]float64{1}, nil))
	require.Equal(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	require.Equal(t, 0.0, cosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}))
	require.False(t, cosineSimilarity([]float64{0}, []float64{0}) != cosineSimilarity([]float64{0}, []float64{0}), "must not be NaN")
}
