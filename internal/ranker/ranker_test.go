package ranker

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopK_Scenario(t *testing.T) {
	scores := []float32{0.1, 0.7, 0.05, 0.1, 0.05}
	labels := []string{"A", "B", "C", "D", "E"}

	preds, err := TopK(scores, labels, 3)
	require.NoError(t, err)
	require.Len(t, preds, 3)

	assert.Equal(t, Prediction{Label: "B", Score: 0.7, ClassIndex: 1}, preds[0])
	tied := []string{preds[1].Label, preds[2].Label}
	assert.ElementsMatch(t, []string{"A", "D"}, tied)
	assert.Equal(t, float32(0.1), preds[1].Score)
	assert.Equal(t, float32(0.1), preds[2].Score)
	for _, p := range preds {
		assert.NotContains(t, []string{"C", "E"}, p.Label)
	}
}

func TestTopK_SortedAndBounded(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for n := 1; n <= 40; n++ {
		scores := make([]float32, n)
		labels := make([]string, n)
		for i := range scores {
			scores[i] = r.Float32()
			labels[i] = string(rune('a' + i%26))
		}
		for k := 1; k <= n; k++ {
			preds, err := TopK(scores, labels, k)
			require.NoError(t, err)
			require.Len(t, preds, k)
			for i := 1; i < len(preds); i++ {
				assert.GreaterOrEqual(t, preds[i-1].Score, preds[i].Score)
			}
			// nothing left out beats the last returned score
			picked := map[int]bool{}
			for _, p := range preds {
				picked[p.ClassIndex] = true
				assert.Equal(t, scores[p.ClassIndex], p.Score)
				assert.Equal(t, labels[p.ClassIndex], p.Label)
			}
			for i, s := range scores {
				if !picked[i] {
					assert.LessOrEqual(t, s, preds[k-1].Score)
				}
			}
		}
	}
}

func TestTopK_ClampsK(t *testing.T) {
	preds, err := TopK([]float32{0.2, 0.8}, []string{"x", "y"}, 5)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, "y", preds[0].Label)
	assert.Equal(t, "x", preds[1].Label)
}

func TestTopK_RawScoresKept(t *testing.T) {
	preds, err := TopK([]float32{-3.5, 12.25, 0}, []string{"neg", "logit", "zero"}, 2)
	require.NoError(t, err)
	assert.Equal(t, float32(12.25), preds[0].Score)
	assert.Equal(t, float32(0), preds[1].Score)
}

func TestTopK_Errors(t *testing.T) {
	_, err := TopK([]float32{0.1, 0.2}, []string{"only"}, 1)
	assert.ErrorIs(t, err, ErrWidthMismatch)

	_, err = TopK([]float32{0.1}, []string{"a"}, 0)
	assert.ErrorIs(t, err, ErrInvalidK)
}
