package ranker

import (
	"errors"
	"fmt"

	"github.com/emirpasic/gods/trees/binaryheap"
)

var (
	ErrWidthMismatch = errors.New("score vector width does not match label count")
	ErrInvalidK      = errors.New("top-k must be positive")
)

type Prediction struct {
	Label      string
	Score      float32
	ClassIndex int
}

type entry struct {
	index int
	score float32
}

func byScore(a, b interface{}) int {
	sa, sb := a.(entry).score, b.(entry).score
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

// TopK returns the k highest scores paired with their labels, ordered by
// descending score. Scores are passed through untouched. The order of equal
// scores is unspecified. k larger than the vector is clamped.
func TopK(scores []float32, labels []string, k int) ([]Prediction, error) {
	if len(scores) != len(labels) {
		return nil, fmt.Errorf("%w: %d scores, %d labels", ErrWidthMismatch, len(scores), len(labels))
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if k > len(scores) {
		k = len(scores)
	}

	// min-heap holding the current best k
	heap := binaryheap.NewWith(byScore)
	for i, s := range scores {
		if heap.Size() < k {
			heap.Push(entry{index: i, score: s})
			continue
		}
		lowest, _ := heap.Peek()
		if s > lowest.(entry).score {
			heap.Pop()
			heap.Push(entry{index: i, score: s})
		}
	}

	results := make([]Prediction, heap.Size())
	for i := len(results) - 1; i >= 0; i-- {
		v, _ := heap.Pop()
		e := v.(entry)
		results[i] = Prediction{Label: labels[e.index], Score: e.score, ClassIndex: e.index}
	}
	return results, nil
}
