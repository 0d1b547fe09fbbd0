//go:build !tensorflow

package model

import (
	"context"
	"fmt"
)

func newTensorFlowClassifier(_ context.Context, _ string, _ int, _ TensorFlowOptions) (Classifier, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags tensorflow to load SavedModel exports", ErrBackendDisabled)
}
