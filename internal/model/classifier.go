package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/Brownie44l1/animelens-api/internal/preprocess"
)

type Backend string

const (
	BackendONNX       Backend = "onnx"
	BackendTensorFlow Backend = "tensorflow"
)

var (
	ErrBackendDisabled = errors.New("model backend not compiled into this binary")
	ErrInputShape      = errors.New("input tensor does not match model input")
	ErrOutputShape     = errors.New("unexpected model output shape")
)

// Classifier scores a normalized image tensor. Implementations are loaded
// once and must be safe for concurrent use.
type Classifier interface {
	// Classify returns one score per class, in label order.
	Classify(ctx context.Context, input *preprocess.Tensor) ([]float32, error)
	OutputWidth() int
	Close() error
}

type ONNXOptions struct {
	LibraryPath string
	InputName   string
	OutputName  string
}

type TensorFlowOptions struct {
	Tags      []string
	Signature string
}

type LoadOptions struct {
	Backend    Backend
	Path       string
	ImageSize  int
	ONNX       ONNXOptions
	TensorFlow TensorFlowOptions
}

// LoadClassifier builds the classifier for the configured backend.
func LoadClassifier(ctx context.Context, opts LoadOptions) (Classifier, error) {
	if opts.ImageSize <= 0 {
		opts.ImageSize = preprocess.DefaultSize
	}
	switch opts.Backend {
	case BackendONNX:
		c, err := NewONNXClassifier(ctx, opts.Path, opts.ImageSize, opts.ONNX)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendTensorFlow:
		return newTensorFlowClassifier(ctx, opts.Path, opts.ImageSize, opts.TensorFlow)
	default:
		return nil, fmt.Errorf("unknown model backend %q", opts.Backend)
	}
}

// flattenBatch unwraps a batch-of-one score matrix.
func flattenBatch(batch [][]float32) ([]float32, error) {
	if len(batch) != 1 {
		return nil, fmt.Errorf("%w: batch of %d, want 1", ErrOutputShape, len(batch))
	}
	return batch[0], nil
}
