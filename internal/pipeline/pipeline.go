// Package pipeline chains preprocessing, classification and top-K ranking
// for a single uploaded image.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/animelens-api/internal/metric"
	"github.com/Brownie44l1/animelens-api/internal/model"
	"github.com/Brownie44l1/animelens-api/internal/preprocess"
	"github.com/Brownie44l1/animelens-api/internal/ranker"
)

var (
	ErrModelNotLoaded = errors.New("model not loaded")
	ErrInference      = errors.New("inference failed")
)

type Pipeline struct {
	preprocessor *preprocess.Preprocessor
	classifier   model.Classifier
	labels       []string
	topK         int
	backend      string
}

// New wires a pipeline. classifier may be nil, in which case the pipeline
// reports itself not ready and Predict fails with ErrModelNotLoaded. A
// loaded classifier whose width differs from the label count is rejected.
func New(pre *preprocess.Preprocessor, classifier model.Classifier, labels model.LabelSet, topK int, backend string) (*Pipeline, error) {
	if pre == nil {
		return nil, errors.New("preprocessor is required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ranker.ErrInvalidK, topK)
	}
	if classifier != nil {
		if err := model.ValidateLabels(labels, classifier.OutputWidth()); err != nil {
			return nil, err
		}
	}
	return &Pipeline{
		preprocessor: pre,
		classifier:   classifier,
		labels:       labels.Names(),
		topK:         topK,
		backend:      backend,
	}, nil
}

func (p *Pipeline) Ready() bool { return p.classifier != nil }

func (p *Pipeline) TopK() int { return p.topK }

func (p *Pipeline) Backend() string { return p.backend }

// Predict runs one image through the pipeline and returns its top-K labels.
func (p *Pipeline) Predict(ctx context.Context, raw []byte) ([]ranker.Prediction, error) {
	if !p.Ready() {
		return nil, ErrModelNotLoaded
	}

	tensor, err := p.preprocessor.Preprocess(raw)
	if err != nil {
		return nil, err
	}
	log.Debug().Ints64("shape", tensor.Shape).Msg("Processed image")

	start := time.Now()
	scores, err := p.classifier.Classify(ctx, tensor)
	metric.Timing(metric.InferenceLatency, time.Since(start), []string{metric.TagAsString(metric.TagBackend, p.backend)})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	preds, err := ranker.TopK(scores, p.labels, p.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return preds, nil
}

// IsClientFault reports whether err was caused by the uploaded bytes rather
// than by the service.
func IsClientFault(err error) bool {
	return errors.Is(err, preprocess.ErrImageDecode) || errors.Is(err, preprocess.ErrImageProcess)
}
