//go:build tensorflow

package model

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tf "github.com/wamuir/graft/tensorflow"

	"github.com/Brownie44l1/animelens-api/internal/preprocess"
)

// TensorFlowClassifier serves a SavedModel export through one signature.
type TensorFlowClassifier struct {
	model  *tf.SavedModel
	input  tf.Output
	output tf.Output
	width  int
}

func newTensorFlowClassifier(ctx context.Context, exportDir string, imageSize int, opts TensorFlowOptions) (Classifier, error) {
	if len(opts.Tags) == 0 {
		opts.Tags = []string{"serve"}
	}
	if opts.Signature == "" {
		opts.Signature = "serving_default"
	}

	model, err := tf.LoadSavedModel(exportDir, opts.Tags, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load SavedModel from %s: %w", exportDir, err)
	}
	sig, ok := model.Signatures[opts.Signature]
	if !ok {
		model.Session.Close()
		return nil, fmt.Errorf("SavedModel has no signature %q", opts.Signature)
	}
	if len(sig.Inputs) != 1 || len(sig.Outputs) == 0 {
		model.Session.Close()
		return nil, fmt.Errorf("signature %q must have one input and at least one output", opts.Signature)
	}

	input, err := resolveOutput(model.Graph, firstTensorInfo(sig.Inputs).Name)
	if err != nil {
		model.Session.Close()
		return nil, err
	}
	outputInfo := firstTensorInfo(sig.Outputs)
	output, err := resolveOutput(model.Graph, outputInfo.Name)
	if err != nil {
		model.Session.Close()
		return nil, err
	}

	c := &TensorFlowClassifier{model: model, input: input, output: output}
	if n := outputInfo.Shape.NumDimensions(); n > 0 {
		c.width = int(outputInfo.Shape.Size(n - 1))
	}
	if c.width <= 0 {
		// width not declared by the signature; learn it from a blank image
		blank := &preprocess.Tensor{
			Shape: []int64{1, int64(imageSize), int64(imageSize), preprocess.Channels},
			Data:  make([]float32, imageSize*imageSize*preprocess.Channels),
		}
		scores, err := c.run(blank)
		if err != nil {
			model.Session.Close()
			return nil, fmt.Errorf("warm-up inference failed: %w", err)
		}
		c.width = len(scores)
	}
	return c, nil
}

// firstTensorInfo picks deterministically among map-ordered signature entries.
func firstTensorInfo(infos map[string]tf.TensorInfo) tf.TensorInfo {
	keys := make([]string, 0, len(infos))
	for k := range infos {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return infos[keys[0]]
}

// resolveOutput maps a "op_name:index" tensor name to a graph output.
func resolveOutput(graph *tf.Graph, name string) (tf.Output, error) {
	opName, index := name, 0
	if i := strings.LastIndex(name, ":"); i >= 0 {
		n, err := strconv.Atoi(name[i+1:])
		if err != nil {
			return tf.Output{}, fmt.Errorf("bad tensor name %q: %w", name, err)
		}
		opName, index = name[:i], n
	}
	op := graph.Operation(opName)
	if op == nil {
		return tf.Output{}, fmt.Errorf("operation %q not found in graph", opName)
	}
	return op.Output(index), nil
}

func (c *TensorFlowClassifier) OutputWidth() int {
	return c.width
}

func (c *TensorFlowClassifier) Classify(ctx context.Context, input *preprocess.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores, err := c.run(input)
	if err != nil {
		return nil, err
	}
	if len(scores) != c.width {
		return nil, fmt.Errorf("%w: got %d scores, want %d", ErrOutputShape, len(scores), c.width)
	}
	return scores, nil
}

func (c *TensorFlowClassifier) run(input *preprocess.Tensor) ([]float32, error) {
	tensor, err := tf.NewTensor(input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	if err := tensor.Reshape(input.Shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputShape, err)
	}

	outputs, err := c.model.Session.Run(
		map[tf.Output]*tf.Tensor{c.input: tensor},
		[]tf.Output{c.output},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	batch, ok := outputs[0].Value().([][]float32)
	if !ok {
		return nil, fmt.Errorf("%w: output type %T", ErrOutputShape, outputs[0].Value())
	}
	return flattenBatch(batch)
}

func (c *TensorFlowClassifier) Close() error {
	return c.model.Session.Close()
}
