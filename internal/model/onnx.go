package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/animelens-api/internal/preprocess"
)

// ONNXClassifier runs an ONNX image classifier through ONNX Runtime. The
// session is bound to one pre-allocated input/output tensor pair, so runs are
// serialised.
type ONNXClassifier struct {
	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensor  *ort.Tensor[float32]
	channelsFirst bool
	width         int
}

func NewONNXClassifier(ctx context.Context, modelPath string, imageSize int, opts ONNXOptions) (*ONNXClassifier, error) {
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	ownsEnvironment := false
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		ownsEnvironment = true
	}

	classifier, err := newONNXClassifier(ctx, modelPath, imageSize, opts)
	if err != nil && ownsEnvironment {
		if destroyErr := ort.DestroyEnvironment(); destroyErr != nil {
			err = errors.Join(err, destroyErr)
		}
	}
	return classifier, err
}

func newONNXClassifier(ctx context.Context, modelPath string, imageSize int, opts ONNXOptions) (*ONNXClassifier, error) {
	modelData, err := readArtifact(ctx, modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(modelData)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	inputInfo, err := pickTensorInfo(inputs, opts.InputName)
	if err != nil {
		return nil, fmt.Errorf("model input: %w", err)
	}
	outputInfo, err := pickTensorInfo(outputs, opts.OutputName)
	if err != nil {
		return nil, fmt.Errorf("model output: %w", err)
	}
	if inputInfo.DataType != ort.TensorElementDataTypeFloat || outputInfo.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("model must take and return float32 tensors, got %v -> %v", inputInfo.DataType, outputInfo.DataType)
	}

	channelsFirst, err := inputLayout(inputInfo.Dimensions, imageSize)
	if err != nil {
		return nil, err
	}
	inputShape := ort.NewShape(1, int64(imageSize), int64(imageSize), preprocess.Channels)
	if channelsFirst {
		inputShape = ort.NewShape(1, preprocess.Channels, int64(imageSize), int64(imageSize))
	}
	outputShape, width, err := outputLayout(outputInfo.Dimensions)
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(modelData,
		[]string{inputInfo.Name}, []string{outputInfo.Name},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXClassifier{
		session:       session,
		inputTensor:   inputTensor,
		outputTensor:  outputTensor,
		channelsFirst: channelsFirst,
		width:         width,
	}, nil
}

func pickTensorInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if name == "" {
		if len(infos) == 0 {
			return ort.InputOutputInfo{}, errors.New("model declares no tensors")
		}
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("no tensor named %q", name)
}

// inputLayout reports whether the model wants NCHW rather than NHWC input,
// and rejects fixed spatial dims that differ from imageSize.
func inputLayout(dims ort.Shape, imageSize int) (bool, error) {
	if len(dims) != 4 {
		return false, fmt.Errorf("%w: expected 4 dimensions, got %v", ErrInputShape, dims)
	}
	channelsFirst := dims[1] == preprocess.Channels && dims[3] != preprocess.Channels
	h, w, c := dims[1], dims[2], dims[3]
	if channelsFirst {
		c, h, w = dims[1], dims[2], dims[3]
	}
	if c > 0 && c != preprocess.Channels {
		return false, fmt.Errorf("%w: model expects %d channels", ErrInputShape, c)
	}
	size := int64(imageSize)
	if (h > 0 && h != size) || (w > 0 && w != size) {
		return false, fmt.Errorf("%w: model expects %dx%d images, preprocessing produces %dx%d", ErrInputShape, w, h, size, size)
	}
	return channelsFirst, nil
}

// outputLayout resolves dynamic dims to 1 and returns the score vector width.
func outputLayout(dims ort.Shape) (ort.Shape, int, error) {
	if len(dims) == 0 {
		return nil, 0, fmt.Errorf("%w: scalar output", ErrOutputShape)
	}
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	width := dims[len(dims)-1]
	if width <= 0 || shape.FlattenedSize() != width {
		return nil, 0, fmt.Errorf("%w: cannot derive class count from %v", ErrOutputShape, dims)
	}
	return shape, int(width), nil
}

func (c *ONNXClassifier) OutputWidth() int {
	return c.width
}

func (c *ONNXClassifier) Classify(ctx context.Context, input *preprocess.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := input.Data
	if c.channelsFirst {
		data = input.NCHW()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dst := c.inputTensor.GetData()
	if len(data) != len(dst) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrInputShape, len(data), len(dst))
	}
	copy(dst, data)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scores := make([]float32, c.width)
	copy(scores, c.outputTensor.GetData())
	return scores, nil
}

func (c *ONNXClassifier) Close() error {
	var errs []error
	if c.session != nil {
		errs = append(errs, c.session.Destroy())
	}
	if c.inputTensor != nil {
		errs = append(errs, c.inputTensor.Destroy())
	}
	if c.outputTensor != nil {
		errs = append(errs, c.outputTensor.Destroy())
	}
	errs = append(errs, ort.DestroyEnvironment())
	return errors.Join(errs...)
}
