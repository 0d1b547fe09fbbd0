package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/animelens-api/internal/model"
	"github.com/Brownie44l1/animelens-api/internal/preprocess"
	"github.com/Brownie44l1/animelens-api/internal/ranker"
)

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, input *preprocess.Tensor) ([]float32, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockClassifier) OutputWidth() int {
	return m.Called().Int(0)
}

func (m *MockClassifier) Close() error {
	return m.Called().Error(0)
}

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var labels = model.NewLabelSet([]string{"A", "B", "C", "D", "E"})

func TestPredict(t *testing.T) {
	classifier := new(MockClassifier)
	classifier.On("OutputWidth").Return(5)
	classifier.On("Classify", mock.Anything, mock.MatchedBy(func(in *preprocess.Tensor) bool {
		return len(in.Data) == 224*224*3 && in.Shape[0] == 1
	})).Return([]float32{0.1, 0.7, 0.05, 0.1, 0.05}, nil)

	p, err := New(preprocess.New(224), classifier, labels, 3, "onnx")
	require.NoError(t, err)
	require.True(t, p.Ready())

	preds, err := p.Predict(context.Background(), testImage(t))
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, "B", preds[0].Label)
	assert.InDelta(t, 0.7, preds[0].Score, 1e-6)
	classifier.AssertExpectations(t)
}

func TestPredict_Idempotent(t *testing.T) {
	classifier := new(MockClassifier)
	classifier.On("OutputWidth").Return(5)
	classifier.On("Classify", mock.Anything, mock.Anything).Return([]float32{0.3, 0.1, 0.2, 0.25, 0.15}, nil)

	p, err := New(preprocess.New(224), classifier, labels, 5, "onnx")
	require.NoError(t, err)

	raw := testImage(t)
	first, err := p.Predict(context.Background(), raw)
	require.NoError(t, err)
	second, err := p.Predict(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	calls := classifier.Calls
	var inputs []*preprocess.Tensor
	for _, c := range calls {
		if c.Method == "Classify" {
			inputs = append(inputs, c.Arguments.Get(1).(*preprocess.Tensor))
		}
	}
	require.Len(t, inputs, 2)
	assert.Equal(t, inputs[0].Data, inputs[1].Data)
}

func TestPredict_ClientFault(t *testing.T) {
	classifier := new(MockClassifier)
	classifier.On("OutputWidth").Return(5)

	p, err := New(preprocess.New(224), classifier, labels, 3, "onnx")
	require.NoError(t, err)

	preds, err := p.Predict(context.Background(), []byte("plain text, not an image"))
	assert.Nil(t, preds)
	assert.ErrorIs(t, err, preprocess.ErrImageDecode)
	assert.True(t, IsClientFault(err))
	classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestPredict_InferenceFault(t *testing.T) {
	classifier := new(MockClassifier)
	classifier.On("OutputWidth").Return(5)
	classifier.On("Classify", mock.Anything, mock.Anything).Return(nil, errors.New("session exploded"))

	p, err := New(preprocess.New(224), classifier, labels, 3, "onnx")
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), testImage(t))
	assert.ErrorIs(t, err, ErrInference)
	assert.False(t, IsClientFault(err))
	assert.Contains(t, err.Error(), "session exploded")
}

func TestPredict_ShortScoreVector(t *testing.T) {
	classifier := new(MockClassifier)
	classifier.On("OutputWidth").Return(5)
	classifier.On("Classify", mock.Anything, mock.Anything).Return([]float32{0.5, 0.5}, nil)

	p, err := New(preprocess.New(224), classifier, labels, 3, "onnx")
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), testImage(t))
	assert.ErrorIs(t, err, ErrInference)
	assert.ErrorIs(t, err, ranker.ErrWidthMismatch)
}

func TestPredict_ModelNotLoaded(t *testing.T) {
	p, err := New(preprocess.New(224), nil, model.FallbackLabelSet(), 5, "onnx")
	require.NoError(t, err)
	assert.False(t, p.Ready())

	_, err = p.Predict(context.Background(), testImage(t))
	assert.ErrorIs(t, err, ErrModelNotLoaded)
}

func TestNew_RejectsLabelWidthMismatch(t *testing.T) {
	classifier := new(MockClassifier)
	classifier.On("OutputWidth").Return(7)

	_, err := New(preprocess.New(224), classifier, labels, 3, "onnx")
	assert.ErrorIs(t, err, model.ErrLabelWidthMismatch)
}

func TestNew_RejectsBadTopK(t *testing.T) {
	_, err := New(preprocess.New(224), nil, labels, 0, "onnx")
	assert.ErrorIs(t, err, ranker.ErrInvalidK)
}
