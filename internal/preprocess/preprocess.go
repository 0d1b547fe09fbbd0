// Package preprocess turns uploaded image bytes into the fixed-shape float
// tensor the classifier consumes.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultSize = 224
	Channels    = 3
	// DefaultMaxPixels matches the decompression-bomb limit of common
	// imaging libraries.
	DefaultMaxPixels int64 = 178956970
)

var (
	ErrImageDecode  = errors.New("cannot decode image")
	ErrImageProcess = errors.New("cannot process image")
)

// Tensor is a batch of one RGB image in NHWC order with values in [0,1].
type Tensor struct {
	Shape []int64
	Data  []float32
}

func (t *Tensor) Height() int { return int(t.Shape[1]) }
func (t *Tensor) Width() int  { return int(t.Shape[2]) }

// At returns channel c of pixel (x, y).
func (t *Tensor) At(x, y, c int) float32 {
	return t.Data[(y*t.Width()+x)*Channels+c]
}

// NCHW returns the pixel data rearranged into channel planes, for models
// that take channels-first input.
func (t *Tensor) NCHW() []float32 {
	h, w := t.Height(), t.Width()
	plane := h * w
	out := make([]float32, len(t.Data))
	for i := 0; i < plane; i++ {
		for c := 0; c < Channels; c++ {
			out[c*plane+i] = t.Data[i*Channels+c]
		}
	}
	return out
}

type Preprocessor struct {
	size      int
	maxPixels int64
	filter    resize.InterpolationFunction
}

type Option func(*Preprocessor)

// WithMaxPixels caps the declared width*height an upload may have before it
// is decoded. n <= 0 keeps the default.
func WithMaxPixels(n int64) Option {
	return func(p *Preprocessor) {
		if n > 0 {
			p.maxPixels = n
		}
	}
}

func New(size int, opts ...Option) *Preprocessor {
	if size <= 0 {
		size = DefaultSize
	}
	p := &Preprocessor{size: size, maxPixels: DefaultMaxPixels, filter: resize.Bicubic}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Preprocessor) Size() int { return p.size }

// Preprocess decodes raw, drops any alpha or palette, stretches it to
// size x size and rescales every channel to [0,1].
func (p *Preprocessor) Preprocess(raw []byte) (*Tensor, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrImageDecode)
	}
	// The header is checked first so a small file declaring a huge canvas
	// never reaches the pixel allocation in Decode.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.maxPixels {
		return nil, fmt.Errorf("%w: image size (%d pixels) exceeds limit of %d pixels", ErrImageDecode, pixels, p.maxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrImageProcess)
	}

	resized := resize.Resize(uint(p.size), uint(p.size), toRGB(img), p.filter)
	b := resized.Bounds()
	if b.Dx() != p.size || b.Dy() != p.size {
		return nil, fmt.Errorf("%w: resized to %dx%d, want %dx%d", ErrImageProcess, b.Dx(), b.Dy(), p.size, p.size)
	}

	data := make([]float32, p.size*p.size*Channels)
	if rgba, ok := resized.(*image.RGBA); ok {
		for y := 0; y < p.size; y++ {
			row := rgba.Pix[y*rgba.Stride:]
			for x := 0; x < p.size; x++ {
				i := (y*p.size + x) * Channels
				data[i] = float32(row[x*4]) / 255.0
				data[i+1] = float32(row[x*4+1]) / 255.0
				data[i+2] = float32(row[x*4+2]) / 255.0
			}
		}
	} else {
		for y := 0; y < p.size; y++ {
			for x := 0; x < p.size; x++ {
				r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
				i := (y*p.size + x) * Channels
				data[i] = float32(r>>8) / 255.0
				data[i+1] = float32(g>>8) / 255.0
				data[i+2] = float32(bl>>8) / 255.0
			}
		}
	}

	return &Tensor{
		Shape: []int64{1, int64(p.size), int64(p.size), Channels},
		Data:  data,
	}, nil
}

// toRGB copies img into an opaque RGBA image. Alpha is discarded rather than
// composited, so transparent pixels keep their stored colour.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}
