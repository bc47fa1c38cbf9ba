// Package normalizer re-encodes uploaded images as JPEG under a size ceiling.
//
// The first encode runs at quality 90. When that does not fit, qualities 90
// down to 0 in steps of 10 are tried with the optimizing flag set, and the
// first fitting attempt wins. The ceiling is best effort: when no attempt
// fits, the lowest-quality attempt is returned.
package normalizer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder

	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

const (
	DefaultMaxKB = 1024
	// DefaultMaxPixels matches the common decompression-bomb limit of
	// 1024*1024*1024/4/3 pixels.
	DefaultMaxPixels = 89_478_485

	initialQuality = 90
	qualityStep    = 10
	maxSteps       = 10

	// MaxAttempts bounds the encoder calls for one image.
	MaxAttempts = 1 + maxSteps
)

// ErrDecode marks input that could not be decoded as an image.
var ErrDecode = errors.New("image decode failed")

// Policy controls what happens when decoding or encoding fails.
type Policy int

const (
	// PolicyFail surfaces the error to the caller.
	PolicyFail Policy = iota
	// PolicyPassthrough returns the original bytes unchanged.
	PolicyPassthrough
)

// Encoder writes img as JPEG. optimize is true for the search attempts.
type Encoder interface {
	Encode(buf *bytes.Buffer, img image.Image, quality int, optimize bool) error
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(buf *bytes.Buffer, img image.Image, quality int, optimize bool) error

func (f EncoderFunc) Encode(buf *bytes.Buffer, img image.Image, quality int, optimize bool) error {
	return f(buf, img, quality, optimize)
}

// JPEGEncoder uses image/jpeg. The stdlib encoder always writes the standard
// Huffman tables, so optimize does not change its output.
var JPEGEncoder Encoder = EncoderFunc(func(buf *bytes.Buffer, img image.Image, quality int, _ bool) error {
	return jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
})

// Output describes one normalization.
type Output struct {
	Data []byte
	// Attempts is the number of encoder calls made.
	Attempts int
	// Quality of the returned encoding; -1 when Passthrough is set.
	Quality int
	// Fits reports whether Data is within the ceiling.
	Fits bool
	// Passthrough is set when the original bytes were returned because of
	// PolicyPassthrough.
	Passthrough bool
	// Cause holds the swallowed error under PolicyPassthrough.
	Cause error
}

type Normalizer struct {
	maxBytes  int
	maxPixels int64
	policy    Policy
	encoder   Encoder
}

type Option func(*Normalizer)

// WithMaxKB sets the ceiling in kilobytes. Values <= 0 keep the default.
func WithMaxKB(kb int) Option {
	return func(n *Normalizer) {
		if kb > 0 {
			n.maxBytes = kb * 1024
		}
	}
}

// WithMaxPixels caps width*height of accepted images. The header is checked
// before any raster is allocated. Values <= 0 keep the default.
func WithMaxPixels(px int64) Option {
	return func(n *Normalizer) {
		if px > 0 {
			n.maxPixels = px
		}
	}
}

func WithPolicy(p Policy) Option {
	return func(n *Normalizer) { n.policy = p }
}

func WithEncoder(e Encoder) Option {
	return func(n *Normalizer) {
		if e != nil {
			n.encoder = e
		}
	}
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		maxBytes:  DefaultMaxKB * 1024,
		maxPixels: DefaultMaxPixels,
		policy:    PolicyFail,
		encoder:   JPEGEncoder,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// MaxBytes returns the ceiling in bytes.
func (n *Normalizer) MaxBytes() int { return n.maxBytes }

// Normalize re-encodes data under the hard-fail policy with a ceiling of
// maxKB kilobytes.
func Normalize(data []byte, maxKB int) ([]byte, error) {
	out, err := New(WithMaxKB(maxKB)).Normalize(data)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (n *Normalizer) Normalize(data []byte) (Output, error) {
	out, err := n.normalize(data)
	if err != nil && n.policy == PolicyPassthrough {
		return Output{Data: data, Attempts: out.Attempts, Quality: -1, Fits: len(data) <= n.maxBytes, Passthrough: true, Cause: err}, nil
	}
	return out, err
}

func (n *Normalizer) normalize(data []byte) (Output, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > n.maxPixels {
		return Output{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, n.maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	img = toRGB(img)

	var out Output
	encode := func(quality int, optimize bool) ([]byte, error) {
		out.Attempts++
		var buf bytes.Buffer
		if err := n.encoder.Encode(&buf, img, quality, optimize); err != nil {
			return nil, fmt.Errorf("encode jpeg q=%d: %w", quality, err)
		}
		return buf.Bytes(), nil
	}

	b, err := encode(initialQuality, false)
	if err != nil {
		return out, err
	}
	if len(b) <= n.maxBytes {
		out.Data, out.Quality, out.Fits = b, initialQuality, true
		return out, nil
	}

	quality := initialQuality
	for i := 0; i < maxSteps; i++ {
		b, err = encode(quality, true)
		if err != nil {
			return out, err
		}
		out.Data, out.Quality = b, quality
		if len(b) <= n.maxBytes {
			out.Fits = true
			return out, nil
		}
		quality -= qualityStep
	}
	return out, nil
}
