package images

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// PreprocessConfig controls how a raw frame is prepared before feature search.
type PreprocessConfig struct {
	// Grayscale converts 3-channel input to single-channel intensity,
	// which roughly halves feature extraction time.
	Grayscale bool
	// Scale is the uniform downsample ratio, 0 < Scale <= 1. A value of 1
	// leaves the frame at full resolution. Ignored when TargetSize is set.
	Scale float64
	// TargetSize, when non-zero, resizes the frame to an explicit (W, H)
	// instead of applying Scale.
	TargetSize image.Point
}

// Validate rejects configurations that would produce silently wrong frames.
func (c PreprocessConfig) Validate() error {
	if c.TargetSize != (image.Point{}) {
		if c.TargetSize.X <= 0 || c.TargetSize.Y <= 0 {
			return errors.Errorf("invalid target size %dx%d", c.TargetSize.X, c.TargetSize.Y)
		}
		return nil
	}
	if c.Scale <= 0 || c.Scale > 1 {
		return errors.Errorf("invalid scale %f: must be in (0, 1]", c.Scale)
	}
	return nil
}

// Factors returns the effective per-axis scale factors for a source frame of
// the given dimensions. With a ratio configuration both factors equal Scale;
// with TargetSize they are derived from the source dimensions.
func (c PreprocessConfig) Factors(srcWidth, srcHeight int) (sx, sy float64) {
	if c.TargetSize != (image.Point{}) {
		return float64(c.TargetSize.X) / float64(srcWidth), float64(c.TargetSize.Y) / float64(srcHeight)
	}
	return c.Scale, c.Scale
}

// Preprocess converts a raw frame into the representation used for feature
// search: optionally single-channel, downscaled with linear interpolation.
//
// The returned Mat is a new allocation owned by the caller; the source is not
// modified. Deterministic for a fixed input and configuration.
func Preprocess(src gocv.Mat, cfg PreprocessConfig) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), errors.New("empty input frame")
	}
	if err := cfg.Validate(); err != nil {
		return gocv.NewMat(), errors.Wrap(err, "preprocess")
	}

	gray := gocv.NewMat()
	if cfg.Grayscale && src.Channels() > 1 {
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	} else {
		src.CopyTo(&gray)
	}

	switch {
	case cfg.TargetSize != (image.Point{}):
		resized := gocv.NewMat()
		gocv.Resize(gray, &resized, cfg.TargetSize, 0, 0, gocv.InterpolationLinear)
		gray.Close()
		return resized, nil
	case cfg.Scale != 1:
		resized := gocv.NewMat()
		gocv.Resize(gray, &resized, image.Point{}, cfg.Scale, cfg.Scale, gocv.InterpolationLinear)
		gray.Close()
		return resized, nil
	}

	return gray, nil
}

// PreprocessImage is the pure-Go counterpart of Preprocess for callers holding
// Go-native frames. Grayscale conversion uses the standard luminance model and
// resizing uses bilinear interpolation.
func PreprocessImage(src image.Image, cfg PreprocessConfig) (image.Image, error) {
	if src == nil {
		return nil, errors.New("nil input frame")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "preprocess")
	}

	out := src
	if cfg.Grayscale {
		bounds := src.Bounds()
		gray := image.NewGray(bounds)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				gray.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
			}
		}
		out = gray
	}

	bounds := out.Bounds()
	sx, sy := cfg.Factors(bounds.Dx(), bounds.Dy())
	width := uint(float64(bounds.Dx()) * sx)
	height := uint(float64(bounds.Dy()) * sy)
	if int(width) != bounds.Dx() || int(height) != bounds.Dy() {
		out = resize.Resize(width, height, out, resize.Bilinear)
	}

	return out, nil
}
