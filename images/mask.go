package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// BorderFraction is the share of each frame edge excluded from feature
// search. Lens and stabilization artifacts concentrate near the borders, so
// search is biased toward the visual center of the frame.
const BorderFraction = 0.02

// ExclusionMaskBytes rasterizes the search mask for a preprocessed frame of
// (height, width) pixels: 255 where feature search is permitted, 0 elsewhere.
//
// The mask excludes a BorderFraction-wide band on every side plus each
// detection rectangle. Detections arrive in full-resolution coordinates and
// are mapped into the preprocessed frame by the (sx, sy) factors the frame was
// downscaled with, truncated to integer pixels, and clipped to the mask
// bounds. A nil or empty detections slice leaves only the border exclusion.
//
// The result is row-major, one byte per pixel.
func ExclusionMaskBytes(height, width int, sx, sy float64, detections []Box) []byte {
	mask := make([]byte, height*width)

	top := int(BorderFraction * float64(height))
	left := int(BorderFraction * float64(width))
	bottom := int((1 - BorderFraction) * float64(height))
	right := int((1 - BorderFraction) * float64(width))
	for y := top; y < bottom; y++ {
		row := mask[y*width : (y+1)*width]
		for x := left; x < right; x++ {
			row[x] = 255
		}
	}

	bounds := image.Rect(0, 0, width, height)
	for _, det := range detections {
		r := det.Scaled(sx, sy).ToRect().Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := mask[y*width : (y+1)*width]
			for x := r.Min.X; x < r.Max.X; x++ {
				row[x] = 0
			}
		}
	}

	return mask
}

// ExclusionMask builds the feature-search mask as a single-channel Mat
// suitable for passing to a keypoint detector. See ExclusionMaskBytes for the
// mask semantics. The returned Mat is owned by the caller.
func ExclusionMask(height, width int, sx, sy float64, detections []Box) (gocv.Mat, error) {
	if height <= 0 || width <= 0 {
		return gocv.NewMat(), errors.Errorf("invalid mask dimensions %dx%d", width, height)
	}
	data := ExclusionMaskBytes(height, width, sx, sy, detections)
	mask, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8U, data)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "build exclusion mask")
	}
	return mask, nil
}
