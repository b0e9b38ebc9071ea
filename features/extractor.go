// Package features - Keypoint detection, descriptor extraction, and
// descriptor matching for frame-to-frame correspondence.
package features

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Extractor detects salient points in a frame and computes a fixed-length
// descriptor per point.
//
// Contract:
//   - Keypoints are restricted to mask-positive pixels; an all-zero mask (or a
//     featureless frame) yields zero keypoints, which is valid, not an error.
//   - The returned descriptor Mat has one row per keypoint, at the same index.
//   - Descriptor distance is comparable across calls as long as the extractor
//     configuration is unchanged.
//
// The caller owns the returned descriptor Mat and must Close it.
type Extractor interface {
	DetectAndDescribe(frame gocv.Mat, mask gocv.Mat) ([]gocv.KeyPoint, gocv.Mat, error)
	Close() error
}

// SIFTExtractor implements Extractor with OpenCV's SIFT detector/descriptor.
// Descriptors are 128-dimensional float32 vectors compared with L2 distance.
//
// Not safe for concurrent use; each processing stream needs its own instance.
type SIFTExtractor struct {
	sift gocv.SIFT
}

// NewSIFTExtractor creates a SIFT-backed extractor. Always Close it to
// release the native detector.
func NewSIFTExtractor() *SIFTExtractor {
	return &SIFTExtractor{sift: gocv.NewSIFT()}
}

// DetectAndDescribe finds keypoints in the masked frame and computes their
// descriptors.
func (e *SIFTExtractor) DetectAndDescribe(frame gocv.Mat, mask gocv.Mat) ([]gocv.KeyPoint, gocv.Mat, error) {
	if frame.Empty() {
		return nil, gocv.NewMat(), errors.New("empty frame")
	}
	keypoints, descriptors := e.sift.DetectAndCompute(frame, mask)
	return keypoints, descriptors, nil
}

// Close releases the native SIFT resources.
func (e *SIFTExtractor) Close() error {
	return e.sift.Close()
}
