package cmc

import (
	"image"
	"log"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-cmc/features"
	"github.com/nvr-ai/go-cmc/images"
)

// Estimator recovers the apparent camera motion between consecutive frames of
// one video stream.
//
// Each call to Estimate compares the incoming frame against the immediately
// preceding one: frames are preprocessed, salient features are extracted
// outside the frame border and outside known foreground detections, matched
// against the cached previous extraction, and a robust transform is fitted to
// the surviving correspondences. Whenever any stage lacks data the estimator
// degrades to the identity transform instead of failing, so a tracking
// pipeline keeps running through featureless stretches.
//
// The estimator owns mutable per-stream state (the previous frame's keypoints
// and descriptors) and is not safe for concurrent use. Process concurrent
// streams with one independent instance per stream. Always Close an estimator
// to release native resources.
type Estimator struct {
	cfg       Config
	extractor features.Extractor
	matcher   *features.Matcher
	fitter    Fitter

	prevKeypoints   []gocv.KeyPoint
	prevDescriptors gocv.Mat
	prevFrame       gocv.Mat // retained only when cfg.Align
	aligned         gocv.Mat
	initialized     bool
}

// New creates an estimator with the shipped collaborators: SIFT feature
// extraction and RANSAC model fitting.
func New(cfg Config) (*Estimator, error) {
	fitter, err := NewRANSACFitter(cfg.fit())
	if err != nil {
		return nil, err
	}
	return NewWithCollaborators(cfg, features.NewSIFTExtractor(), fitter)
}

// NewWithCollaborators creates an estimator with caller-supplied extraction
// and fitting backends. The estimator takes ownership of the extractor and
// closes it with Close.
func NewWithCollaborators(cfg Config, extractor features.Extractor, fitter Fitter) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "cmc config")
	}
	if extractor == nil || fitter == nil {
		return nil, errors.New("nil collaborator")
	}
	matcher, err := features.NewMatcher(cfg.MatchRatio)
	if err != nil {
		return nil, errors.Wrap(err, "cmc config")
	}
	return &Estimator{
		cfg:             cfg,
		extractor:       extractor,
		matcher:         matcher,
		fitter:          fitter,
		prevDescriptors: gocv.NewMat(),
		prevFrame:       gocv.NewMat(),
		aligned:         gocv.NewMat(),
	}, nil
}

// Estimate computes the transform mapping the previous frame's coordinates to
// the current frame's, in full-resolution units.
//
// detections holds bounding boxes of known foreground objects, in
// full-resolution coordinates; their regions are excluded from feature search
// so foreground motion cannot contaminate the background estimate. The slice
// may be nil or empty.
//
// The very first call on a fresh (or Reset) estimator returns the identity
// transform: there is nothing to compare against yet. Later calls return the
// identity whenever features, matches, or the fit itself fall short; those
// conditions are recoverable and reported through the log, not the error.
// A non-nil error means the frame could not be processed at all (empty input,
// extraction failure) — the cached state is left as is in that case only when
// no extraction happened.
func (e *Estimator) Estimate(frame gocv.Mat, detections []images.Box) (Transform, error) {
	identity := Identity(e.cfg.Model)

	pre, err := images.Preprocess(frame, e.cfg.preprocess())
	if err != nil {
		return identity, errors.Wrap(err, "preprocess frame")
	}
	defer pre.Close()

	sx, sy := e.cfg.preprocess().Factors(frame.Cols(), frame.Rows())

	mask, err := images.ExclusionMask(pre.Rows(), pre.Cols(), sx, sy, detections)
	if err != nil {
		return identity, err
	}
	defer mask.Close()

	keypoints, descriptors, err := e.extractor.DetectAndDescribe(pre, mask)
	if err != nil {
		return identity, errors.Wrap(err, "detect features")
	}

	// From here on the cache is always refreshed with this extraction, even
	// on degraded paths, so the next call compares against this frame and
	// never against stale history.
	if !e.initialized {
		e.refreshCache(keypoints, descriptors, pre)
		e.initialized = true
		return identity, nil
	}

	if descriptors.Rows() < e.cfg.MinFeatures || e.prevDescriptors.Rows() < e.cfg.MinFeatures {
		log.Printf("cmc: insufficient features (prev=%d curr=%d, need %d), assuming no camera motion",
			e.prevDescriptors.Rows(), descriptors.Rows(), e.cfg.MinFeatures)
		e.refreshCache(keypoints, descriptors, pre)
		return identity, nil
	}

	matches, err := e.matcher.Match(e.prevDescriptors, descriptors)
	if err != nil {
		e.refreshCache(keypoints, descriptors, pre)
		return identity, errors.Wrap(err, "match descriptors")
	}
	if len(matches) < e.cfg.MinFeatures {
		log.Printf("cmc: not enough matching points (%d of %d needed), assuming no camera motion",
			len(matches), e.cfg.MinFeatures)
		e.refreshCache(keypoints, descriptors, pre)
		return identity, nil
	}

	prevPts := make([]gocv.Point2f, len(matches))
	currPts := make([]gocv.Point2f, len(matches))
	for i, m := range matches {
		pk := e.prevKeypoints[m.PrevIdx]
		ck := keypoints[m.CurrIdx]
		prevPts[i] = gocv.Point2f{X: float32(pk.X), Y: float32(pk.Y)}
		currPts[i] = gocv.Point2f{X: float32(ck.X), Y: float32(ck.Y)}
	}

	if e.cfg.Seed >= 0 {
		gocv.SetRNGSeed(e.cfg.Seed)
	}
	warp, inliers, err := e.fitter.Fit(prevPts, currPts)
	if err != nil {
		log.Printf("cmc: robust fit failed (%v), assuming no camera motion", err)
		warp = identity
	} else {
		log.Printf("cmc: fitted %s warp from %d matches (%d inliers)", e.cfg.Model, len(matches), inliers)
	}

	if e.cfg.Align {
		e.renderAligned(pre, warp)
	}
	e.refreshCache(keypoints, descriptors, pre)

	return warp.Upscaled(sx, sy), nil
}

// Aligned returns the previous frame warped onto the current frame's
// coordinates, produced by the last Estimate call when Config.Align is set.
// The Mat is owned by the estimator and only valid until the next call; it is
// empty when alignment is disabled or no warp has been produced yet.
func (e *Estimator) Aligned() gocv.Mat {
	return e.aligned
}

// renderAligned warps the cached previous frame with the preprocessed-scale
// transform, before it is rescaled to full-resolution units.
func (e *Estimator) renderAligned(curr gocv.Mat, warp Transform) {
	if e.prevFrame.Empty() {
		return
	}
	mat := warp.Mat()
	defer mat.Close()
	size := curr.Size()
	if warp.Projective() {
		gocv.WarpPerspective(e.prevFrame, &e.aligned, mat, image.Pt(size[1], size[0]))
	} else {
		gocv.WarpAffine(e.prevFrame, &e.aligned, mat, image.Pt(size[1], size[0]))
	}
}

// refreshCache replaces the previous-frame state with the current extraction.
// The estimator assumes ownership of the descriptor Mat.
func (e *Estimator) refreshCache(keypoints []gocv.KeyPoint, descriptors gocv.Mat, pre gocv.Mat) {
	if !e.prevDescriptors.Empty() {
		e.prevDescriptors.Close()
	}
	e.prevKeypoints = keypoints
	e.prevDescriptors = descriptors

	if e.cfg.Align {
		if !e.prevFrame.Empty() {
			e.prevFrame.Close()
		}
		e.prevFrame = pre.Clone()
	}
}

// Reset drops all cached state, returning the estimator to its
// pre-first-frame condition. Use it when the stream restarts or seeks.
func (e *Estimator) Reset() {
	e.prevKeypoints = nil
	if !e.prevDescriptors.Empty() {
		e.prevDescriptors.Close()
	}
	e.prevDescriptors = gocv.NewMat()
	if !e.prevFrame.Empty() {
		e.prevFrame.Close()
	}
	e.prevFrame = gocv.NewMat()
	e.initialized = false
}

// Close releases the estimator's native resources, including the extractor.
func (e *Estimator) Close() error {
	e.prevDescriptors.Close()
	e.prevFrame.Close()
	e.aligned.Close()
	return e.extractor.Close()
}
