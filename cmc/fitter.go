package cmc

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrTooFewPoints reports that a fit was requested with fewer correspondences
// than the warp model needs.
var ErrTooFewPoints = errors.New("too few point pairs to constrain the model")

// ErrDegenerateFit reports that the robust fit could not produce a model, for
// example when the geometry is degenerate or every correspondence is an
// outlier.
var ErrDegenerateFit = errors.New("robust fit failed to converge on a model")

// Fitter recovers a best-fit 2-D transform from two parallel point sets using
// a method tolerant of a minority of mismatched correspondences.
//
// Implementations return ErrTooFewPoints or ErrDegenerateFit rather than a
// partial result; both are recoverable conditions for the caller. The inlier
// count reports how many pairs supported the returned model.
type Fitter interface {
	Fit(prev, curr []gocv.Point2f) (Transform, int, error)
}

// FitConfig parameterizes the RANSAC-backed fitter.
type FitConfig struct {
	// Model selects the fitted transform family.
	Model WarpModel
	// RansacThreshold is the maximum reprojection error, in preprocessed
	// frame pixels, for a correspondence to count as an inlier.
	RansacThreshold float64
	// MaxIterations bounds the RANSAC sampling loop.
	MaxIterations int
	// Confidence is the target probability that the sampled model is
	// outlier-free.
	Confidence float64
	// RefineIterations bounds the final refinement of the affine-family
	// models over their inlier sets.
	RefineIterations int
}

// RANSACFitter implements Fitter with OpenCV's sampling-consensus estimators:
// partial affine for the translation and euclidean models, full affine, or
// homography.
//
// The estimators sample correspondences through OpenCV's process-global RNG,
// so two runs on identical input may select different inlier sets unless the
// caller pins the seed (see Config.Seed).
type RANSACFitter struct {
	cfg FitConfig
}

// NewRANSACFitter creates a fitter for the given configuration.
func NewRANSACFitter(cfg FitConfig) (*RANSACFitter, error) {
	if !cfg.Model.valid() {
		return nil, errors.Errorf("unknown warp model %d", int(cfg.Model))
	}
	if cfg.RansacThreshold <= 0 {
		return nil, errors.Errorf("invalid RANSAC threshold %f", cfg.RansacThreshold)
	}
	if cfg.MaxIterations <= 0 {
		return nil, errors.Errorf("invalid max iterations %d", cfg.MaxIterations)
	}
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		return nil, errors.Errorf("invalid confidence %f: must be in (0, 1)", cfg.Confidence)
	}
	return &RANSACFitter{cfg: cfg}, nil
}

// Fit estimates the configured model mapping prev points onto curr points.
func (f *RANSACFitter) Fit(prev, curr []gocv.Point2f) (Transform, int, error) {
	if len(prev) != len(curr) {
		return Identity(f.cfg.Model), 0, errors.Errorf("point set size mismatch: %d vs %d", len(prev), len(curr))
	}
	if len(prev) < f.cfg.Model.minPoints() {
		return Identity(f.cfg.Model), 0, errors.Wrapf(ErrTooFewPoints, "have %d, need %d", len(prev), f.cfg.Model.minPoints())
	}

	if f.cfg.Model == WarpHomography {
		return f.fitHomography(prev, curr)
	}
	return f.fitAffine(prev, curr)
}

func (f *RANSACFitter) fitAffine(prev, curr []gocv.Point2f) (Transform, int, error) {
	from := gocv.NewPoint2fVectorFromPoints(prev)
	defer from.Close()
	to := gocv.NewPoint2fVectorFromPoints(curr)
	defer to.Close()
	inliers := gocv.NewMat()
	defer inliers.Close()

	var warp gocv.Mat
	if f.cfg.Model == WarpAffine {
		warp = gocv.EstimateAffine2DWithParams(from, to, inliers, int(gocv.HomograpyMethodRANSAC),
			f.cfg.RansacThreshold, uint(f.cfg.MaxIterations), f.cfg.Confidence, uint(f.cfg.RefineIterations))
	} else {
		warp = gocv.EstimateAffinePartial2DWithParams(from, to, inliers, int(gocv.HomograpyMethodRANSAC),
			f.cfg.RansacThreshold, uint(f.cfg.MaxIterations), f.cfg.Confidence, uint(f.cfg.RefineIterations))
	}
	defer warp.Close()

	t, ok := transformFromMat(warp, false)
	if !ok {
		return Identity(f.cfg.Model), 0, ErrDegenerateFit
	}
	if f.cfg.Model == WarpTranslation {
		t = t.translationOnly()
	}
	return t, countInliers(inliers), nil
}

func (f *RANSACFitter) fitHomography(prev, curr []gocv.Point2f) (Transform, int, error) {
	src := pointMat(prev)
	defer src.Close()
	dst := pointMat(curr)
	defer dst.Close()
	inliers := gocv.NewMat()
	defer inliers.Close()

	warp := gocv.FindHomography(src, &dst, gocv.HomograpyMethodRANSAC,
		f.cfg.RansacThreshold, &inliers, f.cfg.MaxIterations, f.cfg.Confidence)
	defer warp.Close()

	t, ok := transformFromMat(warp, true)
	if !ok {
		return Identity(f.cfg.Model), 0, ErrDegenerateFit
	}
	return t, countInliers(inliers), nil
}

// pointMat packs points into the Nx1 two-channel layout FindHomography
// expects.
func pointMat(points []gocv.Point2f) gocv.Mat {
	mat := gocv.NewMatWithSize(len(points), 1, gocv.MatTypeCV64FC2)
	for i, p := range points {
		mat.SetDoubleAt(i, 0, float64(p.X))
		mat.SetDoubleAt(i, 1, float64(p.Y))
	}
	return mat
}

func countInliers(mask gocv.Mat) int {
	if mask.Empty() {
		return 0
	}
	return gocv.CountNonZero(mask)
}
