package cmc

import (
	"image"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-cmc/features"
	"github.com/nvr-ai/go-cmc/images"
)

// Config contains the estimator configuration. It is fixed at construction;
// invalid values fail fast rather than producing silently wrong transforms
// later.
type Config struct {
	// Model selects the fitted transform family.
	Model WarpModel
	// Eps is the convergence threshold forwarded to iterative refinement
	// backends. The RANSAC backends stop on iterations and confidence
	// instead, but the value is validated and carried so refiner-style
	// fitters keep working behind the Fitter boundary.
	Eps float64
	// MaxIterations bounds the robust-fit sampling loop.
	MaxIterations int
	// Scale is the preprocessing downsample ratio, 0 < Scale <= 1. Smaller
	// values trade feature-localization precision for throughput.
	Scale float64
	// TargetSize, when set, preprocesses frames to an explicit (W, H)
	// instead of applying Scale.
	TargetSize image.Point
	// Align keeps the previous preprocessed frame and produces a warped
	// copy of it registered onto the current frame, for visualization.
	Align bool
	// Grayscale converts frames to single-channel before feature search.
	Grayscale bool
	// MatchRatio is the ambiguity-rejection threshold of the descriptor
	// matcher, in (0, 1).
	MatchRatio float32
	// MinFeatures is the minimum descriptor count (and minimum surviving
	// match count) below which the frame degrades to the identity
	// transform.
	MinFeatures int
	// RansacThreshold is the inlier reprojection bound in preprocessed
	// frame pixels.
	RansacThreshold float64
	// Confidence is the robust fit's target inlier-model probability.
	Confidence float64
	// Seed, when non-negative, pins OpenCV's process-global RNG before
	// every fit so runs on identical input are repeatable. Leave negative
	// to accept run-to-run variation in the sampled inlier sets.
	Seed int
}

// DefaultConfig mirrors the defaults this estimator is normally run with in a
// tracking pipeline: euclidean motion, aggressive 10x downscale, grayscale
// input.
func DefaultConfig() Config {
	return Config{
		Model:           WarpEuclidean,
		Eps:             1e-5,
		MaxIterations:   100,
		Scale:           0.1,
		Align:           false,
		Grayscale:       true,
		MatchRatio:      features.DefaultRatio,
		MinFeatures:     10,
		RansacThreshold: 3.0,
		Confidence:      0.99,
		Seed:            -1,
	}
}

// Validate rejects configurations the estimator cannot run with.
func (c Config) Validate() error {
	if !c.Model.valid() {
		return errors.Errorf("unknown warp model %d", int(c.Model))
	}
	if c.Eps <= 0 {
		return errors.Errorf("invalid eps %g", c.Eps)
	}
	if c.MinFeatures < 1 {
		return errors.Errorf("invalid minimum feature count %d", c.MinFeatures)
	}
	if err := c.preprocess().Validate(); err != nil {
		return err
	}
	// Matcher and fitter construction revalidate their own slices of the
	// configuration; checked here so New fails before any native state is
	// allocated.
	if c.MatchRatio <= 0 || c.MatchRatio >= 1 {
		return errors.Errorf("invalid match ratio %f: must be in (0, 1)", c.MatchRatio)
	}
	return nil
}

// preprocess derives the frame preparation configuration.
func (c Config) preprocess() images.PreprocessConfig {
	return images.PreprocessConfig{
		Grayscale:  c.Grayscale,
		Scale:      c.Scale,
		TargetSize: c.TargetSize,
	}
}

// fit derives the robust-fit configuration.
func (c Config) fit() FitConfig {
	return FitConfig{
		Model:            c.Model,
		RansacThreshold:  c.RansacThreshold,
		MaxIterations:    c.MaxIterations,
		Confidence:       c.Confidence,
		RefineIterations: 10,
	}
}
