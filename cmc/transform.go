// Package cmc estimates apparent camera motion between consecutive video
// frames as a 2-D geometric transform, so that a downstream tracker can
// separate true object motion from motion induced by the camera.
package cmc

import (
	"fmt"

	"gocv.io/x/gocv"
)

// WarpModel selects the transform family fitted between frames.
type WarpModel int

const (
	// WarpTranslation recovers a pure shift.
	WarpTranslation WarpModel = iota
	// WarpEuclidean recovers rotation, uniform scale, and translation (4 DOF).
	WarpEuclidean
	// WarpAffine recovers shift, rotation, scale, and shear (6 DOF).
	WarpAffine
	// WarpHomography recovers a full projective transform (8 DOF).
	WarpHomography
)

func (m WarpModel) String() string {
	switch m {
	case WarpTranslation:
		return "translation"
	case WarpEuclidean:
		return "euclidean"
	case WarpAffine:
		return "affine"
	case WarpHomography:
		return "homography"
	default:
		return fmt.Sprintf("warp_model(%d)", int(m))
	}
}

// ParseWarpModel converts a model name (as accepted on the command line) to a
// WarpModel.
func ParseWarpModel(name string) (WarpModel, bool) {
	switch name {
	case "translation":
		return WarpTranslation, true
	case "euclidean":
		return WarpEuclidean, true
	case "affine":
		return WarpAffine, true
	case "homography":
		return WarpHomography, true
	default:
		return 0, false
	}
}

func (m WarpModel) valid() bool {
	return m >= WarpTranslation && m <= WarpHomography
}

// minPoints is the smallest correspondence count that constrains the model.
func (m WarpModel) minPoints() int {
	switch m {
	case WarpAffine:
		return 3
	case WarpHomography:
		return 4
	default:
		return 2
	}
}

// Transform maps previous-frame coordinates to current-frame coordinates in
// full-resolution units. Affine-family models use the top two rows (a 2x3
// matrix); a homography uses all three. The zero value is not meaningful; use
// Identity.
type Transform struct {
	m          [3][3]float64
	projective bool
}

// Identity returns the no-motion transform for the given model family. It is
// the safe default whenever estimation is not possible.
func Identity(model WarpModel) Transform {
	return Transform{
		m:          [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		projective: model == WarpHomography,
	}
}

// Projective reports whether the transform is a 3x3 homography rather than a
// 2x3 affine-family matrix.
func (t Transform) Projective() bool {
	return t.projective
}

// Rows is 3 for a homography and 2 for the affine family.
func (t Transform) Rows() int {
	if t.projective {
		return 3
	}
	return 2
}

// At returns the matrix entry at (row, col). Row 2 of an affine-family
// transform reads as the implicit (0, 0, 1).
func (t Transform) At(row, col int) float64 {
	return t.m[row][col]
}

// Translation returns the transform's translation components in pixels.
func (t Transform) Translation() (tx, ty float64) {
	return t.m[0][2], t.m[1][2]
}

// Apply maps a previous-frame point to its current-frame position.
func (t Transform) Apply(x, y float64) (float64, float64) {
	nx := t.m[0][0]*x + t.m[0][1]*y + t.m[0][2]
	ny := t.m[1][0]*x + t.m[1][1]*y + t.m[1][2]
	if !t.projective {
		return nx, ny
	}
	w := t.m[2][0]*x + t.m[2][1]*y + t.m[2][2]
	if w == 0 {
		return nx, ny
	}
	return nx / w, ny / w
}

// IsIdentity reports whether the transform equals the identity exactly.
func (t Transform) IsIdentity() bool {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			want := 0.0
			if r == c {
				want = 1.0
			}
			if t.m[r][c] != want {
				return false
			}
		}
	}
	return true
}

// Upscaled maps a transform estimated in downscaled coordinates back to
// full-resolution coordinates, undoing a preprocessing downsample by factors
// (sx, sy). Formally this conjugates by the scaling S = diag(sx, sy, 1):
// T' = S^-1 * T * S. Under uniform scaling the affine linear part is
// untouched and only the translation column is divided by the factor; the
// projective row of a homography is multiplied by it.
func (t Transform) Upscaled(sx, sy float64) Transform {
	if sx == 1 && sy == 1 {
		return t
	}
	out := t
	// S^-1 * T: divide row i by its factor.
	for c := 0; c < 3; c++ {
		out.m[0][c] /= sx
		out.m[1][c] /= sy
	}
	// (S^-1 * T) * S: multiply column j by its factor.
	for r := 0; r < 3; r++ {
		out.m[r][0] *= sx
		out.m[r][1] *= sy
	}
	return out
}

// translationOnly keeps the translation column and resets the linear part to
// identity, reducing a fitted model to a pure shift.
func (t Transform) translationOnly() Transform {
	out := Identity(WarpTranslation)
	out.m[0][2], out.m[1][2] = t.m[0][2], t.m[1][2]
	return out
}

// Mat converts the transform to a gocv matrix (2x3 or 3x3, CV64F) suitable
// for gocv.WarpAffine / gocv.WarpPerspective. The caller owns the Mat.
func (t Transform) Mat() gocv.Mat {
	rows := t.Rows()
	mat := gocv.NewMatWithSize(rows, 3, gocv.MatTypeCV64F)
	for r := 0; r < rows; r++ {
		for c := 0; c < 3; c++ {
			mat.SetDoubleAt(r, c, t.m[r][c])
		}
	}
	return mat
}

// transformFromMat reads a 2x3 or 3x3 CV64F estimation result. Reports false
// for an empty or misshapen Mat, which estimation backends use to signal a
// degenerate fit.
func transformFromMat(mat gocv.Mat, projective bool) (Transform, bool) {
	if mat.Empty() || mat.Cols() != 3 {
		return Transform{}, false
	}
	rows := 2
	if projective {
		rows = 3
	}
	if mat.Rows() < rows {
		return Transform{}, false
	}
	t := Identity(WarpTranslation)
	t.projective = projective
	for r := 0; r < rows; r++ {
		for c := 0; c < 3; c++ {
			t.m[r][c] = mat.GetDoubleAt(r, c)
		}
	}
	return t, true
}

// String renders the matrix for logs.
func (t Transform) String() string {
	if t.projective {
		return fmt.Sprintf("[%.4f %.4f %.2f; %.4f %.4f %.2f; %.6f %.6f %.4f]",
			t.m[0][0], t.m[0][1], t.m[0][2],
			t.m[1][0], t.m[1][1], t.m[1][2],
			t.m[2][0], t.m[2][1], t.m[2][2])
	}
	return fmt.Sprintf("[%.4f %.4f %.2f; %.4f %.4f %.2f]",
		t.m[0][0], t.m[0][1], t.m[0][2],
		t.m[1][0], t.m[1][1], t.m[1][2])
}
