package features

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultRatio is Lowe's ratio-test threshold: a correspondence survives only
// if its best distance beats 0.7x the second-best. Two near-equal candidates
// indicate an unreliable match.
const DefaultRatio = 0.7

// Match is a correspondence between a descriptor in the previous frame and
// one in the current frame.
type Match struct {
	// PrevIdx indexes the previous frame's keypoint/descriptor sequence.
	PrevIdx int
	// CurrIdx indexes the current frame's keypoint/descriptor sequence.
	CurrIdx int
	// Distance is the L2 distance between the matched descriptors.
	Distance float32
	// SecondDistance is the distance to the runner-up candidate, kept for
	// diagnostics.
	SecondDistance float32
}

// Matcher finds, for each current-frame descriptor, its two nearest previous
// frame descriptors by L2 distance and keeps the pair only if it passes the
// ratio test. Side-effect free; safe for concurrent use.
type Matcher struct {
	ratio float32
}

// NewMatcher creates a matcher with the given ratio-test threshold. The
// threshold must lie in (0, 1); values at or above 1 would accept ambiguous
// matches and are rejected at construction.
func NewMatcher(ratio float32) (*Matcher, error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, errors.Errorf("invalid ratio %f: must be in (0, 1)", ratio)
	}
	return &Matcher{ratio: ratio}, nil
}

// Match computes the surviving correspondences between two descriptor sets.
// Both Mats must be float32 with one descriptor per row and matching widths,
// as produced by an Extractor. Either set may be empty; when prev holds fewer
// than two descriptors no match can be judged unambiguous and the result is
// empty.
func (m *Matcher) Match(prev, curr gocv.Mat) ([]Match, error) {
	// The ratio test needs a nearest and a second-nearest candidate.
	if prev.Empty() || curr.Empty() || prev.Rows() < 2 {
		return nil, nil
	}
	if prev.Type() != gocv.MatTypeCV32F || curr.Type() != gocv.MatTypeCV32F {
		return nil, errors.Errorf("descriptors must be CV32F, got %v and %v", prev.Type(), curr.Type())
	}
	if prev.Cols() != curr.Cols() {
		return nil, errors.Errorf("descriptor width mismatch: %d vs %d", prev.Cols(), curr.Cols())
	}

	prevData, err := prev.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "previous descriptors")
	}
	currData, err := curr.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "current descriptors")
	}

	dim := prev.Cols()
	matches := make([]Match, 0, curr.Rows())
	for i := 0; i < curr.Rows(); i++ {
		desc := currData[i*dim : (i+1)*dim]

		best, second := math32.Inf(1), math32.Inf(1)
		bestIdx := -1
		for j := 0; j < prev.Rows(); j++ {
			d := l2Distance(desc, prevData[j*dim:(j+1)*dim])
			switch {
			case d < best:
				best, second = d, best
				bestIdx = j
			case d < second:
				second = d
			}
		}

		if best < m.ratio*second {
			matches = append(matches, Match{
				PrevIdx:        bestIdx,
				CurrIdx:        i,
				Distance:       best,
				SecondDistance: second,
			})
		}
	}

	return matches, nil
}

func l2Distance(a, b []float32) float32 {
	var sum float32
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	return math32.Sqrt(sum)
}
