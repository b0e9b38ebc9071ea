package features

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// descMat builds a descriptor matrix with one row per descriptor.
func descMat(t *testing.T, rows [][]float32) gocv.Mat {
	t.Helper()
	require.NotEmpty(t, rows)
	mat := gocv.NewMatWithSize(len(rows), len(rows[0]), gocv.MatTypeCV32F)
	for i, row := range rows {
		require.Len(t, row, len(rows[0]))
		for j, v := range row {
			mat.SetFloatAt(i, j, v)
		}
	}
	return mat
}

func TestMatcherKeepsUnambiguousMatch(t *testing.T) {
	prev := descMat(t, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	})
	defer prev.Close()
	curr := descMat(t, [][]float32{
		{0.95, 0.05, 0, 0}, // clearly closest to prev[0]
	})
	defer curr.Close()

	m, err := NewMatcher(DefaultRatio)
	require.NoError(t, err)

	matches, err := m.Match(prev, curr)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].PrevIdx)
	assert.Equal(t, 0, matches[0].CurrIdx)
	assert.Less(t, matches[0].Distance, matches[0].SecondDistance)
}

func TestMatcherRejectsAmbiguousMatch(t *testing.T) {
	prev := descMat(t, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	})
	defer prev.Close()
	// Equidistant from both previous descriptors: no unambiguous winner.
	curr := descMat(t, [][]float32{
		{0.5, 0.5, 0, 0},
	})
	defer curr.Close()

	m, err := NewMatcher(DefaultRatio)
	require.NoError(t, err)

	matches, err := m.Match(prev, curr)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatcherDegenerateInputs(t *testing.T) {
	single := descMat(t, [][]float32{{1, 0, 0, 0}})
	defer single.Close()
	curr := descMat(t, [][]float32{{1, 0, 0, 0}})
	defer curr.Close()
	empty := gocv.NewMat()
	defer empty.Close()

	m, err := NewMatcher(DefaultRatio)
	require.NoError(t, err)

	// Fewer than two previous descriptors: the ratio test has no runner-up,
	// so nothing can be judged unambiguous.
	matches, err := m.Match(single, curr)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = m.Match(empty, curr)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = m.Match(single, empty)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatcherWidthMismatch(t *testing.T) {
	prev := descMat(t, [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}})
	defer prev.Close()
	curr := descMat(t, [][]float32{{1, 0}})
	defer curr.Close()

	m, err := NewMatcher(DefaultRatio)
	require.NoError(t, err)

	_, err = m.Match(prev, curr)
	assert.Error(t, err)
}

func TestMatcherInvalidRatio(t *testing.T) {
	for _, ratio := range []float32{0, -0.5, 1, 1.5} {
		_, err := NewMatcher(ratio)
		assert.Error(t, err, "ratio %f should be rejected", ratio)
	}
}

// Tightening the ratio can only shrink the surviving match set.
func TestMatcherRatioMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	random := func(n, dim int) [][]float32 {
		rows := make([][]float32, n)
		for i := range rows {
			rows[i] = make([]float32, dim)
			for j := range rows[i] {
				rows[i][j] = rng.Float32()
			}
		}
		return rows
	}

	prev := descMat(t, random(40, 8))
	defer prev.Close()
	curr := descMat(t, random(40, 8))
	defer curr.Close()

	previousCount := -1
	for _, ratio := range []float32{0.9, 0.7, 0.5, 0.3} {
		m, err := NewMatcher(ratio)
		require.NoError(t, err)
		matches, err := m.Match(prev, curr)
		require.NoError(t, err)

		if previousCount >= 0 {
			assert.LessOrEqual(t, len(matches), previousCount,
				"ratio %f should not retain more matches than a looser ratio", ratio)
		}
		previousCount = len(matches)
	}
}
