package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrame(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestLoadFrameSequenceOrdersByTrailingNumber(t *testing.T) {
	dir := t.TempDir()
	// Written out of order and with mixed zero padding on purpose.
	writeFrame(t, dir, "frame-12.png", []byte{12})
	writeFrame(t, dir, "frame-2.png", []byte{2})
	writeFrame(t, dir, "000005.jpg", []byte{5})

	frames, err := LoadFrameSequence(dir)
	require.NoError(t, err)
	require.Len(t, frames, 3)

	assert.Equal(t, []int{2, 5, 12}, []int{frames[0].Index, frames[1].Index, frames[2].Index})
	assert.Equal(t, []byte{2}, frames[0].Data)
	assert.Equal(t, []byte{5}, frames[1].Data)
	assert.Equal(t, []byte{12}, frames[2].Data)
}

func TestLoadFrameSequenceLexicalFallback(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, "beta.png", []byte{1})
	writeFrame(t, dir, "alpha.png", []byte{0})

	frames, err := LoadFrameSequence(dir)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, "alpha.png", filepath.Base(frames[0].Path))
	assert.Equal(t, "beta.png", filepath.Base(frames[1].Path))
}

func TestLoadFrameSequenceSkipsNonImages(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, "frame-1.png", []byte{1})
	writeFrame(t, dir, "notes.txt", []byte("skip me"))
	writeFrame(t, dir, "frame-2.jpeg", []byte{2})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir.png"), 0o755))

	frames, err := LoadFrameSequence(dir)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 1, frames[0].Index)
	assert.Equal(t, 2, frames[1].Index)
}

func TestLoadFrameSequenceMissingDirectory(t *testing.T) {
	_, err := LoadFrameSequence(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestTrailingNumber(t *testing.T) {
	tests := []struct {
		name string
		path string
		want int
		ok   bool
	}{
		{name: "zero_padded", path: "000005.jpg", want: 5, ok: true},
		{name: "prefixed", path: "frame-12.png", want: 12, ok: true},
		{name: "digits_mid_name", path: "cam2-shot.png", want: 0, ok: false},
		{name: "no_digits", path: "frame.png", want: 0, ok: false},
		{name: "full_path", path: "/data/seq/0042.bmp", want: 42, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := trailingNumber(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, n)
		})
	}
}
