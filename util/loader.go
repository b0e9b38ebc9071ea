// Package util - Helpers for feeding frame sequences to the motion
// estimator.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FrameFile is one image file of an ordered frame sequence.
type FrameFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Index is the frame number parsed from the file name, or the file's
	// position after name sorting when no number is present.
	Index int
}

// LoadFrameSequence reads every image file from a directory and returns them
// in frame order. Frame numbers are taken from the trailing digits of the
// file name ("000005.jpg", "frame-12.png"); files without digits fall back to
// lexical order.
func LoadFrameSequence(dir string) ([]FrameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read frame directory %s", dir)
	}

	var frames []FrameFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".jpg", ".jpeg", ".png", ".bmp":
		default:
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read frame %s", path)
		}
		frames = append(frames, FrameFile{Path: path, Data: data, Index: -1})
	}

	// ReadDir already sorts by name; number the un-numbered files by that
	// order before sorting the rest by parsed index.
	for i := range frames {
		if n, ok := trailingNumber(frames[i].Path); ok {
			frames[i].Index = n
		} else {
			frames[i].Index = i
		}
	}
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Index < frames[j].Index
	})

	return frames, nil
}

// trailingNumber parses the final run of digits in a file name, ignoring the
// extension.
func trailingNumber(path string) (int, bool) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	end := len(name)
	start := end
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.Atoi(name[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
