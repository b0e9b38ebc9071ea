// Package images - Frame preparation utilities for camera motion compensation:
// bounding boxes, preprocessing, and feature-search masks.
package images

import (
	"fmt"
	"image"
)

// Box represents an axis-aligned bounding box in full-resolution frame
// coordinates. X2,Y2 are exclusive. Detector outputs are sub-pixel, so the
// coordinates stay floating point until a box is rasterized with ToRect.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// String formats the box coordinates for display.
func (b Box) String() string {
	return fmt.Sprintf("(%.1f, %.1f), (%.1f, %.1f)", b.X1, b.Y1, b.X2, b.Y2)
}

// Scaled returns the box with every coordinate multiplied by the given
// per-axis factors, mapping a full-resolution box into the coordinate space of
// a frame downscaled by (sx, sy).
func (b Box) Scaled(sx, sy float64) Box {
	return Box{
		X1: b.X1 * float32(sx),
		Y1: b.Y1 * float32(sy),
		X2: b.X2 * float32(sx),
		Y2: b.Y2 * float32(sy),
	}
}

// ToRect converts the box to an image.Rectangle by truncating the coordinates
// to integer pixels.
//
// This won't be entirely precise due to the conversion to integral
// rectangles, but consumers only use it to rasterize exclusion regions, so
// sub-pixel loss is acceptable.
func (b Box) ToRect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Canon()
}

// Intersection calculates the intersection area between two boxes in pixels.
func (b Box) Intersection(other Box) float32 {
	ix1 := max(b.X1, other.X1)
	iy1 := max(b.Y1, other.Y1)
	ix2 := min(b.X2, other.X2)
	iy2 := min(b.Y2, other.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	return (ix2 - ix1) * (iy2 - iy1)
}

// Union calculates the union area between two boxes in pixels.
func (b Box) Union(other Box) float32 {
	area := (b.X2 - b.X1) * (b.Y2 - b.Y1)
	areaOther := (other.X2 - other.X1) * (other.Y2 - other.Y1)
	return area + areaOther - b.Intersection(other)
}

// IoU calculates the Intersection over Union between two boxes.
//
// Used by detection consumers (e.g. NMS) to judge how much two boxes overlap.
// Returns a value between 0 and 1.
func (b Box) IoU(other Box) float32 {
	union := b.Union(other)
	if union <= 0 {
		return 0
	}
	return b.Intersection(other) / union
}
