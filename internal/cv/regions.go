package cv

import "image"

// Region is a rectangular capture or search area in screen pixels
type Region struct {
	X, Y          int
	Width, Height int
}

// NewRegion creates a new region from its origin and size
func NewRegion(x, y, width, height int) Region {
	return Region{X: x, Y: y, Width: width, Height: height}
}

// Empty reports whether the region covers no pixels
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Rect converts Region to an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}
