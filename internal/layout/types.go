// Package layout decides where every image of a collage lands on the page.
//
// It holds the two pieces with actual policy in them: the scale estimator,
// which derives one uniform scale factor from the aggregate image
// dimensions, and the composer, a greedy single-pass state machine that
// walks the ordered image list placing each scaled image at a cursor,
// wrapping rows and stopping at the first image that would overflow the
// bottom edge. Nothing in this package touches pixels or files; painting is
// delegated to a Painter.
package layout

import (
	"fmt"
	"image"
)

// Size is a pixel extent.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// PageSize is the fixed extent of the output canvas in pixels.
type PageSize struct {
	Width  int
	Height int
}

func (p PageSize) String() string { return fmt.Sprintf("%dx%d", p.Width, p.Height) }

// ImageRef is a source image and its natural (unscaled) dimensions.
type ImageRef struct {
	Path   string
	Width  int
	Height int
}

// Size returns the natural extent of the image.
func (r ImageRef) Size() Size { return Size{Width: r.Width, Height: r.Height} }

// PlacedImage is an image with its scaled extent and top-left position.
type PlacedImage struct {
	Ref    ImageRef
	X      int
	Y      int
	Width  int
	Height int
}

// Rect returns the page area covered by the placement.
func (p PlacedImage) Rect() image.Rectangle {
	return image.Rect(p.X, p.Y, p.X+p.Width, p.Y+p.Height)
}

// Sizes collects the natural sizes of refs, in order.
func Sizes(refs []ImageRef) []Size {
	out := make([]Size, len(refs))
	for i, r := range refs {
		out[i] = r.Size()
	}
	return out
}
