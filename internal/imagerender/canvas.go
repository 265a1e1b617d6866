package imagerender

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/local/collager/internal/layout"
)

// Canvas is the page-sized raster images are painted onto. It implements
// layout.Painter.
type Canvas struct {
	img    *image.NRGBA
	filter Filter
	load   func(path string) (image.Image, error)
}

// NewCanvas allocates a page filled with bg.
func NewCanvas(page layout.PageSize, bg color.Color, filter Filter) (*Canvas, error) {
	if page.Width <= 0 || page.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %s", page)
	}
	return &Canvas{
		img:    imaging.New(page.Width, page.Height, bg),
		filter: filter,
		load:   Load,
	}, nil
}

// Paint decodes the placed image, resizes it to its placed size and draws
// it at its position. Pixels outside the page are clipped.
func (c *Canvas) Paint(p layout.PlacedImage) error {
	src, err := c.load(p.Ref.Path)
	if err != nil {
		return err
	}
	if b := src.Bounds(); b.Dx() != p.Width || b.Dy() != p.Height {
		src = imaging.Resize(src, p.Width, p.Height, c.filter.resample())
	}
	r := p.Rect().Intersect(c.img.Bounds())
	draw.Draw(c.img, r, src, src.Bounds().Min, draw.Over)

	log.Debug().
		Str("file", p.Ref.Path).
		Int("x", p.X).
		Int("y", p.Y).
		Int("width", p.Width).
		Int("height", p.Height).
		Msg("painted image")
	return nil
}

// Image returns the painted page.
func (c *Canvas) Image() image.Image { return c.img }
