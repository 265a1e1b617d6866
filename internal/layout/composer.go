package layout

import (
	"fmt"
	"strings"
)

// State is the composer's position in its lifecycle.
type State int

const (
	StateEmpty   State = iota // nothing placed, cursor at origin
	StatePlacing              // at least one image placed
	StateDone                 // input exhausted or page overflowed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePlacing:
		return "placing"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// WrapPolicy controls how far the cursor moves down when a row wraps.
type WrapPolicy string

const (
	// WrapRow advances by the tallest image placed in the current row.
	WrapRow WrapPolicy = "row"
	// WrapStream advances by the height of the image that causes the wrap,
	// or by the last placed image when a row fills exactly. There is no
	// per-row maximum; it suits shuffled, roughly uniform input.
	WrapStream WrapPolicy = "stream"
)

// ParseWrapPolicy maps a configuration value to a WrapPolicy.
func ParseWrapPolicy(s string) (WrapPolicy, error) {
	switch WrapPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case WrapRow:
		return WrapRow, nil
	case WrapStream:
		return WrapStream, nil
	}
	return "", fmt.Errorf("invalid wrap policy %q (use 'row' or 'stream')", s)
}

// Cursor is the composer's mutable placement state. RowHeight is the
// amount the next wrap advances Y by.
type Cursor struct {
	X         int
	Y         int
	RowHeight int
}

// Composer places scaled images onto a page, one at a time, in the order
// they are offered. It never backtracks: once an image overflows the
// bottom edge the composer is Done and rejects everything after it.
type Composer struct {
	page   PageSize
	scale  float64
	policy WrapPolicy

	cursor   Cursor
	state    State
	overflow bool
	placed   []PlacedImage
}

// NewComposer returns a composer in StateEmpty.
func NewComposer(page PageSize, scale float64, policy WrapPolicy) *Composer {
	if policy == "" {
		policy = WrapRow
	}
	return &Composer{page: page, scale: scale, policy: policy}
}

// Reset returns the composer to StateEmpty with the cursor at the origin.
func (c *Composer) Reset() {
	c.cursor = Cursor{}
	c.state = StateEmpty
	c.overflow = false
	c.placed = nil
}

func (c *Composer) State() State { return c.state }

func (c *Composer) Cursor() Cursor { return c.cursor }

// Overflowed reports whether the composer stopped because an image did not fit.
func (c *Composer) Overflowed() bool { return c.overflow }

// Placements returns the images placed since the last Reset, in order.
func (c *Composer) Placements() []PlacedImage { return c.placed }

// Finish marks the input as exhausted. A finished composer rejects
// further placements.
func (c *Composer) Finish() { c.state = StateDone }

func (c *Composer) scaled(natural int) int {
	return max(1, int(float64(natural)*c.scale))
}

func (c *Composer) fits(x, y, w, h int) bool {
	return x >= 0 && y >= 0 && x+w <= c.page.Width && y+h <= c.page.Height
}

func (c *Composer) wrap() {
	c.cursor.X = 0
	c.cursor.Y += c.cursor.RowHeight
	c.cursor.RowHeight = 0
}

// Place runs one step of the state machine for ref. It reports false when
// the image did not fit, in which case the composer is Done.
//
// Placed sizes are truncated toward zero, with a floor of one pixel.
func (c *Composer) Place(ref ImageRef) (PlacedImage, bool) {
	if c.state == StateDone {
		return PlacedImage{}, false
	}
	w, h := c.scaled(ref.Width), c.scaled(ref.Height)

	// No row is wide enough for this image.
	if w > c.page.Width {
		c.state = StateDone
		c.overflow = true
		return PlacedImage{}, false
	}

	if c.cursor.X+w > c.page.Width {
		if c.policy == WrapStream {
			// Stream wraps advance by the incoming image, not the row.
			c.cursor.RowHeight = h
		}
		c.wrap()
	}

	if !c.fits(c.cursor.X, c.cursor.Y, w, h) {
		c.state = StateDone
		c.overflow = true
		return PlacedImage{}, false
	}

	p := PlacedImage{Ref: ref, X: c.cursor.X, Y: c.cursor.Y, Width: w, Height: h}
	c.placed = append(c.placed, p)
	c.state = StatePlacing

	c.cursor.X += w
	switch c.policy {
	case WrapStream:
		c.cursor.RowHeight = h
	default:
		c.cursor.RowHeight = max(c.cursor.RowHeight, h)
	}
	// Row is exactly full. Under WrapRow this advances by the row maximum
	// rather than the last image's height so later rows cannot overlap.
	if c.cursor.X >= c.page.Width {
		c.wrap()
	}
	return p, true
}

// Painter renders a placement onto the canvas.
type Painter interface {
	Paint(p PlacedImage) error
}

// Result summarizes one composition pass.
type Result struct {
	Placed     []PlacedImage
	Dropped    int
	Overflowed bool
}

// Compose places refs in order until the input is exhausted or the page
// overflows, painting each placement as it is accepted. painter may be nil.
// A painter error aborts the pass.
func Compose(refs []ImageRef, page PageSize, scale float64, policy WrapPolicy, painter Painter) (Result, error) {
	c := NewComposer(page, scale, policy)
	for i, ref := range refs {
		p, ok := c.Place(ref)
		if !ok {
			return Result{Placed: c.Placements(), Dropped: len(refs) - i, Overflowed: true}, nil
		}
		if painter != nil {
			if err := painter.Paint(p); err != nil {
				return Result{Placed: c.Placements()}, fmt.Errorf("paint %s: %w", ref.Path, err)
			}
		}
	}
	c.Finish()
	return Result{Placed: c.Placements()}, nil
}
