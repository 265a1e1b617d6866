package imagerender

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	// extra formats for image.Decode; imaging already registers bmp and tiff
	_ "golang.org/x/image/webp"

	"github.com/local/collager/internal/layout"
)

// ErrDecode matches every DecodeError.
var ErrDecode = errors.New("image decode failed")

// DecodeError reports a file that could not be opened or decoded as an image.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Measure reads the natural pixel size of the image at path from its header.
func Measure(path string) (layout.ImageRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return layout.ImageRef{}, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return layout.ImageRef{}, &DecodeError{Path: path, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return layout.ImageRef{}, &DecodeError{Path: path, Err: fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)}
	}

	log.Debug().
		Str("file", path).
		Str("format", format).
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Msg("measured image")

	return layout.ImageRef{Path: path, Width: cfg.Width, Height: cfg.Height}, nil
}

// MeasureFull decodes the whole image, catching files whose header is fine
// but whose pixel data is truncated or corrupt.
func MeasureFull(path string) (layout.ImageRef, error) {
	img, err := Load(path)
	if err != nil {
		return layout.ImageRef{}, err
	}
	b := img.Bounds()
	return layout.ImageRef{Path: path, Width: b.Dx(), Height: b.Dy()}, nil
}

// Load decodes the image at path.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return img, nil
}
