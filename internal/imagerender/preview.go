package imagerender

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// Doc abstracts a rendered PDF document.
type Doc interface {
	NumPage() int
	Render(page int, dpi float64) (image.Image, error)
	Close() error
}

// Opener abstracts opening a PDF path into a Doc.
type Opener interface {
	Open(path string) (Doc, error)
}

// fitzOpener implements Opener using MuPDF through go-fitz.
type fitzOpener struct{}

func (fitzOpener) Open(path string) (Doc, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return fitzDoc{doc}, nil
}

type fitzDoc struct{ *fitz.Document }

// go-fitz uses 0-based page indexing
func (d fitzDoc) Render(page int, dpi float64) (image.Image, error) {
	return d.Document.ImageDPI(page, dpi)
}

// DefaultOpener renders with MuPDF.
var DefaultOpener Opener = fitzOpener{}

// Preview is the outcome of a preview render.
type Preview struct {
	Path   string
	Width  int
	Height int
}

// RenderPreview renders page 1 of the PDF at pdfPath to a PNG at outPath.
// A nil opener means DefaultOpener.
func RenderPreview(opener Opener, pdfPath, outPath string, dpi float64) (*Preview, error) {
	if opener == nil {
		opener = DefaultOpener
	}
	if dpi <= 0 {
		return nil, fmt.Errorf("invalid preview resolution %v", dpi)
	}

	doc, err := opener.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, errors.New("document has no pages")
	}

	img, err := doc.Render(0, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page 1: %w", err)
	}

	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create preview dir: %w", err)
		}
	}
	// Save picks the encoder from the extension; previews are always PNG.
	f, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("create preview: %w", err)
	}
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close preview: %w", err)
	}

	b := img.Bounds()
	log.Debug().
		Str("pdf", pdfPath).
		Str("preview", outPath).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Float64("dpi", dpi).
		Msg("rendered preview")

	return &Preview{Path: outPath, Width: b.Dx(), Height: b.Dy()}, nil
}
