// Package exporter writes a painted canvas out as a single-page PDF.
//
// The page's physical size follows from the canvas pixel size and the
// output resolution (points = px * 72 / dpi). The canvas is embedded as a
// lossless PNG stream so no pixel data is lost.
package exporter

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// DefaultDPI is the resolution used when Options.DPI is unset.
const DefaultDPI = 100.0

// ErrWrite matches every WriteError.
var ErrWrite = errors.New("document write failed")

// WriteError reports a failure to create, write or verify the output.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// Options configures Export.
type Options struct {
	DPI float64
	// Verify re-reads the written file with pdfcpu and checks it holds
	// exactly one page.
	Verify bool
	Title  string
}

// Document describes a written PDF.
type Document struct {
	Path     string
	Pages    int
	WidthPt  float64
	HeightPt float64
	Bytes    int64
}

var pdfcpuOnce sync.Once

// keep pdfcpu from creating a config dir under $HOME
func initPDFCPU() {
	pdfcpuOnce.Do(api.DisableConfigDir)
}

// NormalizeOutputPath appends ".pdf" unless p already ends with it, in any case.
func NormalizeOutputPath(p string) string {
	if strings.HasSuffix(strings.ToLower(p), ".pdf") {
		return p
	}
	return p + ".pdf"
}

// PagePoints converts a pixel extent to PDF points at dpi.
func PagePoints(px int, dpi float64) float64 {
	return float64(px) * 72.0 / dpi
}

// Export writes canvas to dest as a one-page PDF.
func Export(canvas image.Image, dest string, opts Options) (*Document, error) {
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	b := canvas.Bounds()
	if b.Empty() {
		return nil, &WriteError{Path: dest, Err: errors.New("empty canvas")}
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &WriteError{Path: dest, Err: err}
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, &WriteError{Path: dest, Err: fmt.Errorf("encode page image: %w", err)}
	}

	w := PagePoints(b.Dx(), dpi)
	h := PagePoints(b.Dy(), dpi)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("collager", true)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}
	pdf.AddPage()

	imgOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("canvas", imgOpts, &buf)
	pdf.ImageOptions("canvas", 0, 0, w, h, false, imgOpts, 0, "")
	if pdf.Err() {
		return nil, &WriteError{Path: dest, Err: pdf.Error()}
	}
	if err := pdf.OutputFileAndClose(dest); err != nil {
		return nil, &WriteError{Path: dest, Err: err}
	}

	doc := &Document{Path: dest, Pages: 1, WidthPt: w, HeightPt: h}
	if fi, err := os.Stat(dest); err == nil {
		doc.Bytes = fi.Size()
	}

	if opts.Verify {
		n, err := Verify(dest)
		if err != nil {
			return nil, &WriteError{Path: dest, Err: err}
		}
		doc.Pages = n
	}

	log.Debug().
		Str("file", dest).
		Float64("width_pt", w).
		Float64("height_pt", h).
		Float64("dpi", dpi).
		Int64("bytes", doc.Bytes).
		Msg("exported document")

	return doc, nil
}

// Verify validates the PDF at path and checks it holds exactly one page.
func Verify(path string) (int, error) {
	initPDFCPU()
	if err := api.ValidateFile(path, model.NewDefaultConfiguration()); err != nil {
		return 0, fmt.Errorf("pdf validation failed: %w", err)
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	if n != 1 {
		return n, fmt.Errorf("expected 1 page, found %d", n)
	}
	return n, nil
}
