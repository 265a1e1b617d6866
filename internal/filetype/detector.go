package filetype

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	IsImage     bool
	Supported   bool
	Description string
}

// Detector sniffs file content using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// decodable raster formats, keyed by MIME type
var imageTypes = map[string]string{
	"image/png":  "PNG image",
	"image/jpeg": "JPEG image",
	"image/gif":  "GIF image",
	"image/bmp":  "BMP image",
	"image/webp": "WebP image",
	"image/tiff": "TIFF image",
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)

	log.Debug().
		Str("mime", info.MIMEType).
		Str("ext", info.Extension).
		Str("file", filePath).
		Bool("supported", info.Supported).
		Msg("detected file type")

	return info, nil
}

// classify determines whether the content can be placed on a page
func (d *Detector) classify(info *FileTypeInfo) {
	// mimetype may append parameters, e.g. "text/plain; charset=utf-8"
	base := info.MIMEType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	if desc, ok := imageTypes[base]; ok {
		info.IsImage = true
		info.Supported = true
		info.Description = desc
		return
	}

	info.IsImage = strings.HasPrefix(base, "image/")
	info.Supported = false
	if info.IsImage {
		info.Description = fmt.Sprintf("Unsupported image type: %s", base)
	} else {
		info.Description = fmt.Sprintf("Not an image: %s", base)
	}
}

// IsImage reports whether filePath holds a supported raster image
func (d *Detector) IsImage(filePath string) (bool, error) {
	info, err := d.Detect(filePath)
	if err != nil {
		return false, err
	}
	return info.Supported, nil
}
