// Package discovery expands the input paths of a run into the ordered list
// of image files to lay out.
//
// A directory contributes its immediate children whose extension is in the
// recognized set; subdirectories are not descended. A file is kept when its
// extension is recognized. Anything else fails the run with an
// InvalidInputError. s3://bucket/key references are downloaded into a
// run-scoped directory through a Fetcher and then treated like local paths.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/collager/internal/storage"
)

// DefaultExtensions is the recognized image-extension set.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg"}

// ErrInvalidInput matches every InvalidInputError.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError reports a path that is neither a directory nor a
// recognized image file.
type InvalidInputError struct {
	Path   string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("input %q is not a valid image file or folder", e.Path)
	}
	return fmt.Sprintf("input %q is not a valid image file or folder: %s", e.Path, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// Sniffer checks file content, independent of its name.
type Sniffer interface {
	IsImage(path string) (bool, error)
}

// Fetcher retrieves remote objects.
type Fetcher interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Download(ctx context.Context, bucket, key, dst string) error
}

// Options configures Discover.
type Options struct {
	// Extensions is the recognized set; nil means DefaultExtensions.
	// Entries are matched case-insensitively, with or without leading dot.
	Extensions []string
	// Sort orders each directory's entries by name. Without it the order is
	// whatever the filesystem (or object listing) yields.
	Sort bool
	// Sniffer, when set, rejects recognized files whose content is not an image.
	Sniffer Sniffer
	// Fetcher resolves s3:// references; nil rejects them.
	Fetcher Fetcher
	// TempDir receives downloaded objects. Required with Fetcher.
	TempDir string
}

// Discover resolves inputs into image file paths, preserving input order.
func Discover(ctx context.Context, inputs []string, opts Options) ([]string, error) {
	exts := NormalizeExtensions(opts.Extensions)
	var files []string
	for _, in := range inputs {
		var (
			found []string
			err   error
		)
		if bucket, key, ok := storage.ParseURL(in); ok {
			found, err = discoverRemote(ctx, in, bucket, key, exts, opts)
		} else {
			found, err = discoverLocal(in, exts, opts)
		}
		if err != nil {
			return nil, err
		}
		log.Debug().Str("input", in).Int("images", len(found)).Msg("discovered input")
		files = append(files, found...)
	}

	if opts.Sniffer != nil {
		for _, f := range files {
			ok, err := opts.Sniffer.IsImage(f)
			if err != nil {
				return nil, &InvalidInputError{Path: f, Reason: err.Error()}
			}
			if !ok {
				return nil, &InvalidInputError{Path: f, Reason: "content is not a supported image"}
			}
		}
	}
	return files, nil
}

func discoverLocal(in string, exts map[string]bool, opts Options) ([]string, error) {
	info, err := os.Stat(in)
	if err == nil && info.IsDir() {
		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", in, err)
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if HasImageExtension(e.Name(), exts) {
				names = append(names, e.Name())
			}
		}
		if opts.Sort {
			sort.Strings(names)
		}
		out := make([]string, len(names))
		for i, n := range names {
			out[i] = filepath.Join(in, n)
		}
		return out, nil
	}

	// Existence is not checked for files; a missing image fails at decode.
	if HasImageExtension(in, exts) {
		return []string{in}, nil
	}
	return nil, &InvalidInputError{Path: in}
}

func discoverRemote(ctx context.Context, in, bucket, key string, exts map[string]bool, opts Options) ([]string, error) {
	if opts.Fetcher == nil {
		return nil, &InvalidInputError{Path: in, Reason: "remote storage not configured"}
	}
	if opts.TempDir == "" {
		return nil, errors.New("discovery: TempDir is required for remote inputs")
	}

	var keys []string
	switch {
	case key == "" || strings.HasSuffix(key, "/"):
		listed, err := opts.Fetcher.List(ctx, bucket, key)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", in, err)
		}
		for _, k := range listed {
			if HasImageExtension(k, exts) {
				keys = append(keys, k)
			}
		}
		if opts.Sort {
			sort.Strings(keys)
		}
	case HasImageExtension(key, exts):
		keys = []string{key}
	default:
		return nil, &InvalidInputError{Path: in}
	}

	dir, err := os.MkdirTemp(opts.TempDir, "s3-")
	if err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	out := make([]string, 0, len(keys))
	for i, k := range keys {
		// Index prefix keeps same-named objects from different prefixes apart.
		dst := filepath.Join(dir, fmt.Sprintf("%04d_%s", i, path.Base(k)))
		if err := opts.Fetcher.Download(ctx, bucket, k, dst); err != nil {
			return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, k, err)
		}
		out = append(out, dst)
	}
	return out, nil
}

// NormalizeExtensions lower-cases exts and gives each a leading dot.
// An empty list yields DefaultExtensions.
func NormalizeExtensions(exts []string) map[string]bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[e] = true
	}
	return m
}

// HasImageExtension reports whether name ends in a recognized extension.
func HasImageExtension(name string, exts map[string]bool) bool {
	return exts[strings.ToLower(filepath.Ext(name))]
}
