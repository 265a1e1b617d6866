package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"github.com/local/collager/internal/exporter"
	"github.com/local/collager/internal/imagerender"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BucketHeader models the minimal S3 capability we need for status checks.
type BucketHeader interface {
	HeadBucket(ctx context.Context, bucket string) error
}

// Checker aggregates health checks for the optional dependencies of a run.
type Checker struct {
	redis    RedisPinger
	s3       BucketHeader
	s3Bucket string
	opener   imagerender.Opener
	tempDir  string
}

// Options configures the Checker.
type Options struct {
	Redis    RedisPinger
	S3       BucketHeader
	S3Bucket string
	// Opener renders PDFs; nil means the MuPDF-backed default.
	Opener  imagerender.Opener
	TempDir string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis    Status `json:"redis"`
	S3       Status `json:"s3"`
	Renderer Status `json:"renderer"`
}

// OK reports whether every subsystem is ready.
func (s Summary) OK() bool { return s.Redis.OK && s.S3.OK && s.Renderer.OK }

// WriteTable prints one line per subsystem and a closing verdict.
func (s Summary) WriteTable(w io.Writer) error {
	rows := []struct {
		name string
		st   Status
	}{{"redis", s.Redis}, {"s3", s.S3}, {"renderer", s.Renderer}}
	for _, r := range rows {
		mark := "ok"
		if !r.st.OK {
			mark = "FAIL"
		}
		if _, err := fmt.Fprintf(w, "%-9s %-4s %s\n", r.name, mark, r.st.Message); err != nil {
			return err
		}
	}
	verdict := "all dependencies ready"
	switch {
	case !s.Renderer.OK:
		verdict = "renderer unavailable, collages cannot be previewed"
	case !s.OK():
		verdict = "optional integrations unavailable, local runs still work"
	}
	_, err := fmt.Fprintln(w, verdict)
	return err
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:    opts.Redis,
		s3:       opts.S3,
		s3Bucket: opts.S3Bucket,
		opener:   opts.Opener,
		tempDir:  opts.TempDir,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:    c.checkRedis(ctx),
		S3:       c.checkS3(ctx),
		Renderer: c.checkRenderer(),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3Bucket == "" {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	if c.s3 == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.s3.HeadBucket(ctx, c.s3Bucket); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

// checkRenderer writes a tiny document and renders it back.
func (c *Checker) checkRenderer() Status {
	dir, err := os.MkdirTemp(c.tempDir, "collager-check-")
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer os.RemoveAll(dir)

	pdf := filepath.Join(dir, "check.pdf")
	if _, err := exporter.Export(imaging.New(8, 8, color.White), pdf, exporter.Options{DPI: 72}); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if _, err := imagerender.RenderPreview(c.opener, pdf, filepath.Join(dir, "check.png"), 72); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
