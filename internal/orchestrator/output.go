package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"

	"github.com/local/collager/internal/exporter"
	"github.com/local/collager/internal/storage"
)

// outputTarget is where the document is written locally and, for s3://
// outputs, where it is uploaded afterwards.
type outputTarget struct {
	local  string
	bucket string
	key    string
}

func (t outputTarget) remote() bool { return t.bucket != "" }

func (t outputTarget) display() string {
	if t.remote() {
		return fmt.Sprintf("s3://%s/%s", t.bucket, t.key)
	}
	return t.local
}

// resolveOutput normalizes the output name. Remote outputs are staged in
// tmp before upload.
func resolveOutput(output, tmp string) (outputTarget, error) {
	if output == "" {
		output = "collage.pdf"
	}
	if bucket, key, ok := storage.ParseURL(output); ok {
		if key == "" || key[len(key)-1] == '/' {
			key += "collage.pdf"
		}
		key = exporter.NormalizeOutputPath(key)
		return outputTarget{local: filepath.Join(tmp, path.Base(key)), bucket: bucket, key: key}, nil
	}
	return outputTarget{local: exporter.NormalizeOutputPath(output)}, nil
}

// publish uploads remote outputs; local outputs are already in place.
func (o *Orchestrator) publish(ctx context.Context, t outputTarget, res *Result) error {
	if !t.remote() {
		return nil
	}
	if o.deps.Storage == nil {
		return &exporter.WriteError{Path: t.display(), Err: errors.New("remote storage not configured")}
	}
	meta := map[string]string{
		"run-id":  res.RunID,
		"placed":  strconv.Itoa(res.Placed),
		"dropped": strconv.Itoa(res.Dropped),
	}
	if err := o.deps.Storage.Upload(ctx, t.bucket, t.key, t.local, "application/pdf", meta); err != nil {
		return &exporter.WriteError{Path: t.display(), Err: err}
	}
	return nil
}
