package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Counts(t *testing.T) {
	r := New()
	r.AddImages("discovered", 5)
	r.AddImages("placed", 4)
	r.AddImages("dropped", 1)
	r.AddImages("skipped", 0)
	r.SetScale(0.5)
	r.RunFinished("success")

	if got := testutil.ToFloat64(r.images.WithLabelValues("discovered")); got != 5 {
		t.Errorf("discovered = %v", got)
	}
	if got := testutil.ToFloat64(r.images.WithLabelValues("dropped")); got != 1 {
		t.Errorf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(r.scale); got != 0.5 {
		t.Errorf("scale = %v", got)
	}
	if got := testutil.ToFloat64(r.runs.WithLabelValues("success")); got != 1 {
		t.Errorf("runs = %v", got)
	}
	if got := testutil.ToFloat64(r.lastSuccess); got <= 0 {
		t.Errorf("last success timestamp not set")
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.AddImages("placed", 3)
	r.ObserveStage("compose", 20*time.Millisecond)

	path := filepath.Join(t.TempDir(), "textfile", "collager.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`collager_images_total{outcome="placed"} 3`,
		`collager_stage_duration_seconds_count{stage="compose"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

func TestRecorder_Push(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.AddImages("placed", 1)
	if err := r.Push(srv.URL, "collager"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if gotPath != "/metrics/job/collager" {
		t.Errorf("push path = %q", gotPath)
	}
}
