package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/local/collager/internal/config"
	"github.com/local/collager/internal/discovery"
	"github.com/local/collager/internal/exporter"
	"github.com/local/collager/internal/imagerender"
	"github.com/local/collager/internal/layout"
	"github.com/local/collager/internal/metrics"
	"github.com/local/collager/internal/store"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := imaging.Save(imaging.New(w, h, color.NRGBA{R: 200, G: 40, B: 40, A: 255}), p); err != nil {
		t.Fatalf("save %s: %v", name, err)
	}
	return p
}

func testOptions(t *testing.T, page layout.PageSize) Options {
	return Options{
		Page:         page,
		Heuristic:    layout.HeuristicArea,
		SafetyMargin: 1.0,
		WrapPolicy:   layout.WrapRow,
		Background:   color.White,
		Filter:       imagerender.FilterNearest,
		DPI:          100,
		VerifyOutput: true,
		Extensions:   discovery.DefaultExtensions,
		Sort:         true,
		TempDir:      t.TempDir(),
	}
}

type memStatus struct {
	states []string
	last   store.Status
}

func (m *memStatus) Set(_ context.Context, _ string, st store.Status) error {
	m.states = append(m.states, st.Status)
	m.last = st
	return nil
}

func (m *memStatus) Get(context.Context, string) (store.Status, bool, error) {
	return m.last, len(m.states) > 0, nil
}

type memPlacements struct {
	runID  string
	placed []layout.PlacedImage
}

func (m *memPlacements) Save(_ context.Context, runID string, placed []layout.PlacedImage) error {
	m.runID, m.placed = runID, placed
	return nil
}

func TestRun_GridOfFourSquares(t *testing.T) {
	in := t.TempDir()
	for i := 0; i < 4; i++ {
		writePNG(t, in, fmt.Sprintf("img%d.png", i), 200, 200)
	}
	out := filepath.Join(t.TempDir(), "collage")

	st := &memStatus{}
	pl := &memPlacements{}
	rec := metrics.New()
	o := New(testOptions(t, layout.PageSize{Width: 200, Height: 200}), Dependencies{Status: st, Placements: pl, Metrics: rec})

	res, err := o.Run(context.Background(), []string{in}, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != out+".pdf" {
		t.Errorf("Output = %q, want %q", res.Output, out+".pdf")
	}
	if _, err := os.Stat(res.Output); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if res.Document == nil || res.Document.Pages != 1 {
		t.Errorf("Document = %+v", res.Document)
	}
	if res.Scale != 0.5 || res.Placed != 4 || res.Dropped != 0 || res.Discovered != 4 {
		t.Errorf("result = %+v", res)
	}

	type pos struct{ X, Y int }
	var got []pos
	for _, p := range res.Placements {
		got = append(got, pos{p.X, p.Y})
		if p.Width != 100 || p.Height != 100 {
			t.Errorf("placed size = %dx%d, want 100x100", p.Width, p.Height)
		}
	}
	want := []pos{{0, 0}, {100, 0}, {0, 100}, {100, 100}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("positions (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{store.StatusProcessing, store.StatusSuccess}, st.states); diff != "" {
		t.Errorf("status sequence (-want +got):\n%s", diff)
	}
	if st.last.Output != res.Output || st.last.Placed != 4 {
		t.Errorf("final status = %+v", st.last)
	}
	if pl.runID != res.RunID || len(pl.placed) != 4 {
		t.Errorf("placements recorded for %q: %d", pl.runID, len(pl.placed))
	}
	if got, err := testutil.GatherAndCount(rec.Registry(), "collager_runs_total"); err != nil || got != 1 {
		t.Errorf("runs_total series = %d (err %v), want 1", got, err)
	}
}

func TestRun_OverflowDropsTail(t *testing.T) {
	in := t.TempDir()
	for i := 0; i < 3; i++ {
		writePNG(t, in, fmt.Sprintf("img%d.png", i), 100, 100)
	}
	opts := testOptions(t, layout.PageSize{Width: 150, Height: 100})
	rec := metrics.New()
	res, err := New(opts, Dependencies{Metrics: rec}).Run(context.Background(), []string{in}, filepath.Join(t.TempDir(), "c.pdf"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// scale sqrt(15000/30000) puts 70px squares two to a row, one row high
	if res.Placed != 2 || res.Dropped != 1 {
		t.Errorf("placed=%d dropped=%d, want 2 and 1", res.Placed, res.Dropped)
	}
	if res.Placed+res.Dropped != res.Discovered {
		t.Errorf("placed+dropped != discovered: %+v", res)
	}

	path := filepath.Join(t.TempDir(), "m.prom")
	if err := rec.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	for _, want := range []string{`collager_images_total{outcome="dropped"} 1`, `collager_runs_total{result="success"} 1`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRun_EmptyInput(t *testing.T) {
	in := t.TempDir()
	if err := os.WriteFile(filepath.Join(in, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "collage.pdf")
	st := &memStatus{}

	res, err := New(testOptions(t, layout.PageSize{Width: 100, Height: 100}), Dependencies{Status: st}).Run(context.Background(), []string{in}, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Empty {
		t.Error("expected empty result")
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("no output should be written, stat err = %v", err)
	}
	if st.last.Status != store.StatusEmpty {
		t.Errorf("status = %q", st.last.Status)
	}
}

func TestRun_InvalidInput(t *testing.T) {
	bogus := filepath.Join(t.TempDir(), "readme.md")
	_, err := New(testOptions(t, layout.PageSize{Width: 100, Height: 100}), Dependencies{}).Run(context.Background(), []string{bogus}, filepath.Join(t.TempDir(), "c.pdf"))
	if !errors.Is(err, discovery.ErrInvalidInput) || ExitCode(err) != ExitInvalidInput {
		t.Errorf("err = %v (exit %d), want invalid input", err, ExitCode(err))
	}
}

func TestRun_UnreadableImage(t *testing.T) {
	in := t.TempDir()
	writePNG(t, in, "a.png", 50, 50)
	if err := os.WriteFile(filepath.Join(in, "b.png"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "c.pdf")

	opts := testOptions(t, layout.PageSize{Width: 100, Height: 100})
	st := &memStatus{}
	_, err := New(opts, Dependencies{Status: st}).Run(context.Background(), []string{in}, out)
	if !errors.Is(err, imagerender.ErrDecode) || ExitCode(err) != ExitDecode {
		t.Fatalf("err = %v, want decode failure", err)
	}
	if st.last.Status != store.StatusFailed {
		t.Errorf("status = %q", st.last.Status)
	}

	opts.SkipUnreadable = true
	res, err := New(opts, Dependencies{}).Run(context.Background(), []string{in}, out)
	if err != nil {
		t.Fatalf("Run with skip: %v", err)
	}
	if res.Skipped != 1 || res.Placed != 1 {
		t.Errorf("skipped=%d placed=%d", res.Skipped, res.Placed)
	}
}

func TestRun_Cancelled(t *testing.T) {
	in := t.TempDir()
	writePNG(t, in, "a.png", 10, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(testOptions(t, layout.PageSize{Width: 100, Height: 100}), Dependencies{}).Run(ctx, []string{in}, filepath.Join(t.TempDir(), "c.pdf"))
	if ExitCode(err) != ExitInterrupted {
		t.Errorf("err = %v, want cancellation", err)
	}
}

type memObjects struct {
	src     string
	uploads map[string]string
	meta    map[string]string
}

func (m *memObjects) List(_ context.Context, bucket, prefix string) ([]string, error) {
	return []string{prefix + "one.png", prefix + "two.png"}, nil
}

func (m *memObjects) Download(_ context.Context, _, _, dst string) error {
	data, err := os.ReadFile(m.src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (m *memObjects) Upload(_ context.Context, bucket, key, src, contentType string, meta map[string]string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if m.uploads == nil {
		m.uploads = map[string]string{}
	}
	m.uploads["s3://"+bucket+"/"+key] = contentType + ":" + fmt.Sprint(len(data) > 0)
	m.meta = meta
	return nil
}

func TestRun_RemoteInputAndOutput(t *testing.T) {
	objs := &memObjects{src: writePNG(t, t.TempDir(), "src.png", 40, 40)}
	res, err := New(testOptions(t, layout.PageSize{Width: 200, Height: 100}), Dependencies{Storage: objs}).
		Run(context.Background(), []string{"s3://shots/day1/"}, "s3://results/collages/day1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != "s3://results/collages/day1.pdf" || res.Placed != 2 {
		t.Errorf("result = %+v", res)
	}
	want := map[string]string{"s3://results/collages/day1.pdf": "application/pdf:true"}
	if diff := cmp.Diff(want, objs.uploads); diff != "" {
		t.Errorf("uploads (-want +got):\n%s", diff)
	}
	if objs.meta["run-id"] != res.RunID || objs.meta["placed"] != "2" {
		t.Errorf("upload metadata = %v", objs.meta)
	}
}

func TestRun_RemoteOutputWithoutStorage(t *testing.T) {
	in := t.TempDir()
	writePNG(t, in, "a.png", 10, 10)
	_, err := New(testOptions(t, layout.PageSize{Width: 100, Height: 100}), Dependencies{}).Run(context.Background(), []string{in}, "s3://results/c.pdf")
	if ExitCode(err) != ExitWrite {
		t.Errorf("err = %v, want write failure", err)
	}
}

type stubDoc struct{}

func (stubDoc) NumPage() int { return 1 }
func (stubDoc) Render(int, float64) (image.Image, error) {
	return imaging.New(20, 10, color.White), nil
}
func (stubDoc) Close() error { return nil }

type stubOpener struct{}

func (stubOpener) Open(string) (imagerender.Doc, error) { return stubDoc{}, nil }

func TestRun_Preview(t *testing.T) {
	in := t.TempDir()
	writePNG(t, in, "a.png", 10, 10)
	opts := testOptions(t, layout.PageSize{Width: 100, Height: 100})
	opts.Preview = filepath.Join(t.TempDir(), "preview.png")

	res, err := New(opts, Dependencies{Opener: stubOpener{}}).Run(context.Background(), []string{in}, filepath.Join(t.TempDir(), "c.pdf"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Preview != opts.Preview {
		t.Errorf("Preview = %q", res.Preview)
	}
	if _, err := os.Stat(opts.Preview); err != nil {
		t.Errorf("preview missing: %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Config{
		Layout: config.LayoutConfig{PageWidth: 300, PageHeight: 200, Heuristic: "aggregate", SafetyMargin: 0.8, WrapPolicy: "stream", Shuffle: true, Seed: 9},
		Render: config.RenderConfig{Background: "#000000", Filter: "bilinear", DPI: 150, Verify: true},
		Input:  config.InputConfig{Extensions: []string{"png"}, Sort: true, Workers: 2},
		CLI:    config.CLIConfig{Preview: "p.png"},
	}
	got, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	want := Options{
		Page:           layout.PageSize{Width: 300, Height: 200},
		Heuristic:      layout.HeuristicAggregate,
		SafetyMargin:   0.8,
		WrapPolicy:     layout.WrapStream,
		Shuffle:        true,
		Seed:           9,
		Background:     color.NRGBA{A: 255},
		Filter:         imagerender.FilterBilinear,
		DPI:            150,
		VerifyOutput:   true,
		Extensions:     []string{"png"},
		Sort:           true,
		MeasureWorkers: 2,
		Preview:        "p.png",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("options (-want +got):\n%s", diff)
	}

	cfg.Layout.WrapPolicy = "spiral"
	if _, err := OptionsFromConfig(cfg); err == nil {
		t.Error("expected error for unknown wrap policy")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{&discovery.InvalidInputError{Path: "x"}, ExitInvalidInput},
		{fmt.Errorf("parse: %w", config.ErrUsage), ExitInvalidInput},
		{fmt.Errorf("paint a.png: %w", &imagerender.DecodeError{Path: "a.png", Err: errors.New("eof")}), ExitDecode},
		{&exporter.WriteError{Path: "c.pdf", Err: os.ErrPermission}, ExitWrite},
		{fmt.Errorf("paint: %w", context.Canceled), ExitInterrupted},
		{errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestResolveOutput(t *testing.T) {
	tmp := "/tmp/run"
	tests := []struct {
		in   string
		want outputTarget
	}{
		{"", outputTarget{local: "collage.pdf"}},
		{"out/shots", outputTarget{local: "out/shots.pdf"}},
		{"out.PDF", outputTarget{local: "out.PDF"}},
		{"s3://b/c/day", outputTarget{local: filepath.Join(tmp, "day.pdf"), bucket: "b", key: "c/day.pdf"}},
		{"s3://b/c/", outputTarget{local: filepath.Join(tmp, "collage.pdf"), bucket: "b", key: "c/collage.pdf"}},
	}
	for _, tt := range tests {
		got, err := resolveOutput(tt.in, tmp)
		if err != nil {
			t.Fatalf("resolveOutput(%q): %v", tt.in, err)
		}
		if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(outputTarget{})); diff != "" {
			t.Errorf("resolveOutput(%q) (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestCleanupStaleRunDirs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, runDirPrefix+"old")
	fresh := filepath.Join(dir, runDirPrefix+"fresh")
	other := filepath.Join(dir, "keep-me")
	for _, d := range []string{old, fresh, other} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	for _, d := range []string{old, other} {
		if err := os.Chtimes(d, past, past); err != nil {
			t.Fatal(err)
		}
	}

	if n := CleanupStaleRunDirs(dir, 24*time.Hour); n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	for d, exists := range map[string]bool{old: false, fresh: true, other: true} {
		_, err := os.Stat(d)
		if (err == nil) != exists {
			t.Errorf("%s exists=%v, want %v", filepath.Base(d), err == nil, exists)
		}
	}
}

func TestMeasureAll_KeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for i := 1; i <= 6; i++ {
		files = append(files, writePNG(t, dir, fmt.Sprintf("%d.png", i), i*10, 5))
	}
	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	files = append(files[:3], append([]string{bad}, files[3:]...)...)

	l := zerolog.Nop()
	for _, workers := range []int{1, 3} {
		refs, skipped, err := measureAll(l, files, true, workers)
		if err != nil {
			t.Fatalf("measureAll(workers=%d): %v", workers, err)
		}
		if skipped != 1 || len(refs) != 6 {
			t.Fatalf("workers=%d: skipped=%d refs=%d", workers, skipped, len(refs))
		}
		for i, r := range refs {
			if r.Width != (i+1)*10 {
				t.Errorf("workers=%d: refs[%d].Width = %d, want %d", workers, i, r.Width, (i+1)*10)
			}
		}

		if _, _, err := measureAll(l, files, false, workers); !errors.Is(err, imagerender.ErrDecode) {
			t.Errorf("workers=%d: err = %v, want decode failure", workers, err)
		}
	}
}
