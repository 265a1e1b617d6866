package orchestrator

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/local/collager/internal/config"
	"github.com/local/collager/internal/discovery"
	"github.com/local/collager/internal/exporter"
	"github.com/local/collager/internal/filetype"
	"github.com/local/collager/internal/imagerender"
	"github.com/local/collager/internal/layout"
	"github.com/local/collager/internal/logger"
	"github.com/local/collager/internal/metrics"
	"github.com/local/collager/internal/store"
)

// ObjectStore moves files between the run and remote storage.
type ObjectStore interface {
	discovery.Fetcher
	Upload(ctx context.Context, bucket, key, src, contentType string, metadata map[string]string) error
}

// PlacementRecorder persists the final layout of a run.
type PlacementRecorder interface {
	Save(ctx context.Context, runID string, placed []layout.PlacedImage) error
}

// Dependencies are the optional integrations of a run. Any may be nil.
type Dependencies struct {
	Status     store.StatusStore
	Placements PlacementRecorder
	Storage    ObjectStore
	Metrics    *metrics.Recorder
	// Opener renders previews; nil means the MuPDF-backed default.
	Opener imagerender.Opener
}

// Options are the resolved settings of a run.
type Options struct {
	Page           layout.PageSize
	Heuristic      layout.Heuristic
	SafetyMargin   float64
	WrapPolicy     layout.WrapPolicy
	Shuffle        bool
	Seed           int64
	Background     color.Color
	Filter         imagerender.Filter
	DPI            float64
	VerifyOutput   bool
	Extensions     []string
	Sort           bool
	VerifyContent  bool
	SkipUnreadable bool
	MeasureWorkers int
	Preview        string
	TempDir        string
}

// OptionsFromConfig resolves cfg into run options.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	h, err := layout.ParseHeuristic(string(cfg.Layout.Heuristic))
	if err != nil {
		return Options{}, err
	}
	wp, err := layout.ParseWrapPolicy(string(cfg.Layout.WrapPolicy))
	if err != nil {
		return Options{}, err
	}
	f, err := imagerender.ParseFilter(string(cfg.Render.Filter))
	if err != nil {
		return Options{}, err
	}
	bg, err := imagerender.ParseColor(cfg.Render.Background)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Page:           layout.PageSize{Width: cfg.Layout.PageWidth, Height: cfg.Layout.PageHeight},
		Heuristic:      h,
		SafetyMargin:   cfg.Layout.SafetyMargin,
		WrapPolicy:     wp,
		Shuffle:        cfg.Layout.Shuffle,
		Seed:           cfg.Layout.Seed,
		Background:     bg,
		Filter:         f,
		DPI:            cfg.Render.DPI,
		VerifyOutput:   cfg.Render.Verify,
		Extensions:     cfg.Input.Extensions,
		Sort:           cfg.Input.Sort,
		VerifyContent:  cfg.Input.VerifyContent,
		SkipUnreadable: cfg.Input.SkipUnreadable,
		MeasureWorkers: cfg.Input.Workers,
		Preview:        cfg.CLI.Preview,
	}, nil
}

// Result describes a finished run.
type Result struct {
	RunID string
	// Empty is set when no image was found; nothing is written then.
	Empty      bool
	Output     string
	Document   *exporter.Document
	Preview    string
	Discovered int
	Skipped    int
	Placed     int
	Dropped    int
	Scale      float64
	Placements []layout.PlacedImage
	Duration   time.Duration
}

type Orchestrator struct {
	deps Dependencies
	opts Options
}

func New(opts Options, deps Dependencies) *Orchestrator {
	return &Orchestrator{deps: deps, opts: opts}
}

// Run discovers the images under inputs, lays them out on one page and
// writes the page to output. An input set without images is not an error:
// the result is marked Empty and no document is written.
func (o *Orchestrator) Run(ctx context.Context, inputs []string, output string) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	l := logger.WithRun(res.RunID)

	l.Info().Strs("inputs", inputs).Str("output", output).Msg("run started")
	o.setStatus(ctx, l, res, store.StatusProcessing, "discovering images", &start, nil)

	err := o.run(ctx, l, inputs, output, res)
	res.Duration = time.Since(start)
	end := time.Now()

	switch {
	case err != nil:
		l.Error().Err(err).Dur("duration", res.Duration).Msg("run failed")
		o.setStatus(ctx, l, res, store.StatusFailed, err.Error(), &start, &end)
		o.finishMetrics(l, res, store.StatusFailed)
		return res, err
	case res.Empty:
		l.Info().Int("skipped", res.Skipped).Msg("no image files found")
		o.setStatus(ctx, l, res, store.StatusEmpty, "no image files found", &start, &end)
		o.finishMetrics(l, res, store.StatusEmpty)
		return res, nil
	}

	l.Info().
		Str("output", res.Output).
		Int("discovered", res.Discovered).
		Int("placed", res.Placed).
		Int("dropped", res.Dropped).
		Int("skipped", res.Skipped).
		Float64("scale", res.Scale).
		Dur("duration", res.Duration).
		Msg("collage written")
	o.setStatus(ctx, l, res, store.StatusSuccess, fmt.Sprintf("placed %d of %d images", res.Placed, res.Discovered), &start, &end)
	o.recordPlacements(ctx, l, res)
	o.finishMetrics(l, res, store.StatusSuccess)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, l zerolog.Logger, inputs []string, output string, res *Result) error {
	tmp, err := os.MkdirTemp(o.opts.TempDir, runDirPrefix)
	if err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	// discover
	stageStart := time.Now()
	dopts := discovery.Options{
		Extensions: o.opts.Extensions,
		Sort:       o.opts.Sort,
		TempDir:    tmp,
	}
	if o.opts.VerifyContent {
		dopts.Sniffer = filetype.New()
	}
	if o.deps.Storage != nil {
		dopts.Fetcher = o.deps.Storage
	}
	files, err := discovery.Discover(ctx, inputs, dopts)
	if err != nil {
		return err
	}
	res.Discovered = len(files)
	o.observe("discover", stageStart)
	l.Debug().Int("files", len(files)).Msg("discovery finished")

	if len(files) == 0 {
		res.Empty = true
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// measure
	stageStart = time.Now()
	refs, skipped, err := measureAll(l, files, o.opts.SkipUnreadable, o.opts.MeasureWorkers)
	if err != nil {
		return err
	}
	res.Skipped = skipped
	o.observe("measure", stageStart)
	if len(refs) == 0 {
		res.Empty = true
		return nil
	}

	// scale
	scale, err := layout.EstimateScale(layout.Sizes(refs), o.opts.Page, o.opts.Heuristic, o.opts.SafetyMargin)
	if err != nil {
		return fmt.Errorf("estimate scale: %w", err)
	}
	res.Scale = scale
	l.Debug().Float64("scale", scale).Str("heuristic", string(o.opts.Heuristic)).Msg("scale estimated")

	// compose
	stageStart = time.Now()
	canvas, err := imagerender.NewCanvas(o.opts.Page, o.opts.Background, o.opts.Filter)
	if err != nil {
		return err
	}
	ordered := layout.Order(refs, o.opts.Shuffle, o.opts.Seed)
	composed, err := layout.Compose(ordered, o.opts.Page, scale, o.opts.WrapPolicy, ctxPainter{ctx: ctx, next: canvas})
	if err != nil {
		return err
	}
	res.Placements = composed.Placed
	res.Placed = len(composed.Placed)
	res.Dropped = composed.Dropped
	o.observe("compose", stageStart)
	if res.Dropped > 0 {
		l.Warn().
			Int("dropped", res.Dropped).
			Int("placed", res.Placed).
			Msgf("%d image(s) did not fit on the page and were left out", res.Dropped)
	}

	// export
	stageStart = time.Now()
	target, err := resolveOutput(output, tmp)
	if err != nil {
		return err
	}
	doc, err := exporter.Export(canvas.Image(), target.local, exporter.Options{
		DPI:    o.opts.DPI,
		Verify: o.opts.VerifyOutput,
		Title:  "Collage " + res.RunID,
	})
	if err != nil {
		return err
	}
	res.Document = doc
	if err := o.publish(ctx, target, res); err != nil {
		return err
	}
	res.Output = target.display()
	o.observe("export", stageStart)

	if o.opts.Preview != "" {
		o.renderPreview(l, target.local, res)
	}
	return nil
}

// renderPreview failures are logged, never fatal; the document is already written.
func (o *Orchestrator) renderPreview(l zerolog.Logger, pdfPath string, res *Result) {
	pv, err := imagerender.RenderPreview(o.deps.Opener, pdfPath, o.opts.Preview, o.opts.DPI)
	if err != nil {
		l.Warn().Err(err).Str("preview", o.opts.Preview).Msg("preview render failed")
		return
	}
	res.Preview = pv.Path
	l.Info().Str("preview", pv.Path).Int("width", pv.Width).Int("height", pv.Height).Msg("preview written")
}

// ctxPainter stops composition once ctx is cancelled.
type ctxPainter struct {
	ctx  context.Context
	next layout.Painter
}

func (p ctxPainter) Paint(pl layout.PlacedImage) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	return p.next.Paint(pl)
}

func (o *Orchestrator) observe(stage string, since time.Time) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveStage(stage, time.Since(since))
	}
}
