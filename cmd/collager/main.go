package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/collager/internal/config"
	logpkg "github.com/local/collager/internal/logger"
	"github.com/local/collager/internal/metrics"
	"github.com/local/collager/internal/orchestrator"
	"github.com/local/collager/internal/statuscheck"
	"github.com/local/collager/internal/storage"
	"github.com/local/collager/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := cfgpkg.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg := cfgpkg.FromEnv()

	op, err := cfgpkg.ParseArgs(os.Args, &cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		op.Help()
		return orchestrator.ExitCode(err)
	}
	switch {
	case cfg.CLI.Help:
		op.Help()
		return orchestrator.ExitOK
	case cfg.CLI.Version:
		fmt.Println("collager", version)
		return orchestrator.ExitOK
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return orchestrator.ExitInvalidInput
	}

	// Init logging
	if err := logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
	}
	defer logpkg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Status store
	var rs *store.RedisStatus
	if cfg.Status.RedisURL != "" {
		rs, err = store.NewRedisStatus(ctx, cfg.Status.RedisURL, cfg.Status.TTL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, run status will not be recorded")
			rs = nil
		} else {
			defer rs.Close()
		}
	}

	// Object storage, only built when something refers to it
	var s3c *storage.S3Client
	if cfg.CLI.Check || needsS3(cfg) {
		s3c, err = storage.NewS3Client(ctx, storage.Options{
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
		})
		if err != nil {
			log.Warn().Err(err).Msg("s3 client unavailable")
			s3c = nil
		}
	}

	if cfg.CLI.Check {
		return check(ctx, rs, s3c, cfg.Storage.Bucket)
	}
	if cfg.CLI.RunID != "" {
		return report(ctx, rs, cfg.Status.TTL, cfg.CLI.RunID)
	}

	opts, err := orchestrator.OptionsFromConfig(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return orchestrator.ExitInvalidInput
	}
	if n := orchestrator.CleanupStaleRunDirs(opts.TempDir, 24*time.Hour); n > 0 {
		log.Info().Int("removed", n).Msg("removed stale run directories")
	}

	rec := metrics.New()
	deps := orchestrator.Dependencies{Metrics: rec}
	if rs != nil {
		deps.Status = rs
		deps.Placements = store.NewPlacementStore(rs.Client(), cfg.Status.TTL)
	}
	if s3c != nil {
		deps.Storage = s3c
	}

	res, err := orchestrator.New(opts, deps).Run(ctx, cfg.CLI.Inputs, cfg.CLI.Output)
	exportMetrics(cfg.Metrics, rec)

	switch {
	case err != nil:
		fmt.Fprintln(os.Stderr, "error:", err)
	case res.Empty:
		fmt.Println("No image files found in the input.")
	default:
		fmt.Println("Collage saved as", res.Output)
		if res.Dropped > 0 {
			fmt.Fprintf(os.Stderr, "warning: %d of %d images did not fit on the page\n", res.Dropped, res.Discovered)
		}
		if res.Preview != "" {
			fmt.Println("Preview saved as", res.Preview)
		}
	}
	return orchestrator.ExitCode(err)
}

func needsS3(cfg cfgpkg.Config) bool {
	if storage.IsURL(cfg.CLI.Output) {
		return true
	}
	for _, in := range cfg.CLI.Inputs {
		if storage.IsURL(in) {
			return true
		}
	}
	return false
}

func check(ctx context.Context, rs *store.RedisStatus, s3c *storage.S3Client, bucket string) int {
	opts := statuscheck.Options{S3Bucket: bucket}
	if rs != nil {
		opts.Redis = rs
	}
	if s3c != nil {
		opts.S3 = s3c
	}
	sum := statuscheck.New(opts).Summary(ctx)
	if err := sum.WriteTable(os.Stdout); err != nil {
		return orchestrator.ExitFailure
	}
	// Redis and S3 are optional; only a broken renderer fails the check.
	if !sum.Renderer.OK {
		return orchestrator.ExitFailure
	}
	return orchestrator.ExitOK
}

func report(ctx context.Context, rs *store.RedisStatus, ttl time.Duration, runID string) int {
	if rs == nil {
		fmt.Fprintln(os.Stderr, "error: --status needs a reachable REDIS_URL")
		return orchestrator.ExitFailure
	}
	placements := store.NewPlacementStore(rs.Client(), ttl)
	if err := store.WriteRunReport(ctx, os.Stdout, rs, placements, runID); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return orchestrator.ExitFailure
	}
	return orchestrator.ExitOK
}

func exportMetrics(cfg cfgpkg.MetricsConfig, rec *metrics.Recorder) {
	if cfg.Textfile != "" {
		if err := rec.WriteTextfile(cfg.Textfile); err != nil {
			log.Warn().Err(err).Str("path", cfg.Textfile).Msg("failed to write metrics textfile")
		}
	}
	if cfg.Pushgateway != "" {
		if err := rec.Push(cfg.Pushgateway, "collager"); err != nil {
			log.Warn().Err(err).Str("url", cfg.Pushgateway).Msg("failed to push metrics")
		}
	}
}
