package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/local/collager/internal/discovery"
	"github.com/local/collager/internal/imagerender"
	"github.com/local/collager/internal/layout"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// LayoutConfig controls page geometry and placement.
type LayoutConfig struct {
	PageWidth    int
	PageHeight   int
	Heuristic    layout.Heuristic
	SafetyMargin float64
	WrapPolicy   layout.WrapPolicy
	Shuffle      bool
	Seed         int64
}

// RenderConfig controls pixels and the output document.
type RenderConfig struct {
	Background string
	Filter     imagerender.Filter
	DPI        float64
	Verify     bool
}

// InputConfig controls discovery.
type InputConfig struct {
	Extensions     []string
	Sort           bool
	VerifyContent  bool
	SkipUnreadable bool
	Workers        int
}

// StorageConfig configures S3 access for s3:// inputs and outputs.
type StorageConfig struct {
	Bucket    string // HeadBucket target of --check
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// StatusConfig configures the Redis run-status store.
type StatusConfig struct {
	RedisURL string
	TTL      time.Duration
}

// MetricsConfig configures batch metrics export.
type MetricsConfig struct {
	Textfile    string
	Pushgateway string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Layout  LayoutConfig
	Render  RenderConfig
	Input   InputConfig
	Storage StorageConfig
	Status  StatusConfig
	Metrics MetricsConfig
	CLI     CLIConfig
}

// LoadDotEnv seeds the environment from .env files. Missing files are
// ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", ""),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_collager",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Layout = LayoutConfig{
		PageWidth:    parseInt(getEnv("PAGE_WIDTH", "2560"), 2560),
		PageHeight:   parseInt(getEnv("PAGE_HEIGHT", "1564"), 1564),
		Heuristic:    layout.Heuristic(normalize(getEnv("SCALE_HEURISTIC", string(layout.HeuristicArea)))),
		SafetyMargin: parseFloat(getEnv("SAFETY_MARGIN", "0.9"), layout.DefaultSafetyMargin),
		WrapPolicy:   layout.WrapPolicy(normalize(getEnv("WRAP_POLICY", string(layout.WrapRow)))),
		Shuffle:      parseBool(getEnv("SHUFFLE_ORDER", "false")),
		Seed:         parseInt64(getEnv("SHUFFLE_SEED", "0"), 0),
	}

	cfg.Render = RenderConfig{
		Background: getEnv("BACKGROUND_COLOR", "white"),
		Filter:     imagerender.Filter(normalize(getEnv("RESIZE_FILTER", string(imagerender.FilterLanczos)))),
		DPI:        parseFloat(getEnv("OUTPUT_RESOLUTION", "100"), 100),
		Verify:     parseBool(getEnv("VERIFY_OUTPUT", "true")),
	}

	cfg.Input = InputConfig{
		Extensions:     parseList(getEnv("IMAGE_EXTENSIONS", strings.Join(discovery.DefaultExtensions, ","))),
		Sort:           parseBool(getEnv("SORT_INPUTS", "true")),
		VerifyContent:  parseBool(getEnv("VERIFY_CONTENT", "false")),
		SkipUnreadable: parseBool(getEnv("SKIP_UNREADABLE", "false")),
		Workers:        parseInt(getEnv("MEASURE_WORKERS", "1"), 1),
	}

	cfg.Storage = StorageConfig{
		Bucket:    getEnv("AWS_S3_BUCKET", ""),
		Region:    getEnv("AWS_REGION", ""),
		Endpoint:  getEnv("S3_ENDPOINT", ""),
		AccessKey: getEnv("S3_ACCESS_KEY", ""),
		SecretKey: getEnv("S3_SECRET_KEY", ""),
	}

	cfg.Status = StatusConfig{
		RedisURL: getEnv("REDIS_URL", ""),
		TTL:      parseDuration(getEnv("STATUS_TTL", "168h"), 7*24*time.Hour),
	}

	cfg.Metrics = MetricsConfig{
		Textfile:    getEnv("METRICS_TEXTFILE", ""),
		Pushgateway: getEnv("METRICS_PUSHGATEWAY", ""),
	}

	cfg.CLI = CLIConfig{Output: DefaultOutput}

	return cfg
}

// Validate rejects settings no run could succeed with.
func (c Config) Validate() error {
	var errs []error
	if c.Layout.PageWidth <= 0 || c.Layout.PageHeight <= 0 {
		errs = append(errs, fmt.Errorf("page size must be positive, got %dx%d", c.Layout.PageWidth, c.Layout.PageHeight))
	}
	if _, err := layout.ParseHeuristic(string(c.Layout.Heuristic)); err != nil {
		errs = append(errs, err)
	}
	if c.Layout.SafetyMargin <= 0 || c.Layout.SafetyMargin > 1 {
		errs = append(errs, fmt.Errorf("safety margin must be in (0, 1], got %v", c.Layout.SafetyMargin))
	}
	if _, err := layout.ParseWrapPolicy(string(c.Layout.WrapPolicy)); err != nil {
		errs = append(errs, err)
	}
	if _, err := imagerender.ParseFilter(string(c.Render.Filter)); err != nil {
		errs = append(errs, err)
	}
	if _, err := imagerender.ParseColor(c.Render.Background); err != nil {
		errs = append(errs, err)
	}
	if c.Render.DPI <= 0 {
		errs = append(errs, fmt.Errorf("output resolution must be positive, got %v", c.Render.DPI))
	}
	if c.Input.Workers <= 0 {
		errs = append(errs, fmt.Errorf("measure workers must be positive, got %d", c.Input.Workers))
	}
	if len(c.Input.Extensions) == 0 {
		errs = append(errs, errors.New("no image extensions configured"))
	}
	return errors.Join(errs...)
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
