package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "collager"

// Recorder holds the collectors of one run on its own registry, so a batch
// run can export exactly its own numbers.
type Recorder struct {
	reg *prometheus.Registry

	images      *prometheus.CounterVec
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	scale       prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		images: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "images_total",
				Help:      "Images seen by a run, by outcome (discovered, placed, dropped, skipped)",
			},
			[]string{"outcome"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Collage runs by result (success, empty, failed)",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		scale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scale_factor",
			Help:      "Uniform scale factor applied to the last composed page",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
	r.reg.MustRegister(r.images, r.runs, r.duration, r.scale, r.lastSuccess)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) AddImages(outcome string, n int) {
	if n > 0 {
		r.images.WithLabelValues(outcome).Add(float64(n))
	}
}

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.duration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) SetScale(s float64) { r.scale.Set(s) }

// RunFinished counts the run under result and stamps success time.
func (r *Recorder) RunFinished(result string) {
	r.runs.WithLabelValues(result).Inc()
	if result == "success" {
		r.lastSuccess.SetToCurrentTime()
	}
}

// WriteTextfile writes all collected metrics in text format for the
// node-exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Push sends all collected metrics to a Prometheus Pushgateway under job.
func (r *Recorder) Push(url, job string) error {
	if err := push.New(url, job).Gatherer(r.reg).Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
