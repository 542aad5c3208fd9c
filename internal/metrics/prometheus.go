package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector mirrors run reports into Prometheus metrics on its own registry.
type Collector struct {
	Registry *prometheus.Registry

	sent     *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	failed   *prometheus.CounterVec
	replied  *prometheus.CounterVec
	corrupt  *prometheus.CounterVec
	runs     *prometheus.CounterVec
	lastRun  *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

// NewCollector registers the dripline metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		Registry: reg,
		sent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dripline_messages_sent_total",
			Help: "Direct messages confirmed sent",
		}, []string{"job"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dripline_leads_skipped_total",
			Help: "Leads whose next drip message was not yet due",
		}, []string{"job"}),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dripline_leads_failed_total",
			Help: "Leads that failed validation or sending",
		}, []string{"job"}),
		replied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dripline_replies_marked_total",
			Help: "Leads marked replied by the reply detector",
		}, []string{"job"}),
		corrupt: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dripline_corrupt_rows_total",
			Help: "Rows with unreadable drip state",
		}, []string{"job"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dripline_runs_total",
			Help: "Completed runs by result",
		}, []string{"job", "result"}),
		lastRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dripline_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}, []string{"job"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dripline_run_duration_seconds",
			Help:    "Run wall time in seconds",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"job"}),
	}
}

// Observe adds a finished run to the collectors.
func (c *Collector) Observe(r Report) {
	c.sent.WithLabelValues(r.Job).Add(float64(r.Sent))
	c.skipped.WithLabelValues(r.Job).Add(float64(r.Skipped))
	c.failed.WithLabelValues(r.Job).Add(float64(r.Failed))
	c.replied.WithLabelValues(r.Job).Add(float64(r.Replied))
	c.corrupt.WithLabelValues(r.Job).Add(float64(len(r.CorruptRows)))

	result := "success"
	if r.Err != "" {
		result = "error"
	}
	c.runs.WithLabelValues(r.Job, result).Inc()
	c.lastRun.WithLabelValues(r.Job).Set(float64(r.FinishedAt.Unix()))
	c.duration.WithLabelValues(r.Job).Observe(r.Duration().Seconds())
}

// WriteTextfile writes the registry in the node-exporter textfile format.
// It is a no-op when path is empty.
func (c *Collector) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.Registry); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}
