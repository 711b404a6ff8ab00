package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics are the gauges describing the last build, written as a
// node_exporter textfile
type Metrics struct {
	registry *prometheus.Registry

	success       prometheus.Gauge
	exitCode      prometheus.Gauge
	duration      prometheus.Gauge
	lastRun       prometheus.Gauge
	stageDuration *prometheus.GaugeVec
	artifactSize  *prometheus.GaugeVec
}

// NewMetrics creates the metrics on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pyship_build_success",
			Help: "1 if the last build produced an installer, 0 otherwise",
		}),
		exitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pyship_build_exit_code",
			Help: "Exit code of the last build",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pyship_build_duration_seconds",
			Help: "Wall time of the last build",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pyship_build_last_run_timestamp_seconds",
			Help: "Unix time the last build finished",
		}),
		stageDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pyship_stage_duration_seconds",
				Help: "Wall time of each stage of the last build",
			},
			[]string{"stage", "status"},
		),
		artifactSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pyship_artifact_size_bytes",
				Help: "Size of each artifact of the last build",
			},
			[]string{"artifact"},
		),
	}
	m.registry.MustRegister(m.success, m.exitCode, m.duration, m.lastRun, m.stageDuration, m.artifactSize)
	return m
}

// Record sets every gauge from a build result
func (m *Metrics) Record(r *Result) {
	if r.Outcome == OutcomeSuccess {
		m.success.Set(1)
	} else {
		m.success.Set(0)
	}
	m.exitCode.Set(float64(r.ExitCode))
	m.duration.Set(r.Duration)
	m.lastRun.Set(float64(r.EndTime.Unix()))

	m.stageDuration.Reset()
	for _, s := range r.Stages {
		m.stageDuration.WithLabelValues(s.Name, string(s.Status)).Set(s.Duration.Seconds())
	}
	m.artifactSize.Reset()
	for _, a := range r.Artifacts {
		m.artifactSize.WithLabelValues(a.Kind).Set(float64(a.Size))
	}
}

// WriteTextfile atomically writes the metrics in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// WriteText renders the metrics for humans
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
