// Package prompush pushes pipeline metrics to a Prometheus Pushgateway.
//
// A batch job does not live long enough to be scraped, so the registry is
// pushed once at the end of a run (metrics.Flush). The pipeline name is the
// Pushgateway grouping job; remaining labels become Prometheus labels.
package prompush

import (
	"fmt"

	"taxietl/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a metrics.Backend backed by a private registry.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	stages     *prometheus.CounterVec
	stageTimes *prometheus.HistogramVec
	rows       *prometheus.CounterVec
	chunks     prometheus.Counter
}

// NewBackend registers the collectors. jobName defaults to "taxietl".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "taxietl"
	}

	reg := prometheus.NewRegistry()
	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        reg,
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StageTotal,
			Help: "Pipeline stage executions by pipeline, stage and status.",
		}, []string{"pipeline", "stage", "status"}),
		stageTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StageDuration,
			Help:    "Pipeline stage duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"pipeline", "stage", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows handled by pipeline and kind (fetched, written, loaded, ...).",
		}, []string{"pipeline", "kind"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.ChunksTotal,
			Help: "Warehouse append chunks.",
		}),
	}
	for _, c := range []prometheus.Collector{b.stages, b.stageTimes, b.rows, b.chunks} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StageTotal:
		if b.stages != nil {
			b.stages.WithLabelValues(labels["job"], labels["stage"], labels["status"]).Add(delta)
		}
	case metrics.RowsTotal:
		if b.rows != nil {
			b.rows.WithLabelValues(labels["job"], labels["kind"]).Add(delta)
		}
	case metrics.ChunksTotal:
		if b.chunks != nil {
			b.chunks.Add(delta)
		}
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StageDuration || b.stageTimes == nil {
		return
	}
	b.stageTimes.WithLabelValues(labels["job"], labels["stage"], labels["status"]).Observe(value)
}

// Flush pushes the registry, replacing the previous push for this job.
func (b *Backend) Flush() error {
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prompush: push to %s: %w", b.gatewayURL, err)
	}
	return nil
}
