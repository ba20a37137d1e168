// Package metrics is a backend-agnostic facade for pipeline metrics.
//
// Callers record stage outcomes, row counts and chunk counts through the
// package-level helpers. The default backend drops everything, so metrics are
// always safe to call; cmd/taxietl installs a Pushgateway or DogStatsD backend
// from configuration.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StageTotal    = "taxietl_stage_total"
	StageDuration = "taxietl_stage_duration_seconds"
	RowsTotal     = "taxietl_rows_total"
	ChunksTotal   = "taxietl_chunks_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend receives counters and timings.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend buffers.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. Passing nil keeps the current backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStage counts one execution of a pipeline stage and observes its
// duration. job is the pipeline name (web_to_store, store_to_warehouse).
func RecordStage(job, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "stage": stage, "status": status}
	b := current()
	b.IncCounter(StageTotal, 1, lbls)
	b.ObserveHistogram(StageDuration, d.Seconds(), lbls)
}

// RecordRows adds delta rows of the given kind. Kinds in use:
//
//	fetched      rows parsed from the source file
//	written      rows written to the local parquet file
//	downloaded   rows read back from a downloaded parquet file
//	nulls_filled passenger_count nulls replaced with zero
//	loaded       rows appended to the warehouse
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordChunks counts warehouse append chunks.
func RecordChunks(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(ChunksTotal, float64(delta), Labels{"job": job})
}
