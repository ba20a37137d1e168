package pipeline

import (
	"context"
	"strconv"

	"taxietl/internal/logging"
	"taxietl/internal/metrics"
	"taxietl/internal/objectstore"
	"taxietl/internal/parquetfile"
	"taxietl/internal/partition"
	"taxietl/internal/table"
	"taxietl/internal/transformer"
)

// JobWebToStore labels logs and metrics of the web-to-store run.
const JobWebToStore = "web_to_store"

// Fetcher downloads and parses a remote CSV.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*table.Table, error)
}

// WebToStore fetches a partition's CSV, normalizes it, writes it as parquet
// under BaseDir and uploads the file to the object store.
type WebToStore struct {
	Fetcher       Fetcher
	Store         StoreOpener
	BaseDir       string
	SourceBaseURL string
	Parquet       parquetfile.Options

	// Rules defaults to transformer.WebRules().
	Rules transformer.Transformer
}

// WebResult describes a finished web-to-store run.
type WebResult struct {
	Partition partition.Partition
	URL       string
	Rows      int
	LocalPath string
	ObjectKey string
	Manifest  parquetfile.Manifest
}

// Runner builds the run for p. res is filled in as steps complete.
func (w *WebToStore) Runner(p partition.Partition, res *WebResult) *Runner {
	rules := w.Rules
	if rules == nil {
		rules = transformer.WebRules()
	}
	res.Partition = p
	res.URL = p.SourceURL(w.SourceBaseURL)
	res.LocalPath = p.LocalPath(w.BaseDir)
	res.ObjectKey = p.ObjectKey()
	log := logging.Component("pipeline").With("job", JobWebToStore, "partition", p.String())

	var tbl *table.Table
	return &Runner{
		Job:       JobWebToStore,
		Partition: p,
		Steps: []Step{
			{Stage: StateFetching, Name: "fetch", Run: func(ctx context.Context) error {
				t, err := w.Fetcher.Fetch(ctx, res.URL)
				if err != nil {
					return err
				}
				tbl = t
				res.Rows = t.NumRows()
				metrics.RecordRows(JobWebToStore, "fetched", int64(res.Rows))
				log.Info("records fetched", "rows", res.Rows)
				return nil
			}},
			{Stage: StateTransforming, Name: "normalize", Run: func(context.Context) error {
				before := passengerNulls(tbl)
				if err := rules.Apply(tbl); err != nil {
					return err
				}
				if filled := before - passengerNulls(tbl); filled > 0 {
					metrics.RecordRows(JobWebToStore, "nulls_filled", int64(filled))
				}
				return nil
			}},
			{Stage: StateLoading, Name: "write_local", Run: func(context.Context) error {
				m, err := parquetfile.Write(res.LocalPath, tbl, w.Parquet)
				if err != nil {
					return err
				}
				res.Manifest = m
				metrics.RecordRows(JobWebToStore, "written", m.Rows)
				log.Info("parquet written", "path", m.Path, "rows", m.Rows, "bytes", m.Bytes, "compression", m.Compression)
				return nil
			}},
			{Stage: StateLoading, Name: "upload", Run: func(ctx context.Context) error {
				store, err := w.Store(ctx)
				if err != nil {
					return err
				}
				meta := map[string]string{
					objectstore.MetaRows:     strconv.FormatInt(res.Manifest.Rows, 10),
					objectstore.MetaChecksum: res.Manifest.Checksum,
				}
				if err := store.Upload(ctx, res.LocalPath, res.ObjectKey, meta); err != nil {
					return err
				}
				log.Info("uploaded", "from", res.LocalPath, "to", res.ObjectKey)
				return nil
			}},
		},
	}
}

// Run executes the run for p.
func (w *WebToStore) Run(ctx context.Context, p partition.Partition) (WebResult, error) {
	var res WebResult
	if err := p.Validate(); err != nil {
		res.Partition = p
		return res, err
	}
	err := w.Runner(p, &res).Run(ctx)
	return res, err
}

// passengerNulls counts missing passenger counts; 0 if the column is absent.
func passengerNulls(t *table.Table) int {
	c, ok := t.Column(transformer.PassengerCount)
	if !ok {
		return 0
	}
	return c.NullCount()
}
