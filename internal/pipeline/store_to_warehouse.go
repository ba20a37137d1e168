package pipeline

import (
	"context"
	"errors"

	"taxietl/internal/logging"
	"taxietl/internal/metrics"
	"taxietl/internal/parquetfile"
	"taxietl/internal/partition"
	"taxietl/internal/table"
	"taxietl/internal/transformer"
	"taxietl/internal/warehouse"
)

// JobStoreToWarehouse labels logs and metrics of the store-to-warehouse run.
const JobStoreToWarehouse = "store_to_warehouse"

// StoreToWarehouse downloads a partition's parquet file, fills missing
// passenger counts and appends the rows to the warehouse.
type StoreToWarehouse struct {
	Store     StoreOpener
	Loader    LoaderOpener
	BaseDir   string
	Project   string
	Dataset   string
	BatchSize int

	// Rules defaults to transformer.WarehouseRules().
	Rules transformer.Transformer
}

// WarehouseResult describes a finished store-to-warehouse run.
type WarehouseResult struct {
	Partition   partition.Partition
	ObjectKey   string
	LocalPath   string
	Destination warehouse.TableRef
	Rows        int
	Loaded      int64
	// NullsBefore and NullsAfter count missing passenger counts around the
	// fill.
	NullsBefore int
	NullsAfter  int
}

// Runner builds the run for p. res is filled in as steps complete.
func (s *StoreToWarehouse) Runner(p partition.Partition, res *WarehouseResult) *Runner {
	rules := s.Rules
	if rules == nil {
		rules = transformer.WarehouseRules()
	}
	res.Partition = p
	res.ObjectKey = p.ObjectKey()
	res.LocalPath = p.LocalPath(s.BaseDir)
	res.Destination = warehouse.TableRef{Project: s.Project, Dataset: s.Dataset, Table: p.Table()}
	log := logging.Component("pipeline").With("job", JobStoreToWarehouse, "partition", p.String())

	var tbl *table.Table
	return &Runner{
		Job:       JobStoreToWarehouse,
		Partition: p,
		Steps: []Step{
			{Stage: StateFetching, Name: "download", Run: func(ctx context.Context) error {
				store, err := s.Store(ctx)
				if err != nil {
					return err
				}
				if err := store.Download(ctx, res.ObjectKey, res.LocalPath); err != nil {
					return err
				}
				log.Info("downloaded", "from", res.ObjectKey, "to", res.LocalPath)
				return nil
			}},
			{Stage: StateFetching, Name: "read_local", Run: func(context.Context) error {
				t, err := parquetfile.Read(res.LocalPath)
				if err != nil {
					return err
				}
				tbl = t
				res.Rows = t.NumRows()
				metrics.RecordRows(JobStoreToWarehouse, "downloaded", int64(res.Rows))
				return nil
			}},
			{Stage: StateTransforming, Name: "fill_nulls", Run: func(context.Context) error {
				res.NullsBefore = passengerNulls(tbl)
				log.Info("pre: missing passenger count", "nulls", res.NullsBefore)
				if err := rules.Apply(tbl); err != nil {
					return err
				}
				res.NullsAfter = passengerNulls(tbl)
				log.Info("post: missing passenger count", "nulls", res.NullsAfter)
				if filled := res.NullsBefore - res.NullsAfter; filled > 0 {
					metrics.RecordRows(JobStoreToWarehouse, "nulls_filled", int64(filled))
				}
				return nil
			}},
			{Stage: StateLoading, Name: "load", Run: func(ctx context.Context) (err error) {
				l, err := s.Loader(ctx)
				if err != nil {
					return err
				}
				defer func() { err = errors.Join(err, l.Close()) }()

				n, err := warehouse.Load(ctx, l, res.Destination, tbl, s.BatchSize)
				res.Loaded = n
				metrics.RecordRows(JobStoreToWarehouse, "loaded", n)
				if err != nil {
					return err
				}
				metrics.RecordChunks(JobStoreToWarehouse, int64(warehouse.Chunks(tbl.NumRows(), s.BatchSize)))
				log.Info("loaded", "table", res.Destination.String(), "rows", n)
				return nil
			}},
		},
	}
}

// Run executes the run for p.
func (s *StoreToWarehouse) Run(ctx context.Context, p partition.Partition) (WarehouseResult, error) {
	var res WarehouseResult
	if err := p.Validate(); err != nil {
		res.Partition = p
		return res, err
	}
	err := s.Runner(p, &res).Run(ctx)
	return res, err
}
