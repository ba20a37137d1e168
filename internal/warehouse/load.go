package warehouse

import (
	"context"
	"fmt"
	"time"

	"taxietl/internal/etlerr"
	"taxietl/internal/logging"
	"taxietl/internal/table"
)

// Load appends t to dest in chunks of batchSize rows, in row order, one
// LoadRows call per chunk. The first failing chunk aborts the load; chunks
// already written stay written. It returns the number of rows loaded.
//
// The rows slice passed to LoadRows is reused between chunks; loaders must
// not retain it.
func Load(ctx context.Context, l Loader, dest TableRef, t *table.Table, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	log := logging.Component("warehouse").With("table", dest.String())

	n := t.NumRows()
	if n == 0 {
		log.Info("nothing to load")
		return 0, nil
	}
	schema := t.Schema()
	chunks := Chunks(n, batchSize)

	var (
		total    int64
		start    = time.Now()
		lastTick = start
		chunk    = 0
		rows     = make([][]any, 0, min(batchSize, n))
	)
	for lo := 0; lo < n; lo += batchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		hi := min(lo+batchSize, n)
		rows = rows[:0]
		for i := lo; i < hi; i++ {
			rows = append(rows, t.Row(i, nil))
		}
		chunk++

		chunkStart := time.Now()
		inserted, err := l.LoadRows(ctx, dest, schema, rows)
		if err != nil {
			log.Error("chunk failed", "chunk", chunk, "of", chunks, "rows", len(rows), "err", err)
			return total, etlerr.New(etlerr.KindLoad, "warehouse.load",
				fmt.Errorf("%s chunk %d/%d: %w", dest, chunk, chunks, err))
		}
		total += inserted

		now := time.Now()
		took := now.Sub(chunkStart).Seconds()
		var rps float64
		if took > 0 {
			rps = float64(inserted) / took
		}
		log.Info(fmt.Sprintf("chunk #%d/%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s since_last=%s",
			chunk, chunks, rps, inserted, total,
			now.Sub(start).Truncate(time.Millisecond), now.Sub(lastTick).Truncate(time.Millisecond)))
		lastTick = now
	}
	return total, nil
}

// Chunks reports how many LoadRows calls Load makes for rows rows.
func Chunks(rows, batchSize int) int {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if rows <= 0 {
		return 0
	}
	return (rows + batchSize - 1) / batchSize
}
