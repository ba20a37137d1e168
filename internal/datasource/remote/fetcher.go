// Package remote fetches a trip-data CSV (optionally gzip-compressed) and
// parses it into a table.
package remote

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"taxietl/internal/datasource"
	"taxietl/internal/etlerr"
	"taxietl/internal/logging"
	"taxietl/internal/parser/csv"
	"taxietl/internal/table"

	"github.com/klauspost/compress/gzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Fetcher downloads and parses source files.
type Fetcher struct {
	src  datasource.Source
	opts csv.Options
	log  *slog.Logger
}

// New returns a Fetcher reading through src.
func New(src datasource.Source, opts csv.Options) *Fetcher {
	return &Fetcher{src: src, opts: opts, log: logging.Component("remote")}
}

// Fetch reads the file at url into a table. Compression is detected from the
// content, not the name. Any transport, status, decompression or parse
// failure is a FetchError; nothing is retried here.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*table.Table, error) {
	op := "fetch " + url
	body, err := f.src.Open(ctx, url)
	if err != nil {
		return nil, etlerr.New(etlerr.KindFetch, op, err)
	}
	defer body.Close()

	r, err := decompress(body)
	if err != nil {
		return nil, etlerr.New(etlerr.KindFetch, op, err)
	}
	tbl, err := csv.ReadTable(ctx, r, f.opts)
	if err != nil {
		return nil, etlerr.New(etlerr.KindFetch, op, err)
	}
	if tbl.NumCols() == 0 {
		return nil, etlerr.Newf(etlerr.KindFetch, op, "source is empty (no header row)")
	}
	f.log.Info("fetched source", "url", url, "records", tbl.NumRows(), "columns", tbl.NumCols())
	return tbl, nil
}

// decompress returns a reader over the decoded bytes of r: gunzipped when r
// starts with the gzip magic, unchanged otherwise.
func decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 64<<10)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("sniff: %w", err)
	}
	if len(head) == len(gzipMagic) && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	}
	return br, nil
}
