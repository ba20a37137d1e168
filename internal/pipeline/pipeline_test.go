package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"taxietl/internal/datasource"
	"taxietl/internal/datasource/httpds"
	"taxietl/internal/datasource/remote"
	"taxietl/internal/etlerr"
	"taxietl/internal/objectstore"
	"taxietl/internal/objectstore/memstore"
	"taxietl/internal/parquetfile"
	"taxietl/internal/parser/csv"
	"taxietl/internal/partition"
	"taxietl/internal/table"
	"taxietl/internal/warehouse"
	"taxietl/internal/warehouse/memwh"
)

const greenCSV = "VendorID,lpep_pickup_datetime,lpep_dropoff_datetime,store_and_fwd_flag,passenger_count,trip_distance\n" +
	"2,2019-12-18 15:52:30,2019-12-18 15:54:39,N,5,.00\n" +
	"2,2020-01-01 00:45:58,2020-01-01 00:56:39,N,,1.28\n" +
	"1,2020-01-01 00:41:38,2020-01-01 00:52:49,Y,1,2.7\n"

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// releaseServer serves files by path; anything else is 404.
func releaseServer(t *testing.T, files map[string][]byte) (*httptest.Server, *[]string) {
	t.Helper()
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		b, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)
	return srv, &requested
}

func newWebToStore(baseDir, baseURL string, store objectstore.Store) *WebToStore {
	client := httpds.NewClient(httpds.Config{Timeout: 5 * time.Second})
	return &WebToStore{
		Fetcher:       remote.New(datasource.NewRouter(client), csv.Options{}),
		Store:         StaticStore(store),
		BaseDir:       baseDir,
		SourceBaseURL: baseURL + "/release",
	}
}

var green = partition.Partition{Category: "green", Year: 2020, Month: 1}

func TestWebToStore_Green(t *testing.T) {
	t.Parallel()

	srv, requested := releaseServer(t, map[string][]byte{
		"/release/green/green_tripdata_2020-01.csv.gz": gz(t, greenCSV),
	})
	base := t.TempDir()
	store := memstore.New()

	res, err := newWebToStore(base, srv.URL, store).Run(context.Background(), green)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(*requested) != 1 || (*requested)[0] != "/release/green/green_tripdata_2020-01.csv.gz" {
		t.Fatalf("requested %v", *requested)
	}
	wantLocal := filepath.Join(base, "datasets", "green_taxi", "green_tripdata_2020-01.parquet")
	if res.LocalPath != wantLocal || res.Rows != 3 {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(wantLocal); err != nil {
		t.Fatalf("local file: %v", err)
	}

	obj, ok := store.Get("green_taxi/green_tripdata_2020-01.parquet")
	if !ok {
		t.Fatalf("object not uploaded; keys=%v", store.Keys())
	}
	if obj.Meta[objectstore.MetaRows] != "3" || obj.Meta[objectstore.MetaChecksum] != res.Manifest.Checksum {
		t.Fatalf("meta = %v", obj.Meta)
	}

	got, err := parquetfile.Read(wantLocal)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	pc, _ := got.Column("passenger_count")
	if pc.NullCount() != 0 || pc.Values[1] != int64(0) {
		t.Fatalf("passenger_count = %#v", pc.Values)
	}
	pickup, _ := got.Column("lpep_pickup_datetime")
	if pickup.Kind != table.KindTimestamp {
		t.Fatalf("pickup kind = %v", pickup.Kind)
	}
}

func TestWebToStore_RerunOverwrites(t *testing.T) {
	t.Parallel()

	srv, _ := releaseServer(t, map[string][]byte{
		"/release/green/green_tripdata_2020-01.csv.gz": gz(t, greenCSV),
	})
	store := memstore.New()
	w := newWebToStore(t.TempDir(), srv.URL, store)
	for range 2 {
		if _, err := w.Run(context.Background(), green); err != nil {
			t.Fatal(err)
		}
	}
	if keys := store.Keys(); len(keys) != 1 {
		t.Fatalf("keys = %v, want a single overwritten object", keys)
	}
}

func TestWebToStore_FetchFailureStopsRun(t *testing.T) {
	t.Parallel()

	srv, _ := releaseServer(t, nil)
	base := t.TempDir()
	store := memstore.New()

	_, err := newWebToStore(base, srv.URL, store).Run(context.Background(), green)
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StateFetching || se.Step != "fetch" {
		t.Fatalf("want fetching StageError, got %v", err)
	}
	if !errors.Is(err, etlerr.ErrFetch) {
		t.Fatalf("want FetchError, got %v", err)
	}
	if !strings.Contains(err.Error(), "fetching") {
		t.Fatalf("message should name the stage: %q", err)
	}
	if _, statErr := os.Stat(green.LocalPath(base)); !os.IsNotExist(statErr) {
		t.Fatalf("no local file expected, stat err = %v", statErr)
	}
	if len(store.Keys()) != 0 {
		t.Fatal("nothing should be uploaded")
	}
}

func TestWebToStore_EmptySourceFailsFetching(t *testing.T) {
	t.Parallel()

	for name, body := range map[string][]byte{"plain": {}, "gzip": gz(t, "")} {
		srv, _ := releaseServer(t, map[string][]byte{
			"/release/green/green_tripdata_2020-01.csv.gz": body,
		})
		base := t.TempDir()
		store := memstore.New()

		_, err := newWebToStore(base, srv.URL, store).Run(context.Background(), green)
		var se *StageError
		if !errors.As(err, &se) || se.Stage != StateFetching || !errors.Is(err, etlerr.ErrFetch) {
			t.Fatalf("%s: want fetching FetchError, got %v", name, err)
		}
		if matches, _ := filepath.Glob(green.LocalPath(base) + "*"); len(matches) != 0 {
			t.Fatalf("%s: files left behind: %v", name, matches)
		}
		if len(store.Keys()) != 0 {
			t.Fatalf("%s: nothing should be uploaded", name)
		}
	}
}

func TestRun_InvalidPartitionRunsNoStep(t *testing.T) {
	t.Parallel()

	bad := partition.Partition{Category: "green", Year: 2020, Month: 13}
	srv, requested := releaseServer(t, nil)
	store := memstore.New()

	if _, err := newWebToStore(t.TempDir(), srv.URL, store).Run(context.Background(), bad); err == nil {
		t.Fatal("web-to-store: expected an error for month 13")
	}
	if len(*requested) != 0 || len(store.Keys()) != 0 {
		t.Fatalf("web-to-store ran a step: requests %v, keys %v", *requested, store.Keys())
	}

	wh := memwh.New()
	s := &StoreToWarehouse{
		Store:   StaticStore(store),
		Loader:  StaticLoader(wh),
		BaseDir: t.TempDir(),
		Dataset: "trips_data_all",
	}
	_, err := s.Run(context.Background(), partition.Partition{Category: "../green", Year: 2020, Month: 1})
	if err == nil {
		t.Fatal("store-to-warehouse: expected an error for a bad category")
	}
	var se *StageError
	if errors.As(err, &se) || wh.Calls() != 0 {
		t.Fatalf("store-to-warehouse ran a step: err %v, calls %d", err, wh.Calls())
	}
}

func TestWebToStore_UploadFailureKeepsLocalFile(t *testing.T) {
	t.Parallel()

	srv, _ := releaseServer(t, map[string][]byte{
		"/release/green/green_tripdata_2020-01.csv.gz": gz(t, greenCSV),
	})
	base := t.TempDir()
	w := newWebToStore(base, srv.URL, nil)
	w.Store = func(context.Context) (objectstore.Store, error) {
		return nil, etlerr.Newf(etlerr.KindStorageUnavailable, "blocks", "no block %q", "gcs-bucket")
	}

	_, err := w.Run(context.Background(), green)
	if !errors.Is(err, etlerr.ErrStorageUnavailable) {
		t.Fatalf("want StorageUnavailableError, got %v", err)
	}
	if _, statErr := os.Stat(green.LocalPath(base)); statErr != nil {
		t.Fatalf("local file should remain after a failed upload: %v", statErr)
	}
}

// putParquet writes tbl as the partition's object in store.
func putParquet(t *testing.T, store *memstore.Store, p partition.Partition, tbl *table.Table) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.parquet")
	if _, err := parquetfile.Write(path, tbl, parquetfile.Options{}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	store.Put(p.ObjectKey(), b, nil)
}

func withNulls(t *testing.T, n int) *table.Table {
	t.Helper()
	ids := make([]any, n)
	pcs := make([]any, n)
	for i := range ids {
		ids[i] = int64(i)
		if i%2 == 0 {
			pcs[i] = int64(1)
		}
	}
	tbl := table.New()
	if err := tbl.AddColumn("VendorID", table.KindInt64, ids); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddColumn("passenger_count", table.KindInt64, pcs); err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestStoreToWarehouse_FillsAndAppends(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	putParquet(t, store, green, withNulls(t, 7))
	wh := memwh.New()
	s := &StoreToWarehouse{
		Store:     StaticStore(store),
		Loader:    StaticLoader(wh),
		BaseDir:   t.TempDir(),
		Project:   "p",
		Dataset:   "trips_data_all",
		BatchSize: 3,
	}

	res, err := s.Run(context.Background(), green)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.NullsBefore != 3 || res.NullsAfter != 0 || res.Loaded != 7 {
		t.Fatalf("result = %+v", res)
	}
	dest := warehouse.TableRef{Project: "p", Dataset: "trips_data_all", Table: "green_taxi"}
	if res.Destination != dest {
		t.Fatalf("destination = %+v", res.Destination)
	}
	got, ok := wh.Table(dest)
	if !ok {
		t.Fatal("nothing loaded")
	}
	if len(got.Chunks) != 3 {
		t.Fatalf("chunks = %v, want 3", got.Chunks)
	}
	for i, r := range got.Rows {
		if r[1] == nil {
			t.Fatalf("row %d still has a null passenger_count", i)
		}
	}

	// Append-only: a second run duplicates the rows.
	wh.Reopen()
	if _, err := s.Run(context.Background(), green); err != nil {
		t.Fatal(err)
	}
	if got, _ := wh.Table(dest); len(got.Rows) != 14 {
		t.Fatalf("rows after rerun = %d, want 14", len(got.Rows))
	}
}

func TestStoreToWarehouse_MissingObject(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	wh := memwh.New()
	s := &StoreToWarehouse{
		Store:   StaticStore(memstore.New()),
		Loader:  StaticLoader(wh),
		BaseDir: base,
		Dataset: "trips_data_all",
	}
	_, err := s.Run(context.Background(), green)
	if !errors.Is(err, etlerr.ErrStorageUnavailable) {
		t.Fatalf("want StorageUnavailableError, got %v", err)
	}
	if _, statErr := os.Stat(green.LocalPath(base)); !os.IsNotExist(statErr) {
		t.Fatalf("no local file expected, stat err = %v", statErr)
	}
	if wh.Calls() != 0 {
		t.Fatal("loading must not start")
	}
}

func TestStoreToWarehouse_AuthFailureIsLoadingStage(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	putParquet(t, store, green, withNulls(t, 2))
	s := &StoreToWarehouse{
		Store:   StaticStore(store),
		BaseDir: t.TempDir(),
		Dataset: "trips_data_all",
		Loader: func(context.Context) (warehouse.Loader, error) {
			return nil, etlerr.Newf(etlerr.KindAuth, "blocks", "credentials block %q not found", "gcp-credentials")
		},
	}
	_, err := s.Run(context.Background(), green)
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StateLoading || !errors.Is(err, etlerr.ErrAuth) {
		t.Fatalf("want loading AuthError, got %v", err)
	}
}

func TestStoreToWarehouse_ChunkFailureClosesLoader(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	putParquet(t, store, green, withNulls(t, 5))
	wh := memwh.New()
	wh.FailOnCall, wh.Err = 2, errors.New("schema mismatch")
	s := &StoreToWarehouse{
		Store:     StaticStore(store),
		Loader:    StaticLoader(wh),
		BaseDir:   t.TempDir(),
		Dataset:   "trips_data_all",
		BatchSize: 2,
	}
	res, err := s.Run(context.Background(), green)
	if !errors.Is(err, etlerr.ErrLoad) {
		t.Fatalf("want LoadError, got %v", err)
	}
	if res.Loaded != 2 || wh.Calls() != 2 {
		t.Fatalf("loaded=%d calls=%d", res.Loaded, wh.Calls())
	}
	if _, err := wh.LoadRows(context.Background(), res.Destination, nil, nil); err == nil {
		t.Fatal("loader should be closed after the step")
	}
}
