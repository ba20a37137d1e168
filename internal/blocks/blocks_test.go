package blocks

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"taxietl/internal/etlerr"
)

const registryYAML = `
blocks:
  gcs-bucket:
    type: object-store
    kind: gcs
    bucket: dtc_data_lake
    access_key: ${HMAC_KEY}
    secret_key: ${HMAC_SECRET}
    prefix: /raw/
  minio:
    type: object-store
    kind: s3
    bucket: trips
    endpoint: localhost:9000
    secure: false
  lake:
    type: object-store
    kind: local
    path: lake
  gcp-credentials:
    type: credentials
    kind: bigquery
    service_account_file: sa.json
    location: US
  pg:
    type: credentials
    kind: postgres
    dsn: postgres://etl@localhost/trips
  broken-store:
    type: object-store
    kind: gcs
  broken-creds:
    type: credentials
    kind: bigquery
  weird:
    type: credentials
    kind: oracle
    dsn: x
`

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "blocks.yaml")
	if err := os.WriteFile(path, []byte(registryYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := Load(path, env(map[string]string{"HMAC_KEY": "GOOG1", "HMAC_SECRET": "s3cr3t"}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return r
}

func TestObjectStore(t *testing.T) {
	t.Parallel()

	r := loadTestRegistry(t)

	gcs, err := r.ObjectStore("gcs-bucket")
	if err != nil {
		t.Fatalf("gcs-bucket: %v", err)
	}
	want := ObjectStore{
		Name: "gcs-bucket", Kind: StoreGCS, Bucket: "dtc_data_lake", Endpoint: DefaultGCSEndpoint,
		AccessKey: "GOOG1", SecretKey: "s3cr3t", Secure: true, Prefix: "raw",
	}
	if !reflect.DeepEqual(gcs, want) {
		t.Fatalf("gcs-bucket = %+v\nwant %+v", gcs, want)
	}

	minio, err := r.ObjectStore("minio")
	if err != nil || minio.Secure || minio.Endpoint != "localhost:9000" {
		t.Fatalf("minio = %+v, err=%v", minio, err)
	}

	lake, err := r.ObjectStore("lake")
	if err != nil || !filepath.IsAbs(lake.Path) || filepath.Base(lake.Path) != "lake" {
		t.Fatalf("lake = %+v, err=%v", lake, err)
	}
	if got := gcs.String(); got != "gcs-bucket(gcs://storage.googleapis.com/dtc_data_lake)" {
		t.Errorf("String() = %q", got)
	}
}

func TestObjectStore_FailuresAreStorageUnavailable(t *testing.T) {
	t.Parallel()

	r := loadTestRegistry(t)
	for _, name := range []string{"missing", "broken-store", "gcp-credentials"} {
		if _, err := r.ObjectStore(name); !errors.Is(err, etlerr.ErrStorageUnavailable) {
			t.Errorf("%s: err = %v, want StorageUnavailable", name, err)
		}
	}
}

func TestCredentials(t *testing.T) {
	t.Parallel()

	r := loadTestRegistry(t)

	bq, err := r.Credentials("gcp-credentials")
	if err != nil {
		t.Fatalf("gcp-credentials: %v", err)
	}
	if bq.Kind != CredBigQuery || bq.Location != "US" || filepath.Base(bq.ServiceAccountFile) != "sa.json" || !filepath.IsAbs(bq.ServiceAccountFile) {
		t.Fatalf("gcp-credentials = %+v", bq)
	}
	pg, err := r.Credentials("pg")
	if err != nil || pg.DSN != "postgres://etl@localhost/trips" {
		t.Fatalf("pg = %+v err=%v", pg, err)
	}
	if pg.String() != "pg(postgres)" {
		t.Errorf("String() = %q", pg.String())
	}
}

func TestCredentials_FailuresAreAuth(t *testing.T) {
	t.Parallel()

	r := loadTestRegistry(t)
	for _, name := range []string{"missing", "broken-creds", "weird", "gcs-bucket"} {
		if _, err := r.Credentials(name); !errors.Is(err, etlerr.ErrAuth) {
			t.Errorf("%s: err = %v, want AuthError", name, err)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); !errors.Is(err, etlerr.ErrIO) {
		t.Fatalf("missing file: err = %v", err)
	}
	if _, err := Parse([]byte("blocks: [1, 2"), nil); !errors.Is(err, etlerr.ErrIO) {
		t.Fatalf("bad yaml: err = %v", err)
	}
	r, err := Parse([]byte(""), nil)
	if err != nil || len(r.Names()) != 0 {
		t.Fatalf("empty: r=%v err=%v", r, err)
	}
}

func TestParse_OnlyBracedReferencesExpand(t *testing.T) {
	t.Parallel()

	yml := "blocks:\n" +
		"  pg:\n" +
		"    type: credentials\n" +
		"    kind: postgres\n" +
		"    dsn: postgres://u:pa$word@h/${DB}?x=$HOME\n"
	r, err := Parse([]byte(yml), env(map[string]string{"DB": "trips", "HOME": "/root"}))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, err := r.Credentials("pg")
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if want := "postgres://u:pa$word@h/trips?x=$HOME"; c.DSN != want {
		t.Fatalf("dsn = %q, want %q", c.DSN, want)
	}
}

func TestNames_Sorted(t *testing.T) {
	t.Parallel()

	r, err := Parse([]byte("blocks:\n  b: {type: credentials}\n  a: {type: credentials}\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Names = %v", got)
	}
}
