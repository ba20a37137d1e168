// Package blocks loads named, typed connection blocks from a YAML registry.
//
// A block is either an object store (where parquet files live) or a set of
// warehouse credentials. Pipelines refer to blocks by name so secrets stay out
// of flags and code:
//
//	blocks:
//	  gcs-bucket:
//	    type: object-store
//	    kind: gcs
//	    bucket: dtc_data_lake
//	    access_key: ${GCS_HMAC_ACCESS_KEY}
//	    secret_key: ${GCS_HMAC_SECRET}
//	  gcp-credentials:
//	    type: credentials
//	    kind: bigquery
//	    service_account_file: gcp-sa.json
//
// ${VAR} references are expanded from the environment when the file is read.
// Relative file paths inside a block resolve against the registry's directory.
package blocks

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"taxietl/internal/etlerr"

	"gopkg.in/yaml.v3"
)

// Block types.
const (
	TypeObjectStore = "object-store"
	TypeCredentials = "credentials"
)

// Object store kinds.
const (
	StoreGCS   = "gcs"
	StoreS3    = "s3"
	StoreLocal = "local"
)

// Credential kinds select the warehouse backend.
const (
	CredBigQuery = "bigquery"
	CredPostgres = "postgres"
	CredMSSQL    = "mssql"
	CredMySQL    = "mysql"
	CredSQLite   = "sqlite"
	CredDuckDB   = "duckdb"
)

// DefaultGCSEndpoint is the S3-interoperable XML API host for GCS.
const DefaultGCSEndpoint = "storage.googleapis.com"

// ObjectStore describes a bucket (or local directory) holding parquet files.
type ObjectStore struct {
	Name      string
	Kind      string
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Secure    bool
	Prefix    string
	// Path is the root directory for kind "local".
	Path string
}

// Credentials authenticate against a warehouse.
type Credentials struct {
	Name               string
	Kind               string
	ServiceAccountFile string
	ServiceAccountJSON string
	Location           string
	DSN                string
}

type rawBlock struct {
	Type string `yaml:"type"`
	Kind string `yaml:"kind"`

	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    *bool  `yaml:"secure"`
	Prefix    string `yaml:"prefix"`
	Path      string `yaml:"path"`

	ServiceAccountFile string `yaml:"service_account_file"`
	ServiceAccountJSON string `yaml:"service_account_json"`
	Location           string `yaml:"location"`
	DSN                string `yaml:"dsn"`
}

type file struct {
	Blocks map[string]rawBlock `yaml:"blocks"`
}

// Registry is a parsed blocks file.
type Registry struct {
	dir    string
	blocks map[string]rawBlock
}

// Load reads and parses the registry at path. getenv resolves ${VAR}
// references; nil means os.Getenv.
func Load(path string, getenv func(string) string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, etlerr.New(etlerr.KindIO, "read blocks file", err)
	}
	r, err := Parse(data, getenv)
	if err != nil {
		return nil, err
	}
	r.dir = filepath.Dir(path)
	return r, nil
}

// envRef matches ${VAR}. A bare $ is left alone so secrets may contain it.
var envRef = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}`)

// Parse parses registry YAML. Relative paths resolve against the working
// directory.
func Parse(data []byte, getenv func(string) string) (*Registry, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	expanded := envRef.ReplaceAllStringFunc(string(data), func(ref string) string {
		return getenv(ref[2 : len(ref)-1])
	})
	var f file
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, etlerr.New(etlerr.KindIO, "parse blocks file", err)
	}
	if f.Blocks == nil {
		f.Blocks = map[string]rawBlock{}
	}
	return &Registry{dir: ".", blocks: f.Blocks}, nil
}

// Names returns block names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.blocks))
	for n := range r.blocks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ObjectStore resolves an object-store block. Any failure is
// StorageUnavailable.
func (r *Registry) ObjectStore(name string) (ObjectStore, error) {
	op := "object-store block " + name
	b, ok := r.blocks[name]
	if !ok {
		return ObjectStore{}, etlerr.Newf(etlerr.KindStorageUnavailable, op, "not found in registry")
	}
	if b.Type != TypeObjectStore {
		return ObjectStore{}, etlerr.Newf(etlerr.KindStorageUnavailable, op, "type is %q, want %q", b.Type, TypeObjectStore)
	}
	s := ObjectStore{
		Name:      name,
		Kind:      strings.ToLower(b.Kind),
		Bucket:    b.Bucket,
		Endpoint:  b.Endpoint,
		Region:    b.Region,
		AccessKey: b.AccessKey,
		SecretKey: b.SecretKey,
		Secure:    b.Secure == nil || *b.Secure,
		Prefix:    strings.Trim(b.Prefix, "/"),
		Path:      r.resolve(b.Path),
	}
	switch s.Kind {
	case StoreGCS:
		if s.Endpoint == "" {
			s.Endpoint = DefaultGCSEndpoint
		}
		fallthrough
	case StoreS3:
		if s.Bucket == "" {
			return ObjectStore{}, etlerr.Newf(etlerr.KindStorageUnavailable, op, "bucket is required")
		}
		if s.Endpoint == "" {
			return ObjectStore{}, etlerr.Newf(etlerr.KindStorageUnavailable, op, "endpoint is required for kind s3")
		}
	case StoreLocal:
		if b.Path == "" {
			return ObjectStore{}, etlerr.Newf(etlerr.KindStorageUnavailable, op, "path is required for kind local")
		}
	default:
		return ObjectStore{}, etlerr.Newf(etlerr.KindStorageUnavailable, op, "unknown kind %q", b.Kind)
	}
	return s, nil
}

// Credentials resolves a credentials block. Any failure is an AuthError.
func (r *Registry) Credentials(name string) (Credentials, error) {
	op := "credentials block " + name
	b, ok := r.blocks[name]
	if !ok {
		return Credentials{}, etlerr.Newf(etlerr.KindAuth, op, "not found in registry")
	}
	if b.Type != TypeCredentials {
		return Credentials{}, etlerr.Newf(etlerr.KindAuth, op, "type is %q, want %q", b.Type, TypeCredentials)
	}
	c := Credentials{
		Name:               name,
		Kind:               strings.ToLower(b.Kind),
		ServiceAccountFile: r.resolve(b.ServiceAccountFile),
		ServiceAccountJSON: b.ServiceAccountJSON,
		Location:           b.Location,
		DSN:                b.DSN,
	}
	switch c.Kind {
	case CredBigQuery:
		if c.ServiceAccountFile == "" && c.ServiceAccountJSON == "" {
			return Credentials{}, etlerr.Newf(etlerr.KindAuth, op, "service_account_file or service_account_json is required")
		}
	case CredPostgres, CredMSSQL, CredMySQL, CredSQLite, CredDuckDB:
		if c.DSN == "" {
			return Credentials{}, etlerr.Newf(etlerr.KindAuth, op, "dsn is required for kind %s", c.Kind)
		}
	default:
		return Credentials{}, etlerr.Newf(etlerr.KindAuth, op, "unknown kind %q", b.Kind)
	}
	return c, nil
}

// String hides secrets.
func (s ObjectStore) String() string {
	if s.Kind == StoreLocal {
		return fmt.Sprintf("%s(local:%s)", s.Name, s.Path)
	}
	return fmt.Sprintf("%s(%s://%s/%s)", s.Name, s.Kind, s.Endpoint, s.Bucket)
}

// String hides secrets.
func (c Credentials) String() string {
	return fmt.Sprintf("%s(%s)", c.Name, c.Kind)
}

func (r *Registry) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.dir, p)
}
