// Package config holds the runtime configuration shared by both pipelines.
//
// Values come from three layers, lowest precedence first:
//
//  1. built-in defaults (Default),
//  2. environment variables (FromEnv), typically after a .env file has been
//     loaded into the process environment,
//  3. command-line flags (BindFlags), whose defaults are the layer below.
//
// The resulting Config is passed explicitly to every component; nothing reads
// the environment after startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// Config is the full set of knobs.
type Config struct {
	// BaseDir is the root under which datasets/<category>/... files live.
	BaseDir string
	// SourceBaseURL is the release URL the trip files are fetched from.
	SourceBaseURL string

	// BlocksFile is the YAML registry of storage and credentials blocks.
	BlocksFile       string
	StorageBlock     string
	CredentialsBlock string

	// Project and Dataset name the warehouse destination.
	Project   string
	Dataset   string
	BatchSize int

	// Compression of materialized parquet files.
	Compression string

	HTTPTimeout time.Duration
	HTTPRetries int

	MetricsBackend string
	PushgatewayURL string
	DatadogAddr    string

	LogLevel  string
	LogFormat string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseDir:          ".",
		SourceBaseURL:    "https://github.com/DataTalksClub/nyc-tlc-data/releases/download",
		BlocksFile:       "blocks.yaml",
		StorageBlock:     "gcs-bucket",
		CredentialsBlock: "gcp-credentials",
		Project:          "chrome-encoder-375816",
		Dataset:          "trips_data_all",
		BatchSize:        100_000,
		Compression:      "gzip",
		HTTPTimeout:      10 * time.Minute,
		HTTPRetries:      0,
		MetricsBackend:   "none",
		PushgatewayURL:   "http://localhost:9091",
		DatadogAddr:      "127.0.0.1:8125",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// FromEnv overlays environment values read through getenv onto Default.
// Empty variables are ignored.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("BASE_DIR", &c.BaseDir)
	str("SOURCE_BASE_URL", &c.SourceBaseURL)
	str("BLOCKS_FILE", &c.BlocksFile)
	str("STORAGE_BLOCK", &c.StorageBlock)
	str("CREDENTIALS_BLOCK", &c.CredentialsBlock)
	str("WAREHOUSE_PROJECT", &c.Project)
	str("WAREHOUSE_DATASET", &c.Dataset)
	str("PARQUET_COMPRESSION", &c.Compression)
	str("METRICS_BACKEND", &c.MetricsBackend)
	str("PUSHGATEWAY_URL", &c.PushgatewayURL)
	str("DATADOG_ADDR", &c.DatadogAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if v := getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("config: BATCH_SIZE=%q: %w", v, err)
		}
		c.BatchSize = n
	}
	if v := getenv("HTTP_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("config: HTTP_RETRIES=%q: %w", v, err)
		}
		c.HTTPRetries = n
	}
	if v := getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("config: HTTP_TIMEOUT=%q: %w", v, err)
		}
		c.HTTPTimeout = d
	}
	return c, nil
}

// BindFlags registers a flag for every field on fs, using the current values
// of c as defaults. Parsing fs writes straight into c.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.BaseDir, "base-dir", c.BaseDir, "root directory for local dataset files")
	fs.StringVar(&c.SourceBaseURL, "source-base-url", c.SourceBaseURL, "base URL of the trip-data releases")
	fs.StringVar(&c.BlocksFile, "blocks-file", c.BlocksFile, "YAML file defining storage and credentials blocks")
	fs.StringVar(&c.StorageBlock, "storage-block", c.StorageBlock, "object-store block name")
	fs.StringVar(&c.CredentialsBlock, "credentials-block", c.CredentialsBlock, "warehouse credentials block name")
	fs.StringVar(&c.Project, "project", c.Project, "warehouse project")
	fs.StringVar(&c.Dataset, "dataset", c.Dataset, "warehouse dataset")
	fs.IntVar(&c.BatchSize, "batch-size", c.BatchSize, "rows per warehouse append")
	fs.StringVar(&c.Compression, "compression", c.Compression, "parquet compression: gzip, snappy, zstd or none")
	fs.DurationVar(&c.HTTPTimeout, "http-timeout", c.HTTPTimeout, "timeout for a whole source download")
	fs.IntVar(&c.HTTPRetries, "http-retries", c.HTTPRetries, "extra attempts for transient download failures")
	fs.StringVar(&c.MetricsBackend, "metrics-backend", c.MetricsBackend, "metrics backend: none, pushgateway or datadog")
	fs.StringVar(&c.PushgatewayURL, "pushgateway-url", c.PushgatewayURL, "Prometheus Pushgateway base URL")
	fs.StringVar(&c.DatadogAddr, "datadog-addr", c.DatadogAddr, "DogStatsD address")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
}

// LoadFromArgs resolves a Config from getenv and args. fs receives the flag
// definitions; pass a fresh set per call.
func LoadFromArgs(fs *pflag.FlagSet, getenv func(string) string, args []string) (Config, error) {
	c, err := FromEnv(getenv)
	if err != nil {
		return Config{}, err
	}
	c.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Load is LoadFromArgs over the process environment and os.Args.
func Load() (Config, error) {
	return LoadFromArgs(pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError), os.Getenv, os.Args[1:])
}
