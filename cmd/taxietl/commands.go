package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"taxietl/internal/config"
	"taxietl/internal/datasource"
	"taxietl/internal/datasource/httpds"
	"taxietl/internal/datasource/remote"
	"taxietl/internal/inspect"
	"taxietl/internal/logging"
	"taxietl/internal/metrics"
	"taxietl/internal/metrics/datadog"
	"taxietl/internal/metrics/prompush"
	"taxietl/internal/parquetfile"
	"taxietl/internal/parser/csv"
	"taxietl/internal/partition"
	"taxietl/internal/pipeline"

	// Every backend is compiled in; the blocks file picks one at run time.
	_ "taxietl/internal/objectstore/all"
	_ "taxietl/internal/warehouse/all"
)

type app struct {
	getenv func(string) string
	cfg    config.Config
	envErr error

	closeMetrics func() error
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	a := &app{getenv: getenv}
	a.cfg, a.envErr = config.FromEnv(getenv)

	root := &cobra.Command{
		Use:   "taxietl",
		Short: "Load NYC taxi trip files into object storage and the warehouse",
		Long: `taxietl runs one (color, year, month) partition through a pipeline:

  web-to-store        download the monthly CSV, normalize it, write parquet
                      locally and upload it to the object store
  store-to-warehouse  download that parquet file, fill missing passenger
                      counts and append the rows to the warehouse

Blocks (object stores and credentials) are defined in a YAML file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.envErr != nil {
				return a.envErr
			}
			level, err := logging.ParseLevel(a.cfg.LogLevel)
			if err != nil {
				return err
			}
			logging.Init(level, a.cfg.LogFormat == "json", cmd.ErrOrStderr())
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	a.cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(a.webToStoreCmd(), a.storeToWarehouseCmd(), a.validateCmd(), a.inspectCmd())
	return root
}

type partitionFlags struct {
	color string
	year  int
	month int
}

func (f *partitionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.color, "color", partition.DefaultCategory, "taxi category: green, yellow, fhv, ...")
	cmd.Flags().IntVar(&f.year, "year", partition.DefaultYear, "partition year")
	cmd.Flags().IntVar(&f.month, "month", partition.DefaultMonth, "partition month (1-12)")
}

func (f *partitionFlags) partition() (partition.Partition, error) {
	return partition.New(f.color, f.year, f.month)
}

func (a *app) webToStoreCmd() *cobra.Command {
	var pf partitionFlags
	cmd := &cobra.Command{
		Use:   "web-to-store",
		Short: "Fetch a monthly CSV, normalize it and upload it as parquet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := pf.partition()
			if err != nil {
				return err
			}
			if err := a.preflight(cmd.ErrOrStderr()); err != nil {
				return err
			}
			if err := a.startMetrics(pipeline.JobWebToStore); err != nil {
				return err
			}
			defer a.stopMetrics()

			w := &pipeline.WebToStore{
				Fetcher:       remote.New(datasource.NewRouter(a.httpClient()), csv.Options{}),
				Store:         pipeline.BlockStore(a.registry(), a.cfg.StorageBlock),
				BaseDir:       a.cfg.BaseDir,
				SourceBaseURL: a.cfg.SourceBaseURL,
				Parquet:       parquetfile.Options{Compression: a.cfg.Compression},
			}
			res, err := w.Run(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows written to %s and uploaded to %s\n",
				p, res.Rows, res.LocalPath, res.ObjectKey)
			return nil
		},
	}
	pf.bind(cmd)
	return cmd
}

func (a *app) storeToWarehouseCmd() *cobra.Command {
	var pf partitionFlags
	cmd := &cobra.Command{
		Use:   "store-to-warehouse",
		Short: "Download a partition's parquet file and append it to the warehouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := pf.partition()
			if err != nil {
				return err
			}
			if err := a.preflight(cmd.ErrOrStderr()); err != nil {
				return err
			}
			if err := a.startMetrics(pipeline.JobStoreToWarehouse); err != nil {
				return err
			}
			defer a.stopMetrics()

			reg := a.registry()
			s := &pipeline.StoreToWarehouse{
				Store:     pipeline.BlockStore(reg, a.cfg.StorageBlock),
				Loader:    pipeline.BlockLoader(reg, a.cfg.CredentialsBlock, a.cfg.Project),
				BaseDir:   a.cfg.BaseDir,
				Project:   a.cfg.Project,
				Dataset:   a.cfg.Dataset,
				BatchSize: a.cfg.BatchSize,
			}
			res, err := s.Run(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows appended to %s (missing passenger count %d -> %d)\n",
				p, res.Loaded, res.Destination, res.NullsBefore, res.NullsAfter)
			return nil
		},
	}
	pf.bind(cmd)
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var (
		pf    partitionFlags
		checkSource bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and both blocks without running a pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			issues := config.Validate(a.cfg)
			printIssues(out, issues)
			failed := config.HasErrors(issues)

			reg, err := a.registry()()
			if err != nil {
				fmt.Fprintf(out, "error: blocks-file: %v\n", err)
				return errors.New("configuration is invalid")
			}
			if blk, err := reg.ObjectStore(a.cfg.StorageBlock); err != nil {
				fmt.Fprintf(out, "error: storage-block: %v\n", err)
				failed = true
			} else {
				fmt.Fprintf(out, "storage block: %s\n", blk)
			}
			if cred, err := reg.Credentials(a.cfg.CredentialsBlock); err != nil {
				fmt.Fprintf(out, "error: credentials-block: %v\n", err)
				failed = true
			} else {
				fmt.Fprintf(out, "credentials block: %s\n", cred)
			}

			if checkSource {
				p, err := pf.partition()
				if err != nil {
					return err
				}
				url := p.SourceURL(a.cfg.SourceBaseURL)
				head, err := datasource.NewRouter(a.httpClient()).FetchFirstBytes(cmd.Context(), url, 2)
				switch {
				case err != nil:
					fmt.Fprintf(out, "error: source %s: %v\n", url, err)
					failed = true
				case bytes.Equal(head, []byte{0x1f, 0x8b}):
					fmt.Fprintf(out, "source: %s (gzip)\n", url)
				default:
					fmt.Fprintf(out, "source: %s (not gzip-compressed)\n", url)
				}
			}

			if failed {
				return errors.New("configuration is invalid")
			}
			fmt.Fprintln(out, "configuration is valid")
			return nil
		},
	}
	pf.bind(cmd)
	cmd.Flags().BoolVar(&checkSource, "check-source", false, "also request the first bytes of the partition's source URL")
	return cmd
}

func (a *app) inspectCmd() *cobra.Command {
	var (
		pf       partitionFlags
		maxBytes int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Sample the head of a partition's source file and report its columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := pf.partition()
			if err != nil {
				return err
			}
			src := datasource.NewRouter(a.httpClient())
			rep, err := inspect.Source(cmd.Context(), src, p.SourceURL(a.cfg.SourceBaseURL), maxBytes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d bytes fetched (gzip=%v), %d rows sampled\n", rep.URL, rep.FetchedBytes, rep.Gzip, rep.Rows)
			for _, c := range rep.Columns {
				fmt.Fprintf(out, "  %-24s %-9s nulls=%-6d e.g. %s\n", c.Name, c.Kind, c.Nulls, c.Example)
			}
			for _, w := range rep.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		},
	}
	pf.bind(cmd)
	cmd.Flags().IntVar(&maxBytes, "max-bytes", inspect.DefaultMaxBytes, "bytes of the compressed file to sample")
	return cmd
}

// preflight prints config issues and refuses to run on errors.
func (a *app) preflight(w io.Writer) error {
	issues := config.Validate(a.cfg)
	printIssues(w, issues)
	if config.HasErrors(issues) {
		return errors.New("configuration is invalid; run `taxietl validate` for details")
	}
	return nil
}

func printIssues(w io.Writer, issues []config.Issue) {
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
}

func (a *app) registry() pipeline.Registry {
	return pipeline.LazyRegistry(a.cfg.BlocksFile, a.getenv)
}

func (a *app) httpClient() *httpds.Client {
	return httpds.NewClient(httpds.Config{
		Timeout:    a.cfg.HTTPTimeout,
		MaxRetries: a.cfg.HTTPRetries,
		UserAgent:  "taxietl",
	})
}

// startMetrics installs the configured backend. An unreachable backend is
// not fatal: the run continues with the no-op backend.
func (a *app) startMetrics(job string) error {
	log := logging.Component("metrics")
	switch a.cfg.MetricsBackend {
	case "", "none":
		log.Debug("metrics disabled")
		return nil
	case "pushgateway":
		b, err := prompush.NewBackend(job, a.cfg.PushgatewayURL)
		if err != nil {
			log.Warn("pushgateway backend unavailable; metrics disabled", "err", err)
			return nil
		}
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr: a.cfg.DatadogAddr,
			Tags: []string{"job:" + job},
		})
		if err != nil {
			log.Warn("datadog backend unavailable; metrics disabled", "err", err)
			return nil
		}
		metrics.SetBackend(b)
		a.closeMetrics = b.Close
	default:
		return fmt.Errorf("unknown metrics backend %q", a.cfg.MetricsBackend)
	}
	log.Info("metrics enabled", slog.String("backend", a.cfg.MetricsBackend), slog.String("job", job))
	return nil
}

func (a *app) stopMetrics() {
	log := logging.Component("metrics")
	if err := metrics.Flush(); err != nil {
		log.Warn("flush failed", "err", err)
	}
	if a.closeMetrics != nil {
		if err := a.closeMetrics(); err != nil {
			log.Warn("close failed", "err", err)
		}
	}
}
