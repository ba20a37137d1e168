// Package bigquery appends rows to BigQuery with load jobs.
//
// Each LoadRows call uploads its rows as newline-delimited JSON in a single
// request and waits for the job to finish. Jobs use WRITE_APPEND and
// CREATE_IF_NEEDED, so a missing table is created from the row schema and an
// existing one only ever grows. A missing dataset is created too.
package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	bq "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"taxietl/internal/blocks"
	"taxietl/internal/etlerr"
	"taxietl/internal/logging"
	"taxietl/internal/table"
	"taxietl/internal/warehouse"
)

func init() {
	warehouse.Register(blocks.CredBigQuery, func(ctx context.Context, cred blocks.Credentials, project string) (warehouse.Loader, error) {
		opts := []option.ClientOption{option.WithScopes(bq.BigqueryScope)}
		switch {
		case cred.ServiceAccountJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cred.ServiceAccountJSON)))
		case cred.ServiceAccountFile != "":
			opts = append(opts, option.WithCredentialsFile(cred.ServiceAccountFile))
		}
		return New(ctx, Config{Project: project, Location: cred.Location}, opts...)
	})
}

// Config configures a Loader.
type Config struct {
	// Project runs the load jobs and is the default destination project.
	Project string
	// Location of jobs and new datasets, e.g. "US". Empty lets BigQuery
	// decide.
	Location string
	// PollInterval between job status checks. Zero means 1s.
	PollInterval time.Duration
}

// Loader is a BigQuery warehouse.Loader.
type Loader struct {
	svc *bq.Service
	cfg Config

	mu       sync.Mutex
	datasets map[string]bool

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Loader. opts carry credentials (or an endpoint and HTTP
// client in tests).
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Loader, error) {
	if cfg.Project == "" {
		return nil, errors.New("bigquery: project must not be empty")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	svc, err := bq.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: new service: %w", err)
	}
	return &Loader{svc: svc, cfg: cfg, datasets: map[string]bool{}, sleep: sleepContext}, nil
}

// LoadRows implements warehouse.Loader.
func (l *Loader) LoadRows(ctx context.Context, dest warehouse.TableRef, schema table.Schema, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if dest.Project == "" {
		dest.Project = l.cfg.Project
	}
	fields, err := tableSchema(schema)
	if err != nil {
		return 0, err
	}
	if err := l.ensureDataset(ctx, dest); err != nil {
		return 0, err
	}
	body, err := encodeNDJSON(schema, rows)
	if err != nil {
		return 0, err
	}

	job := &bq.Job{
		JobReference: &bq.JobReference{ProjectId: l.cfg.Project, Location: l.cfg.Location},
		Configuration: &bq.JobConfiguration{
			Load: &bq.JobConfigurationLoad{
				DestinationTable: &bq.TableReference{
					ProjectId: dest.Project,
					DatasetId: dest.Dataset,
					TableId:   dest.Table,
				},
				SourceFormat:      "NEWLINE_DELIMITED_JSON",
				WriteDisposition:  "WRITE_APPEND",
				CreateDisposition: "CREATE_IF_NEEDED",
				Schema:            &bq.TableSchema{Fields: fields},
			},
		},
	}
	started, err := l.svc.Jobs.Insert(l.cfg.Project, job).
		Media(bytes.NewReader(body), googleapi.ContentType("application/octet-stream"), googleapi.ChunkSize(0)).
		Context(ctx).
		Do()
	if err != nil {
		return 0, classify("bigquery.insert_job", fmt.Errorf("%s: %w", dest, err))
	}
	done, err := l.wait(ctx, started)
	if err != nil {
		return 0, err
	}
	if st := done.Statistics; st != nil && st.Load != nil {
		return st.Load.OutputRows, nil
	}
	return int64(len(rows)), nil
}

// Close is a no-op; the service holds no connections of its own.
func (l *Loader) Close() error { return nil }

func (l *Loader) wait(ctx context.Context, job *bq.Job) (*bq.Job, error) {
	log := logging.Component("warehouse")
	for {
		if job.Status != nil && job.Status.State == "DONE" {
			if job.Status.ErrorResult != nil {
				return nil, jobError(job)
			}
			return job, nil
		}
		if err := l.sleep(ctx, l.cfg.PollInterval); err != nil {
			return nil, err
		}
		ref := job.JobReference
		if ref == nil {
			return nil, errors.New("bigquery: job has no reference")
		}
		call := l.svc.Jobs.Get(ref.ProjectId, ref.JobId).Context(ctx)
		if ref.Location != "" {
			call = call.Location(ref.Location)
		}
		next, err := call.Do()
		if err != nil {
			return nil, classify("bigquery.get_job", fmt.Errorf("job %s: %w", ref.JobId, err))
		}
		job = next
		if job.Status != nil {
			log.Debug("load job", "job_id", ref.JobId, "state", job.Status.State)
		}
	}
}

func (l *Loader) ensureDataset(ctx context.Context, dest warehouse.TableRef) error {
	key := dest.Project + "." + dest.Dataset
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.datasets[key] {
		return nil
	}
	_, err := l.svc.Datasets.Get(dest.Project, dest.Dataset).Context(ctx).Do()
	if isStatus(err, http.StatusNotFound) {
		ds := &bq.Dataset{
			DatasetReference: &bq.DatasetReference{ProjectId: dest.Project, DatasetId: dest.Dataset},
			Location:         l.cfg.Location,
		}
		_, err = l.svc.Datasets.Insert(dest.Project, ds).Context(ctx).Do()
		if isStatus(err, http.StatusConflict) {
			err = nil
		}
		if err == nil {
			logging.Component("warehouse").Info("created dataset", "dataset", key)
		}
	}
	if err != nil {
		return classify("bigquery.dataset", fmt.Errorf("%s: %w", key, err))
	}
	l.datasets[key] = true
	return nil
}

func tableSchema(s table.Schema) ([]*bq.TableFieldSchema, error) {
	out := make([]*bq.TableFieldSchema, 0, len(s))
	for _, f := range s {
		var typ string
		switch f.Kind {
		case table.KindString:
			typ = "STRING"
		case table.KindInt64:
			typ = "INTEGER"
		case table.KindFloat64:
			typ = "FLOAT"
		case table.KindBool:
			typ = "BOOLEAN"
		case table.KindTimestamp:
			typ = "TIMESTAMP"
		default:
			return nil, fmt.Errorf("bigquery: column %q: unsupported kind %s", f.Name, f.Kind)
		}
		out = append(out, &bq.TableFieldSchema{Name: f.Name, Type: typ, Mode: "NULLABLE"})
	}
	return out, nil
}

// timestampLayout is read by BigQuery as UTC.
const timestampLayout = "2006-01-02 15:04:05.999999"

// encodeNDJSON renders one JSON object per row. Nulls are omitted, and
// non-finite floats use the string forms BigQuery accepts.
func encodeNDJSON(s table.Schema, rows [][]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	obj := make(map[string]any, len(s))
	for i, r := range rows {
		clear(obj)
		for j, v := range r {
			if v == nil {
				continue
			}
			switch x := v.(type) {
			case time.Time:
				v = x.UTC().Format(timestampLayout)
			case float64:
				switch {
				case math.IsNaN(x):
					v = "NaN"
				case math.IsInf(x, 1):
					v = "Infinity"
				case math.IsInf(x, -1):
					v = "-Infinity"
				}
			}
			obj[s[j].Name] = v
		}
		if err := enc.Encode(obj); err != nil {
			return nil, fmt.Errorf("bigquery: encode row %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func jobError(job *bq.Job) error {
	er := job.Status.ErrorResult
	msgs := []string{er.Message}
	for _, e := range job.Status.Errors {
		if e != nil && e.Message != "" && e.Message != er.Message {
			msgs = append(msgs, e.Message)
		}
	}
	id := ""
	if job.JobReference != nil {
		id = job.JobReference.JobId
	}
	return etlerr.Newf(etlerr.KindLoad, "bigquery.load_job", "job %s: %s: %s", id, er.Reason, strings.Join(msgs, "; "))
}

// classify marks 401/403 responses as AuthError.
func classify(op string, err error) error {
	if isStatus(err, http.StatusUnauthorized) || isStatus(err, http.StatusForbidden) {
		return etlerr.New(etlerr.KindAuth, op, err)
	}
	return err
}

func isStatus(err error, code int) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == code
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
