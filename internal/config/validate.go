package config

import (
	"fmt"
	"net/url"
	"strings"

	"taxietl/internal/logging"
	"taxietl/internal/parquetfile"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is the flag name the finding is
// about (e.g. "batch-size").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be returned as one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static checks on c. It never touches the network or the
// block registry; resolving blocks is left to the caller.
func Validate(c Config) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.BaseDir) == "" {
		add(SeverityError, "base-dir", "base-dir must not be empty")
	}
	if !validSourceURL(c.SourceBaseURL) {
		add(SeverityError, "source-base-url", "source-base-url must be an absolute http(s) URL or a file:// directory, got %q", c.SourceBaseURL)
	}

	if strings.TrimSpace(c.BlocksFile) == "" {
		add(SeverityError, "blocks-file", "blocks-file must not be empty")
	}
	if strings.TrimSpace(c.StorageBlock) == "" {
		add(SeverityError, "storage-block", "storage-block must not be empty")
	}
	if strings.TrimSpace(c.CredentialsBlock) == "" {
		add(SeverityError, "credentials-block", "credentials-block must not be empty")
	}
	if strings.TrimSpace(c.Project) == "" {
		add(SeverityWarning, "project", "project is empty; the bigquery backend requires one")
	}
	if strings.TrimSpace(c.Dataset) == "" {
		add(SeverityError, "dataset", "dataset must not be empty")
	}

	if c.BatchSize <= 0 {
		add(SeverityError, "batch-size", "batch-size must be > 0, got %d", c.BatchSize)
	} else if c.BatchSize > 1_000_000 {
		add(SeverityWarning, "batch-size", "batch-size %d is very large; each chunk is held in memory and sent in one request", c.BatchSize)
	}
	if _, err := parquetfile.Codec(c.Compression); err != nil {
		add(SeverityError, "compression", "%v", err)
	}

	if c.HTTPTimeout <= 0 {
		add(SeverityError, "http-timeout", "http-timeout must be > 0, got %s", c.HTTPTimeout)
	}
	if c.HTTPRetries < 0 {
		add(SeverityError, "http-retries", "http-retries must be >= 0, got %d", c.HTTPRetries)
	}

	switch c.MetricsBackend {
	case "none", "":
	case "pushgateway":
		if strings.TrimSpace(c.PushgatewayURL) == "" {
			add(SeverityError, "pushgateway-url", "pushgateway backend requires pushgateway-url")
		}
	case "datadog":
		if strings.TrimSpace(c.DatadogAddr) == "" {
			add(SeverityError, "datadog-addr", "datadog backend requires datadog-addr")
		}
	default:
		add(SeverityError, "metrics-backend", "unknown metrics backend %q (want none, pushgateway or datadog)", c.MetricsBackend)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		add(SeverityError, "log-level", "%v", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		add(SeverityError, "log-format", "log-format must be text or json, got %q", c.LogFormat)
	}
	return issues
}

// validSourceURL accepts http(s) URLs with a host and file:// URLs with a
// path (a local mirror of the releases).
func validSourceURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "file":
		return u.Path != ""
	default:
		return false
	}
}
