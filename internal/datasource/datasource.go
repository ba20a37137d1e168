// Package datasource opens source files by location. HTTP(S) URLs go through
// httpds; file:// URLs and bare paths are read from local disk, which is how
// runs are reproduced offline against a mirrored release directory.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"taxietl/internal/datasource/file"
	"taxietl/internal/datasource/httpds"
)

// Source opens the bytes at a location.
type Source interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Router dispatches Open by URL scheme.
type Router struct {
	HTTP *httpds.Client
}

// NewRouter returns a Router that uses client for http and https locations.
func NewRouter(client *httpds.Client) *Router {
	return &Router{HTTP: client}
}

// Open implements Source.
func (r *Router) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("datasource: parse %q: %w", location, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if r.HTTP == nil {
			return nil, fmt.Errorf("datasource: no http client configured for %s", location)
		}
		return r.HTTP.Open(ctx, location)
	case "file":
		return file.NewLocal(u.Path).Open(ctx)
	case "":
		return file.NewLocal(location).Open(ctx)
	default:
		return nil, fmt.Errorf("datasource: unsupported scheme %q in %s", u.Scheme, location)
	}
}

// FetchFirstBytes returns up to n bytes from the start of location. HTTP
// locations use a ranged request; local files are simply read.
func (r *Router) FetchFirstBytes(ctx context.Context, location string, n int) ([]byte, error) {
	if u, err := url.Parse(location); err == nil && r.HTTP != nil {
		if s := strings.ToLower(u.Scheme); s == "http" || s == "https" {
			return r.HTTP.FetchFirstBytes(ctx, location, n)
		}
	}
	rc, err := r.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, int64(n)))
}
