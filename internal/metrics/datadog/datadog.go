// Package datadog sends pipeline metrics to a DogStatsD agent.
package datadog

import (
	"fmt"
	"sort"

	"taxietl/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Config holds DogStatsD settings.
type Config struct {
	// Addr is "host:port" or "unix:///path/to/socket".
	Addr string

	// Namespace prefixes every metric name, e.g. "staging.".
	Namespace string

	// Tags are added to every metric, e.g. "env:prod".
	Tags []string
}

// client is the subset of statsd.ClientInterface used here.
type client interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Flush() error
	Close() error
}

// Backend implements metrics.Backend over DogStatsD.
type Backend struct {
	client client
}

// NewBackend dials the agent. UDP dialing does not fail when no agent
// listens, so a bad address shows up only as missing metrics.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}
	opts := []statsd.Option{}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.Tags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.Tags))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Count(name, int64(delta), tags(labels), 1)
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Histogram(name, value, tags(labels), 1)
}

// Flush sends buffered datagrams. The client stays usable; Close it at exit.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Flush()
}

// Close flushes and releases the client.
func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// tags renders labels as sorted "key:value" tags.
func tags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
