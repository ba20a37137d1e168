package datadog

import (
	"reflect"
	"testing"

	"taxietl/internal/metrics"
)

type fakeClient struct {
	counts  map[string]int64
	hists   map[string]float64
	lastTag []string
	flushed int
	closed  bool
}

func newFake() *fakeClient {
	return &fakeClient{counts: map[string]int64{}, hists: map[string]float64{}}
}

func (f *fakeClient) Count(name string, v int64, tags []string, _ float64) error {
	f.counts[name] += v
	f.lastTag = tags
	return nil
}

func (f *fakeClient) Histogram(name string, v float64, tags []string, _ float64) error {
	f.hists[name] = v
	f.lastTag = tags
	return nil
}

func (f *fakeClient) Flush() error { f.flushed++; return nil }
func (f *fakeClient) Close() error { f.closed = true; return nil }

func TestBackend_ForwardsWithSortedTags(t *testing.T) {
	t.Parallel()

	fc := newFake()
	b := &Backend{client: fc}
	b.IncCounter(metrics.RowsTotal, 100000, metrics.Labels{"kind": "loaded", "job": "store_to_warehouse"})
	if fc.counts[metrics.RowsTotal] != 100000 {
		t.Fatalf("count = %d", fc.counts[metrics.RowsTotal])
	}
	if want := []string{"job:store_to_warehouse", "kind:loaded"}; !reflect.DeepEqual(fc.lastTag, want) {
		t.Fatalf("tags = %v, want %v", fc.lastTag, want)
	}

	b.ObserveHistogram(metrics.StageDuration, 1.25, nil)
	if fc.hists[metrics.StageDuration] != 1.25 || fc.lastTag != nil {
		t.Fatalf("hist = %v tags=%v", fc.hists, fc.lastTag)
	}

	if err := b.Flush(); err != nil || fc.flushed != 1 {
		t.Fatalf("Flush err=%v flushed=%d", err, fc.flushed)
	}
	if err := b.Close(); err != nil || !fc.closed {
		t.Fatalf("Close err=%v closed=%v", err, fc.closed)
	}
}

func TestNewBackend_RequiresAddr(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestZeroBackendIsSafe(t *testing.T) {
	t.Parallel()

	var b Backend
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
}
