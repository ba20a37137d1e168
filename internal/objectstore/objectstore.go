// Package objectstore moves files between local disk and a named object
// store. Backends register a factory per block kind (gcs, s3, local); import
// taxietl/internal/objectstore/all to enable the built-in ones.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"taxietl/internal/blocks"
	"taxietl/internal/etlerr"
)

// Metadata keys attached to uploaded parquet objects.
const (
	MetaRows     = "x-taxietl-rows"
	MetaChecksum = "x-taxietl-xxh3"
)

// Store is a bucket-like key space.
//
// Download writes the object at key to localPath, creating parent
// directories. If the object does not exist no local file is created.
// Upload stores localPath under key, replacing any existing object.
type Store interface {
	Download(ctx context.Context, key, localPath string) error
	Upload(ctx context.Context, localPath, key string, meta map[string]string) error
}

// Factory builds a Store for a resolved object-store block.
type Factory func(ctx context.Context, blk blocks.ObjectStore) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs f for a block kind, replacing any previous factory.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// Kinds returns the registered kinds, sorted.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open builds the Store for blk. An unregistered kind or a failing factory
// is StorageUnavailable.
func Open(ctx context.Context, blk blocks.ObjectStore) (Store, error) {
	regMu.RLock()
	f, ok := factories[blk.Kind]
	regMu.RUnlock()
	op := "open object store " + blk.Name
	if !ok {
		return nil, etlerr.Newf(etlerr.KindStorageUnavailable, op, "unsupported kind %q (have %v)", blk.Kind, Kinds())
	}
	s, err := f(ctx, blk)
	if err != nil {
		return nil, etlerr.New(etlerr.KindStorageUnavailable, op, err)
	}
	return s, nil
}

// OpenLocal opens a local file for upload, classifying failures as IOErrors.
func OpenLocal(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, etlerr.New(etlerr.KindIO, "open "+path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, etlerr.New(etlerr.KindIO, "stat "+path, err)
	}
	if st.IsDir() {
		f.Close()
		return nil, nil, etlerr.Newf(etlerr.KindIO, "open "+path, "is a directory")
	}
	return f, st, nil
}

// ErrNotFound builds the StorageUnavailable error for a missing key.
func ErrNotFound(store, key string) error {
	return etlerr.Newf(etlerr.KindStorageUnavailable, fmt.Sprintf("download %s/%s", store, key), "object not found")
}
