// Package memstore is an in-memory objectstore.Store for tests.
package memstore

import (
	"context"
	"io"
	"maps"
	"os"
	"sort"
	"sync"

	"taxietl/internal/etlerr"
	"taxietl/internal/fsutil"
	"taxietl/internal/objectstore"
)

// Object is a stored blob with its metadata.
type Object struct {
	Data []byte
	Meta map[string]string
}

// Store keeps objects in a map. Err, when set, fails every call with a
// StorageUnavailable error.
type Store struct {
	mu      sync.Mutex
	objects map[string]Object
	Err     error
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: map[string]Object{}}
}

// Put seeds an object.
func (s *Store) Put(key string, data []byte, meta map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = Object{Data: append([]byte(nil), data...), Meta: maps.Clone(meta)}
}

// Get returns a stored object.
func (s *Store) Get(key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[key]
	return o, ok
}

// Keys returns stored keys, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Download(ctx context.Context, key, localPath string) error {
	if s.Err != nil {
		return etlerr.New(etlerr.KindStorageUnavailable, "download "+key, s.Err)
	}
	o, ok := s.Get(key)
	if !ok {
		return objectstore.ErrNotFound("memstore", key)
	}
	return fsutil.WriteFileAtomic(localPath, func(w io.Writer) error {
		_, err := w.Write(o.Data)
		return err
	})
}

func (s *Store) Upload(ctx context.Context, localPath, key string, meta map[string]string) error {
	if s.Err != nil {
		return etlerr.New(etlerr.KindStorageUnavailable, "upload "+key, s.Err)
	}
	b, err := os.ReadFile(localPath)
	if err != nil {
		return etlerr.New(etlerr.KindIO, "read "+localPath, err)
	}
	s.Put(key, b, meta)
	return nil
}
