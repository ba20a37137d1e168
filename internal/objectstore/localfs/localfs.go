// Package localfs is an object store rooted at a local directory. It backs
// "local" blocks, used for offline runs and for inspecting what a pipeline
// would upload.
//
// User metadata is kept next to each object in a "<name>.meta.yaml" sidecar.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"taxietl/internal/blocks"
	"taxietl/internal/etlerr"
	"taxietl/internal/fsutil"
	"taxietl/internal/objectstore"

	"gopkg.in/yaml.v3"
)

const metaSuffix = ".meta.yaml"

func init() {
	objectstore.Register(blocks.StoreLocal, func(ctx context.Context, blk blocks.ObjectStore) (objectstore.Store, error) {
		return New(blk.Name, blk.Path, blk.Prefix)
	})
}

// Store keeps objects as files under root.
type Store struct {
	name string
	root string
}

// New returns a Store rooted at filepath.Join(root, prefix). The directory
// is created if needed.
func New(name, root, prefix string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("localfs: root is required")
	}
	dir := filepath.Join(root, filepath.FromSlash(prefix))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localfs: %w", err)
	}
	return &Store{name: name, root: dir}, nil
}

func (s *Store) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Download implements objectstore.Store.
func (s *Store) Download(ctx context.Context, key, localPath string) error {
	src, err := s.path(key)
	if err != nil {
		return etlerr.New(etlerr.KindStorageUnavailable, "download "+key, err)
	}
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return objectstore.ErrNotFound(s.name, key)
	}
	if err != nil {
		return etlerr.New(etlerr.KindStorageUnavailable, "download "+key, err)
	}
	defer in.Close()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(localPath, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// Upload implements objectstore.Store.
func (s *Store) Upload(ctx context.Context, localPath, key string, meta map[string]string) error {
	in, _, err := objectstore.OpenLocal(localPath)
	if err != nil {
		return err
	}
	defer in.Close()

	dst, err := s.path(key)
	if err != nil {
		return etlerr.New(etlerr.KindStorageUnavailable, "upload "+key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return etlerr.New(etlerr.KindStorageUnavailable, "upload "+key, err)
	}
	if len(meta) == 0 {
		_ = os.Remove(dst + metaSuffix)
		return nil
	}
	return fsutil.WriteFileAtomic(dst+metaSuffix, func(w io.Writer) error {
		return yaml.NewEncoder(w).Encode(meta)
	})
}

// Metadata returns the user metadata stored with key, or nil.
func (s *Store) Metadata(key string) (map[string]string, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p + metaSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
