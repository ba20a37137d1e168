// Package s3 stores objects in GCS or any S3-compatible service through
// minio-go. GCS is reached through its S3-interoperable XML API using HMAC
// keys, so one client serves both kinds.
package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"taxietl/internal/blocks"
	"taxietl/internal/etlerr"
	"taxietl/internal/fsutil"
	"taxietl/internal/logging"
	"taxietl/internal/objectstore"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const contentType = "application/vnd.apache.parquet"

func init() {
	f := func(ctx context.Context, blk blocks.ObjectStore) (objectstore.Store, error) {
		return New(blk)
	}
	objectstore.Register(blocks.StoreGCS, f)
	objectstore.Register(blocks.StoreS3, f)
}

// Store is an objectstore.Store over one bucket.
type Store struct {
	name   string
	client *minio.Client
	bucket string
	prefix string
	log    *slog.Logger
}

// New builds a client for blk. No request is made until first use.
func New(blk blocks.ObjectStore) (*Store, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(blk.AccessKey, blk.SecretKey, ""),
		Secure: blk.Secure,
		Region: blk.Region,
	}
	if blk.Kind == blocks.StoreGCS {
		// GCS rejects virtual-host requests for buckets with underscores.
		opts.BucketLookup = minio.BucketLookupPath
		if opts.Region == "" {
			opts.Region = "auto"
		}
	}
	c, err := minio.New(blk.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("s3: new client for %s: %w", blk.Endpoint, err)
	}
	return &Store{
		name:   blk.Name,
		client: c,
		bucket: blk.Bucket,
		prefix: blk.Prefix,
		log:    logging.Component("objectstore").With("store", blk.Name, "bucket", blk.Bucket),
	}, nil
}

func (s *Store) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Download implements objectstore.Store. The object is stat'ed first so a
// missing key never creates a local file.
func (s *Store) Download(ctx context.Context, key, localPath string) error {
	name := s.objectName(key)
	op := fmt.Sprintf("download %s/%s", s.bucket, name)
	if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return objectstore.ErrNotFound(s.bucket, name)
		}
		return etlerr.New(etlerr.KindStorageUnavailable, op, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return etlerr.New(etlerr.KindStorageUnavailable, op, err)
	}
	defer obj.Close()

	var n int64
	err = fsutil.WriteFileAtomic(localPath, func(w io.Writer) error {
		var cerr error
		n, cerr = io.Copy(w, obj)
		if cerr != nil {
			// Read-side failures come from the store, not the disk.
			if _, ok := cerr.(minio.ErrorResponse); ok {
				return etlerr.New(etlerr.KindStorageUnavailable, op, cerr)
			}
		}
		return cerr
	})
	if err != nil {
		return err
	}
	s.log.Info("downloaded object", "key", name, "local_path", localPath, "bytes", n)
	return nil
}

// Upload implements objectstore.Store.
func (s *Store) Upload(ctx context.Context, localPath, key string, meta map[string]string) error {
	f, st, err := objectstore.OpenLocal(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	name := s.objectName(key)
	info, err := s.client.PutObject(ctx, s.bucket, name, f, st.Size(), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		return etlerr.New(etlerr.KindStorageUnavailable, fmt.Sprintf("upload %s/%s", s.bucket, name), err)
	}
	s.log.Info("uploaded object", "local_path", localPath, "key", name, "bytes", info.Size, "etag", info.ETag)
	return nil
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}
