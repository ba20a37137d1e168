// Package all registers the built-in object store backends (gcs, s3, local).
package all

import (
	_ "taxietl/internal/objectstore/localfs"
	_ "taxietl/internal/objectstore/s3"
)
