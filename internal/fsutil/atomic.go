// Package fsutil holds small filesystem helpers shared by the pipeline
// stages that write local files.
package fsutil

import (
	"io"
	"os"
	"path/filepath"

	"taxietl/internal/etlerr"
)

// WriteFileAtomic creates path's parent directories and writes the file
// through fill into a temporary sibling, renaming it into place only when
// fill succeeds. On failure nothing is left at path. Errors are IOErrors
// unless fill returns an already classified error.
func WriteFileAtomic(path string, fill func(w io.Writer) error) (err error) {
	op := "write " + path
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return etlerr.New(etlerr.KindIO, op, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return etlerr.New(etlerr.KindIO, op, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err := fill(tmp); err != nil {
		return etlerr.New(etlerr.KindIO, op, err)
	}
	if err := tmp.Close(); err != nil {
		return etlerr.New(etlerr.KindIO, op, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return etlerr.New(etlerr.KindIO, op, err)
	}
	return nil
}

