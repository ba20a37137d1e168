// Package file reads source files from local disk.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local opens one file on disk.
type Local struct{ path string }

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

// Open opens the file for reading. A canceled ctx short-circuits without
// touching the filesystem. Errors wrap the os error so errors.Is(err,
// os.ErrNotExist) works.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
