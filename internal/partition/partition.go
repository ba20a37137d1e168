// Package partition identifies one unit of work, a (category, year, month)
// triple, and derives every file name, URL and storage key from it.
//
// All derivations are pure functions of the triple, so re-running a partition
// addresses exactly the same objects and overwrites them.
package partition

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Defaults applied by the CLI when a flag is omitted.
const (
	DefaultCategory = "green"
	DefaultYear     = 2020
	DefaultMonth    = 1
)

var categoryRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Partition is one dataset partition. It is immutable once a run starts.
type Partition struct {
	Category string
	Year     int
	Month    int
}

// New returns a validated Partition.
func New(category string, year, month int) (Partition, error) {
	p := Partition{Category: category, Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Partition{}, err
	}
	return p, nil
}

// Validate checks that the triple can be rendered into paths.
func (p Partition) Validate() error {
	if !categoryRe.MatchString(p.Category) {
		return fmt.Errorf("partition: invalid category %q (want lowercase letters, digits, underscore)", p.Category)
	}
	if p.Year < 1900 || p.Year > 9999 {
		return fmt.Errorf("partition: year %d out of range", p.Year)
	}
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("partition: month %d out of range 1..12", p.Month)
	}
	return nil
}

// String renders the partition as "green/2020-01".
func (p Partition) String() string {
	return fmt.Sprintf("%s/%d-%02d", p.Category, p.Year, p.Month)
}

// FileStem is "<category>_tripdata_<year>-<month:02>".
func (p Partition) FileStem() string {
	return fmt.Sprintf("%s_tripdata_%d-%02d", p.Category, p.Year, p.Month)
}

// Folder is "<category>_taxi". It names the bucket folder, the local dataset
// folder and the warehouse table.
func (p Partition) Folder() string {
	return p.Category + "_taxi"
}

// SourceURL is "<base>/<category>/<stem>.csv.gz".
func (p Partition) SourceURL(baseURL string) string {
	return fmt.Sprintf("%s/%s/%s.csv.gz", strings.TrimRight(baseURL, "/"), p.Category, p.FileStem())
}

// ObjectKey is the bucket-relative key "<category>_taxi/<stem>.parquet".
// Keys always use forward slashes regardless of host OS.
func (p Partition) ObjectKey() string {
	return p.Folder() + "/" + p.FileStem() + ".parquet"
}

// LocalPath is "<baseDir>/datasets/<category>_taxi/<stem>.parquet".
func (p Partition) LocalPath(baseDir string) string {
	return filepath.Join(baseDir, "datasets", p.Folder(), p.FileStem()+".parquet")
}

// Table is the warehouse table name, identical to Folder.
func (p Partition) Table() string {
	return p.Folder()
}
