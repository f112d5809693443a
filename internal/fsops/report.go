// Package fsops implements best-effort recursive delete and copy. Neither
// operation stops at the first failed entry: every remaining entry is still
// attempted and the outcome of each is collected in a Report.
package fsops

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ErrSourceMissing is recorded when CopyTree is asked to copy a directory that
// does not exist.
var ErrSourceMissing = errors.New("source directory does not exist")

// Failure is a single entry that could not be processed.
type Failure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// Error implements error.
func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

// MarshalJSON renders the failure with its error text.
func (f Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{f.Path, msg})
}

// Unwrap returns the underlying error.
func (f Failure) Unwrap() error {
	return f.Err
}

// Report summarizes a best-effort operation.
type Report struct {
	// Succeeded counts entries (files and directories) processed successfully.
	Succeeded int `json:"succeeded"`
	// Skipped lists symlinks and reparse points left untouched.
	Skipped []string `json:"skipped,omitempty"`
	// Failures lists every entry that failed.
	Failures []Failure `json:"failures,omitempty"`
}

// OK reports whether every attempted entry succeeded.
func (r Report) OK() bool {
	return len(r.Failures) == 0
}

// Err aggregates the failures into one error, or returns nil.
func (r Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	var result *multierror.Error
	for _, f := range r.Failures {
		result = multierror.Append(result, f)
	}
	result.ErrorFormat = formatFailures
	return result.ErrorOrNil()
}

// Merge folds o into r.
func (r *Report) Merge(o Report) {
	r.Succeeded += o.Succeeded
	r.Skipped = append(r.Skipped, o.Skipped...)
	r.Failures = append(r.Failures, o.Failures...)
}

// FailedPaths returns the paths of all failed entries.
func (r Report) FailedPaths() []string {
	paths := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		paths = append(paths, f.Path)
	}
	return paths
}

func (r *Report) fail(path string, err error) {
	r.Failures = append(r.Failures, Failure{Path: path, Err: err})
}

func (r *Report) skip(path string) {
	r.Skipped = append(r.Skipped, path)
}

func formatFailures(es []error) string {
	if len(es) == 1 {
		return fmt.Sprintf("1 entry failed: %s", es[0])
	}

	points := make([]string, len(es))
	for i, err := range es {
		points[i] = fmt.Sprintf("* %s", err)
	}
	return fmt.Sprintf("%d entries failed:\n\t%s", len(es), strings.Join(points, "\n\t"))
}
