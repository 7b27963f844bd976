package stowr

import (
	"github.com/stowr/stowr/index"
)

// LogicalEntry is the index's primary record: the mapping from one
// canonicalized original path to the stored object holding its content.
// It is an alias for index.Entry so callers of the root package never
// need to import the index package just to read a field off a result
// from ListFiles or SearchFiles.
type LogicalEntry = index.Entry

// StorageKind distinguishes how a logical entry's bytes are held in the
// object store.
type StorageKind = index.StorageKind

const (
	Whole = index.Whole
	Delta = index.Delta
	Dedup = index.Dedup
)

// BatchFailure records one item's failure within a batch operation.
type BatchFailure struct {
	Path string
	Err  error
}

// BatchResult summarizes a batch operation: the paths that succeeded and
// the paths that failed along with why. Per-item failures never abort a
// batch; only a catastrophic failure (lock loss, index corruption) does,
// and that is returned directly as an error instead of populating this
// type.
type BatchResult struct {
	Succeeded []string
	Failed    []BatchFailure
}

// ProgressFunc is an optional callback a host supplies to a batch
// operation, invoked after each item completes (success or failure).
// outcome is nil on success.
type ProgressFunc func(completed, total int, currentPath string, outcome error)

// PathSource supplies an ordered sequence of paths to a batch operation,
// e.g. from a file list or a directory walk. A nil PathSource is treated
// as an empty sequence.
type PathSource interface {
	// Next returns the next path and true, or "" and false when
	// exhausted.
	Next() (string, bool)
}

// SlicePathSource adapts a plain slice of paths to PathSource.
type SlicePathSource struct {
	paths []string
	pos   int
}

// NewSlicePathSource wraps paths for use as a batch operation's
// PathSource.
func NewSlicePathSource(paths []string) *SlicePathSource {
	return &SlicePathSource{paths: paths}
}

func (s *SlicePathSource) Next() (string, bool) {
	if s.pos >= len(s.paths) {
		return "", false
	}
	p := s.paths[s.pos]
	s.pos++
	return p, true
}

// CancelFunc is checked by batch operations between items; when it
// returns true, remaining items are abandoned and a partial BatchResult
// is returned. A nil CancelFunc means the batch always runs to
// completion.
type CancelFunc func() bool
