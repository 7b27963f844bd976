package stowr

import (
	"errors"

	"github.com/stowr/stowr/index"
)

// Sentinel errors identifying the distinct error kinds of the engine.
// Call sites wrap one of these with fmt.Errorf("op: %w", ErrX); callers
// compare with errors.Is.
var (
	// ErrNotFound is returned when a path is not in the index, or a
	// stored object file is missing from disk during an owe.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on an insert or rename collision.
	ErrAlreadyExists = errors.New("already exists")
	// ErrCodec is returned on decompression failure or an invalid
	// compression level.
	ErrCodec = errors.New("codec error")
	// ErrDelta is returned when patch verification fails or a delta's
	// base object is missing.
	ErrDelta = errors.New("delta error")
	// ErrIndex is returned on index backend I/O or serialization failure.
	ErrIndex = errors.New("index error")
	// ErrObjectStore is returned on object store file I/O failure or a
	// reference-count inconsistency.
	ErrObjectStore = errors.New("object store error")
	// ErrConfig is returned for an invalid configuration.
	ErrConfig = errors.New("config error")
	// ErrAlreadyLocked is returned when another instance holds the
	// storage root's advisory lock.
	ErrAlreadyLocked = errors.New("already locked")
	// ErrIntegrity is returned when a content hash does not match its
	// expected value on read (bit rot).
	ErrIntegrity = errors.New("integrity error")
)

func isIndexNotFound(err error) bool {
	return errors.Is(err, index.ErrNotFound)
}

func isIndexExists(err error) bool {
	return errors.Is(err, index.ErrAlreadyExists)
}
