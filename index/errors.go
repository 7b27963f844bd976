package index

import "errors"

var (
	// ErrNotFound is returned by Get/Remove/UpdatePath when the path is
	// absent.
	ErrNotFound = errors.New("index: entry not found")
	// ErrAlreadyExists is returned by Insert/UpdatePath on a path
	// collision.
	ErrAlreadyExists = errors.New("index: entry already exists")
	// ErrBackend is returned for backend-specific I/O or serialization
	// failure (file corruption, SQL error, ...).
	ErrBackend = errors.New("index: backend error")
)
