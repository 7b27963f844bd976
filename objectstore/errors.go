package objectstore

import "errors"

var (
	// ErrIO covers file I/O failures and refcount-record inconsistency.
	ErrIO = errors.New("objectstore: io error")
	// ErrNotFound is returned when an object's backing file is missing.
	ErrNotFound = errors.New("objectstore: object not found")
	// ErrIntegrity is returned when a decompressed Whole/Dedup object's
	// content hash does not match its id.
	ErrIntegrity = errors.New("objectstore: integrity check failed")
)
