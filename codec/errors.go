package codec

import "errors"

var (
	// ErrUnsupportedAlgorithm is returned for an algorithm value this
	// package does not recognize.
	ErrUnsupportedAlgorithm = errors.New("unsupported compression algorithm")
	// ErrInvalidLevel is returned when a level falls outside an
	// algorithm's accepted domain.
	ErrInvalidLevel = errors.New("invalid compression level")
	// ErrCorrupt is returned when decompression fails on malformed input.
	ErrCorrupt = errors.New("corrupt compressed data")
)
