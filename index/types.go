// Package index defines the contract shared by the two interchangeable
// backends that persist the mapping from a logical file path to its
// stored-object descriptor, plus the reference counts that live alongside
// it. Concrete backends are index/document (a single structured text
// file) and index/sqlite (an embedded relational database); both import
// this package, not the other way around, so callers that only need the
// contract never pull in either backend's dependencies.
package index

import "time"

// StorageKind distinguishes how a logical entry's bytes are held in the
// object store.
type StorageKind int

const (
	// Whole entries own a fully compressed copy of their content.
	Whole StorageKind = iota
	// Delta entries hold only a residual against a Whole base object.
	Delta
	// Dedup entries share a Whole/Dedup object with at least one other
	// entry; the object's refcount counts all of them.
	Dedup
)

func (k StorageKind) String() string {
	switch k {
	case Whole:
		return "whole"
	case Delta:
		return "delta"
	case Dedup:
		return "dedup"
	default:
		return "unknown"
	}
}

// Mode selects which backend implementation an Index uses.
type Mode int

const (
	// Auto probes existing on-disk state at open time: Document if none
	// exists, otherwise whatever backend wrote that state.
	Auto Mode = iota
	Document
	Relational
)

func (m Mode) String() string {
	switch m {
	case Auto:
		return "auto"
	case Document:
		return "document"
	case Relational:
		return "relational"
	default:
		return "unknown"
	}
}

// Entry is the index's primary record: the mapping from one canonicalized
// original path to the stored object holding its content.
type Entry struct {
	OriginalPath string
	ObjectID     string
	OriginalSize int64
	StoredSize   int64
	Algorithm    string
	ContentHash  string
	CreatedAt    time.Time
	ModifiedAt   time.Time
	// BaseObjectID is non-empty only for Delta entries: the object ID of
	// the Whole object the delta reconstructs against.
	BaseObjectID string
	Kind         StorageKind
	// DeltaScheme records which delta scheme produced a Delta entry's
	// residual; empty for Whole/Dedup.
	DeltaScheme byte
}
