package stowr

import (
	"fmt"

	"github.com/stowr/stowr/codec"
	"github.com/stowr/stowr/index"
)

// Fsck sweeps the object store for orphans: object files on disk that no
// index entry references (as its ObjectID, or as a Delta's BaseObjectID)
// are removed, and refcount records for ids no entry references are
// dropped. It is run automatically at Open (crash recovery after
// a process that wrote an object but never committed the matching index
// entry) and may also be called directly.
func (e *Engine) Fsck() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.idx.List()
	if err != nil {
		return fmt.Errorf("fsck: %w: %v", ErrIndex, err)
	}
	referenced := make(map[string]bool, len(entries))
	for _, entry := range entries {
		referenced[entry.ObjectID] = true
		// A Delta's base is referenced by BaseObjectID, not ObjectID: the
		// base's own entry may since have been removed by a sibling owe
		// or delete, leaving this the only pointer to it.
		if entry.Kind == index.Delta && entry.BaseObjectID != "" {
			referenced[entry.BaseObjectID] = true
		}
	}

	refCounts, err := e.idx.AllRefCounts()
	if err != nil {
		return fmt.Errorf("fsck: %w: %v", ErrIndex, err)
	}

	var orphans []struct {
		id  string
		ext string
	}
	if err := e.store.WalkObjects(func(id, ext string) error {
		if !referenced[id] {
			orphans = append(orphans, struct {
				id  string
				ext string
			}{id, ext})
		}
		return nil
	}); err != nil {
		return fmt.Errorf("fsck: %w: %v", ErrObjectStore, err)
	}

	for _, o := range orphans {
		algo, kind := algorithmForExtension(o.ext)
		if err := e.store.RemoveOrphan(o.id, kind, algo); err != nil {
			return fmt.Errorf("fsck: remove orphan %s: %w: %v", o.id, ErrObjectStore, err)
		}
	}

	for id := range refCounts {
		if !referenced[id] {
			if err := e.idx.DeleteRefCount(id); err != nil {
				return fmt.Errorf("fsck: drop stale refcount %s: %w: %v", id, ErrIndex, err)
			}
		}
	}

	return nil
}

// algorithmForExtension inverts the object store's extension convention
// well enough for fsck to build a Ref capable of removing an orphan: the
// exact compression level recorded for it no longer matters once it is
// being deleted outright.
func algorithmForExtension(ext string) (codec.Algorithm, index.StorageKind) {
	switch ext {
	case "gz":
		return codec.Gzip, index.Whole
	case "zst":
		return codec.Zstd, index.Whole
	case "lz4":
		return codec.Lz4, index.Whole
	case "dlt":
		return codec.Gzip, index.Delta
	default:
		return codec.Gzip, index.Whole
	}
}
