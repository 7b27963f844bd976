package stowr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/stowr/stowr/codec"
	"github.com/stowr/stowr/delta"
	"github.com/stowr/stowr/index"
	"github.com/stowr/stowr/index/document"
	"github.com/stowr/stowr/index/sqlite"
	"github.com/stowr/stowr/objectstore"
)

// indexBackend is what a concrete backend (index/document, index/sqlite)
// must satisfy: the shared index contract plus the refcount bookkeeping
// that lives alongside it.
type indexBackend interface {
	index.Index
	index.RefCounter
}

// Engine is the storage manager: the orchestrator a host drives through
// store/owe/rename/move/delete and the batch/list/search/fsck
// operations built on top of them.
type Engine struct {
	cfg   Config
	idx   indexBackend
	store *objectstore.Store
	lock  *fileLock

	// mu is the single global writer lock (see the concurrency model):
	// held briefly around index/refcount commit steps. Readers
	// (ListFiles, SearchFiles, a plain Get) take it for reading.
	mu sync.RWMutex

	algo      codec.Algorithm
	level     int
	scheme    delta.Scheme
	threshold float64
}

const documentMigrationThreshold = 1000

// Open opens (creating if absent) the storage root named by cfg and
// returns a ready Engine. It acquires the root's advisory lock, resolves
// the index backend (probing on-disk state when IndexMode is "auto"),
// and runs an orphan sweep equivalent to a crash-recovery fsck before
// returning.
func Open(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("open: mkdir %s: %w: %v", cfg.StoragePath, ErrObjectStore, err)
	}

	lock, err := acquireLock(cfg.StoragePath)
	if err != nil {
		return nil, err
	}
	success := false
	defer func() {
		if !success {
			lock.release()
		}
	}()

	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	idx, err := openIndexBackend(cfg.StoragePath, mode)
	if err != nil {
		return nil, err
	}

	store, err := objectstore.Open(filepath.Join(cfg.StoragePath, "objects"), idx)
	if err != nil {
		idx.Close()
		return nil, err
	}

	algo, err := cfg.Algorithm()
	if err != nil {
		return nil, err
	}
	scheme, err := cfg.Scheme()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		idx:       idx,
		store:     store,
		lock:      lock,
		algo:      algo,
		level:     cfg.Level(),
		scheme:    scheme,
		threshold: cfg.Threshold(),
	}

	if err := e.Fsck(); err != nil {
		store.Close()
		idx.Close()
		return nil, err
	}

	if _, isDoc := idx.(*document.Backend); isDoc && mode == index.Auto {
		if n, err := idx.Count(); err == nil && n > documentMigrationThreshold {
			slog.Warn("document index exceeds the migration threshold; MigrateToRelational converts it to the relational backend",
				"entries", n, "threshold", documentMigrationThreshold)
		}
	}

	success = true
	return e, nil
}

func openIndexBackend(root string, mode index.Mode) (indexBackend, error) {
	docPath := filepath.Join(root, "index.yaml")
	sqlitePath := filepath.Join(root, "index.db")

	switch mode {
	case index.Document:
		b, err := document.Open(docPath)
		return wrapIndexErr(b, err)
	case index.Relational:
		b, err := sqlite.Open(sqlitePath)
		return wrapIndexErr(b, err)
	case index.Auto:
		if _, err := os.Stat(sqlitePath); err == nil {
			b, err := sqlite.Open(sqlitePath)
			return wrapIndexErr(b, err)
		}
		b, err := document.Open(docPath)
		return wrapIndexErr(b, err)
	default:
		return nil, fmt.Errorf("open: unknown index mode %v: %w", mode, ErrConfig)
	}
}

func wrapIndexErr(b indexBackend, err error) (indexBackend, error) {
	if err != nil {
		return nil, fmt.Errorf("open index: %w: %v", ErrIndex, err)
	}
	return b, nil
}

// Close releases the index backend, the object store, and the advisory
// lock, in that order.
func (e *Engine) Close() error {
	var errs []error
	if err := e.idx.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.lock.release(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %v", errs)
	}
	return nil
}

// RenameFile performs an index-only update_path, failing with
// AlreadyExists if newPath is taken or NotFound if oldPath is absent.
func (e *Engine) RenameFile(ctx context.Context, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.idx.UpdatePath(oldPath, newPath); err != nil {
		return translateIndexErr("rename", err)
	}
	return nil
}

// MoveFile is an alias for RenameFile: both are index-only update_path
// operations (a "move" differs from a "rename" only in the host's intent,
// not in engine semantics).
func (e *Engine) MoveFile(ctx context.Context, src, dst string) error {
	return e.RenameFile(ctx, src, dst)
}

// DeleteFile removes path's index entry and decrements its object's
// refcount. Deleting the last referrer of a Whole object that still has
// Delta dependents fails with ObjectStoreError; the caller must owe or
// delete those dependents first.
func (e *Engine) DeleteFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.idx.Get(path)
	if err != nil {
		return translateIndexErr("delete", err)
	}

	if err := e.baseReleaseCheck(entry, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	if _, err := e.idx.Remove(path); err != nil {
		return translateIndexErr("delete", err)
	}

	ref := e.refFor(entry)
	if _, err := e.releaseRef(ref); err != nil {
		return fmt.Errorf("delete %s: %w: %v", path, ErrObjectStore, err)
	}
	return nil
}

// baseReleaseCheck is DeleteFile's guard against deleting entry when it
// is the last non-Delta entry pointing at an object that Delta entries
// still use as their base. It is not enough
// to check "does any Delta depend on this object" — a Dedup sibling of a
// Whole object, or vice versa, can absorb the release safely as long as
// at least one other non-Delta entry is left pointing at the object.
func (e *Engine) baseReleaseCheck(entry LogicalEntry, excludePath string) error {
	if entry.Kind == index.Delta {
		return nil
	}
	all, err := e.idx.List()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndex, err)
	}
	var dependents, otherReferrers int
	for _, other := range all {
		if other.OriginalPath == excludePath {
			continue
		}
		switch {
		case other.Kind == index.Delta && other.BaseObjectID == entry.ObjectID:
			dependents++
		case other.Kind != index.Delta && other.ObjectID == entry.ObjectID:
			otherReferrers++
		}
	}
	if dependents > 0 && otherReferrers == 0 {
		return fmt.Errorf("base object has %d delta dependent(s) and no other referrer: %w", dependents, ErrObjectStore)
	}
	return nil
}

// ListFiles returns every logical entry, order unspecified.
func (e *Engine) ListFiles(ctx context.Context) ([]LogicalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	entries, err := e.idx.List()
	if err != nil {
		return nil, fmt.Errorf("list: %w: %v", ErrIndex, err)
	}
	return entries, nil
}

// SearchFiles returns entries whose original path matches a glob pattern.
func (e *Engine) SearchFiles(ctx context.Context, pattern string) ([]LogicalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	entries, err := e.idx.Search(pattern)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w: %v", pattern, ErrIndex, err)
	}
	return entries, nil
}

// Stats summarizes the store's contents by scanning the index: counts by
// storage kind and the total original vs. stored bytes.
type Stats struct {
	TotalEntries  int
	CountByKind   map[StorageKind]int
	OriginalBytes int64
	StoredBytes   int64
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	entries, err := e.idx.List()
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w: %v", ErrIndex, err)
	}
	s := Stats{CountByKind: make(map[StorageKind]int)}
	for _, entry := range entries {
		s.TotalEntries++
		s.CountByKind[entry.Kind]++
		s.OriginalBytes += entry.OriginalSize
		s.StoredBytes += entry.StoredSize
	}
	return s, nil
}

func translateIndexErr(op string, err error) error {
	switch {
	case isIndexNotFound(err):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case isIndexExists(err):
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrIndex, err)
	}
}
