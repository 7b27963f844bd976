// Package objectstore durably holds compressed blobs on disk, addressed
// by content hash for Whole/Dedup objects or by a freshly generated id for
// Delta objects, and tracks reference counts through a caller-supplied
// RefCounter (kept alongside the index, not in a separate store, per the
// engine's single-writer-lock design).
package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stowr/stowr/codec"
	"github.com/stowr/stowr/delta"
	"github.com/stowr/stowr/index"
)

// RefCounter is the subset of index.RefCounter the object store needs.
// index/document.Backend and index/sqlite.Backend both satisfy it
// structurally without importing this package.
type RefCounter interface {
	IncRef(id string) (int, error)
	DecRef(id string) (int, error)
	RefCount(id string) (int, error)
	SetRefCount(id string, n int) error
	DeleteRefCount(id string) error
}

// Ref identifies an object to read or write: its id, the codec that
// compressed it, its storage kind, and — for Delta objects — the scheme
// and base needed to reconstruct it.
type Ref struct {
	ID        string
	Algorithm codec.Algorithm
	Kind      index.StorageKind
	Scheme    delta.Scheme
	// Base is required for Kind == index.Delta; it must itself be a
	// Whole object (delta chains are disallowed, depth <= 1).
	Base *Ref
	// BaseHash is the content hash of Base's decompressed bytes, used
	// both as Base.ID (Whole ids are their content hash) and to check
	// the residual header on patch.
	BaseHash string
}

// Store is the on-disk, content-addressed object store.
type Store struct {
	root *os.Root
	refs RefCounter
	// cache holds decompressed Whole/Dedup object bytes so repeated
	// delta-candidate probes and patch reconstructions don't re-read
	// and re-decompress from disk.
	cache *lru.Cache[string, []byte]
}

const defaultCacheSize = 64

// Open creates (if absent) and opens the object store rooted at dir.
func Open(dir string, refs RefCounter) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: mkdir %s: %w: %v", dir, ErrIO, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("objectstore: open root %s: %w: %v", dir, ErrIO, err)
	}
	if err := root.MkdirAll("objects", 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: mkdir objects: %w: %v", ErrIO, err)
	}
	cache, err := lru.New[string, []byte](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("objectstore: cache: %w: %v", ErrIO, err)
	}
	return &Store{root: root, refs: refs, cache: cache}, nil
}

func (s *Store) Close() error {
	return s.root.Close()
}

// extension returns the on-disk file suffix for ref: the codec's own
// extension for Whole/Dedup objects, or the fixed "dlt" tag for Delta
// objects (whose Algorithm field still records which codec compressed
// the residual payload).
func extension(kind index.StorageKind, algo codec.Algorithm) (string, error) {
	if kind == index.Delta {
		return "dlt", nil
	}
	return algo.Extension()
}

func objectPath(id, ext string) (string, error) {
	if len(id) < 2 {
		return "", fmt.Errorf("objectstore: id %q too short for fanout: %w", id, ErrIO)
	}
	return filepath.Join("objects", id[:2], fmt.Sprintf("%s.%s", id[2:], ext)), nil
}

// Exists reports whether an object with the given id and kind/algorithm
// is already on disk, used by Put's dedup short-circuit.
func (s *Store) Exists(id string, kind index.StorageKind, algo codec.Algorithm) (bool, error) {
	ext, err := extension(kind, algo)
	if err != nil {
		return false, err
	}
	path, err := objectPath(id, ext)
	if err != nil {
		return false, err
	}
	_, err = s.root.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("objectstore: stat %s: %w: %v", path, ErrIO, err)
}

// Put compresses data under ref.Algorithm/level and writes it at ref's
// content-addressed location, setting its refcount to 1. For Whole/Dedup
// kinds, if an object with that id already exists (another entry with
// the same content was already stored), Put increments its refcount
// instead of writing again and reports created=false.
func (s *Store) Put(ref Ref, level int, data []byte) (created bool, storedSize int64, err error) {
	if ref.Kind != index.Delta {
		exists, err := s.Exists(ref.ID, ref.Kind, ref.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if exists {
			if _, err := s.refs.IncRef(ref.ID); err != nil {
				return false, 0, fmt.Errorf("objectstore: put: incref: %w: %v", ErrIO, err)
			}
			return false, 0, nil
		}
	}

	compressed, err := codec.Compress(ref.Algorithm, level, data)
	if err != nil {
		return false, 0, err
	}

	ext, err := extension(ref.Kind, ref.Algorithm)
	if err != nil {
		return false, 0, err
	}
	path, err := objectPath(ref.ID, ext)
	if err != nil {
		return false, 0, err
	}
	if err := s.root.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, 0, fmt.Errorf("objectstore: mkdir %s: %w: %v", filepath.Dir(path), ErrIO, err)
	}
	if err := s.writeAtomic(path, compressed); err != nil {
		return false, 0, err
	}

	if err := s.refs.SetRefCount(ref.ID, 1); err != nil {
		return false, 0, fmt.Errorf("objectstore: put: set refcount: %w: %v", ErrIO, err)
	}
	if ref.Kind != index.Delta {
		// Only bytes that hash to ref.ID are cached, so a cache hit in Get
		// never skips its integrity check.
		if sum := sha256.Sum256(data); hex.EncodeToString(sum[:]) == ref.ID {
			s.cache.Add(ref.ID, data)
		}
	}
	return true, int64(len(compressed)), nil
}

// IncRef bumps id's refcount directly, used when a new Delta entry adds
// a dependency on its Whole base object without otherwise touching that
// object's bytes.
func (s *Store) IncRef(id string) (int, error) {
	n, err := s.refs.IncRef(id)
	if err != nil {
		return 0, fmt.Errorf("objectstore: incref: %w: %v", ErrIO, err)
	}
	return n, nil
}

func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(filepath.Join(s.rootPath(), dir), ".obj-*.tmp")
	if err != nil {
		return fmt.Errorf("objectstore: create temp: %w: %v", ErrIO, err)
	}
	tmpRel := filepath.Join(dir, filepath.Base(tmp.Name()))
	success := false
	defer func() {
		tmp.Close()
		if !success {
			s.root.Remove(tmpRel)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("objectstore: write temp: %w: %v", ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("objectstore: fsync temp: %w: %v", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("objectstore: close temp: %w: %v", ErrIO, err)
	}
	if err := s.root.Rename(tmpRel, path); err != nil {
		return fmt.Errorf("objectstore: rename: %w: %v", ErrIO, err)
	}
	success = true
	return nil
}

func (s *Store) rootPath() string {
	return s.root.Name()
}

// Get reads and decompresses the object identified by ref, reconstructing
// Delta objects against their base via delta.Patch. Whole/Dedup objects
// have their content hash verified against ref.ID (which equals that
// hash); a mismatch fails with ErrIntegrity.
func (s *Store) Get(ref Ref) ([]byte, error) {
	if ref.Kind != index.Delta {
		if cached, ok := s.cache.Get(ref.ID); ok {
			return cached, nil
		}
	}

	ext, err := extension(ref.Kind, ref.Algorithm)
	if err != nil {
		return nil, err
	}
	path, err := objectPath(ref.ID, ext)
	if err != nil {
		return nil, err
	}
	raw, err := s.readFile(path)
	if err != nil {
		return nil, err
	}
	decompressed, err := codec.Decompress(ref.Algorithm, raw)
	if err != nil {
		return nil, err
	}

	switch ref.Kind {
	case index.Whole, index.Dedup:
		sum := sha256.Sum256(decompressed)
		if hex.EncodeToString(sum[:]) != ref.ID {
			return nil, fmt.Errorf("objectstore: %s: %w", ref.ID, ErrIntegrity)
		}
		s.cache.Add(ref.ID, decompressed)
		return decompressed, nil
	case index.Delta:
		if ref.Base == nil {
			return nil, fmt.Errorf("objectstore: delta %s: %w: missing base", ref.ID, delta.ErrMalformed)
		}
		baseBytes, err := s.Get(*ref.Base)
		if err != nil {
			return nil, err
		}
		baseHash, err := hex.DecodeString(ref.BaseHash)
		if err != nil {
			return nil, fmt.Errorf("objectstore: delta %s: bad base hash: %w", ref.ID, ErrIO)
		}
		target, err := delta.Patch(baseBytes, decompressed, baseHash)
		if err != nil {
			return nil, err
		}
		return target, nil
	default:
		return nil, fmt.Errorf("objectstore: %s: %w: unknown storage kind", ref.ID, ErrIO)
	}
}

func (s *Store) readFile(path string) ([]byte, error) {
	f, err := s.root.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("objectstore: %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("objectstore: open %s: %w: %v", path, ErrIO, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("objectstore: stat %s: %w: %v", path, ErrIO, err)
	}
	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("objectstore: read %s: %w: %v", path, ErrIO, err)
	}
	return buf, nil
}

// DecRef decrements the refcount for an object and, if it reaches zero,
// removes its file from disk and the refcount record. Callers must check
// for dependent Delta objects before releasing a Whole object themselves
// (the object store has no view of the index's base-reference graph).
func (s *Store) DecRef(ref Ref) (removed bool, err error) {
	n, err := s.refs.DecRef(ref.ID)
	if err != nil {
		return false, fmt.Errorf("objectstore: decref: %w: %v", ErrIO, err)
	}
	if n > 0 {
		return false, nil
	}

	ext, err := extension(ref.Kind, ref.Algorithm)
	if err != nil {
		return false, err
	}
	path, err := objectPath(ref.ID, ext)
	if err != nil {
		return false, err
	}
	if err := s.root.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("objectstore: remove %s: %w: %v", path, ErrIO, err)
	}
	s.cache.Remove(ref.ID)
	return true, nil
}

// RemoveOrphan force-removes an object's file and refcount record
// regardless of current refcount, used by fsck to clean up objects that
// were written but never committed to the index.
func (s *Store) RemoveOrphan(id string, kind index.StorageKind, algo codec.Algorithm) error {
	ext, err := extension(kind, algo)
	if err != nil {
		return err
	}
	path, err := objectPath(id, ext)
	if err != nil {
		return err
	}
	if err := s.root.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("objectstore: remove orphan %s: %w: %v", path, ErrIO, err)
	}
	if err := s.refs.DeleteRefCount(id); err != nil {
		return fmt.Errorf("objectstore: remove orphan %s: %w: %v", id, ErrIO, err)
	}
	s.cache.Remove(id)
	return nil
}

// WalkObjects calls fn for every object file currently on disk, passing
// its id (derived from the fanout path) and its extension. Used by fsck
// to find objects that no index entry references.
func (s *Store) WalkObjects(fn func(id, ext string) error) error {
	return fs.WalkDir(s.root.FS(), "objects", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel("objects", path)
		if err != nil {
			return err
		}
		dir, file := filepath.Split(rel)
		dirPart := filepath.Base(filepath.Clean(dir))
		ext := filepath.Ext(file)
		name := file[:len(file)-len(ext)]
		if len(ext) > 0 {
			ext = ext[1:]
		}
		return fn(dirPart+name, ext)
	})
}
