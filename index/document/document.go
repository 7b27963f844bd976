// Package document implements the Index contract as a single
// human-readable YAML file. Every write re-serializes the whole map and
// atomically replaces the file (temp file, fsync, rename), matching the
// object store's own atomic-write discipline. It is cheap for the small
// N the storage manager expects before it advises migrating to
// index/sqlite.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/stowr/stowr/index"
)

// onDiskEntry mirrors index.Entry with yaml tags; kept separate so the
// wire format doesn't shift if index.Entry grows fields the file doesn't
// need to persist.
type onDiskEntry struct {
	OriginalPath string    `yaml:"original_path"`
	ObjectID     string    `yaml:"object_id"`
	OriginalSize int64     `yaml:"original_size"`
	StoredSize   int64     `yaml:"stored_size"`
	Algorithm    string    `yaml:"algorithm"`
	ContentHash  string    `yaml:"content_hash"`
	CreatedAt    time.Time `yaml:"created_at"`
	ModifiedAt   time.Time `yaml:"modified_at"`
	BaseObjectID string    `yaml:"base_object_id,omitempty"`
	Kind         int       `yaml:"kind"`
	DeltaScheme  byte      `yaml:"delta_scheme,omitempty"`
}

type onDiskFile struct {
	Entries   map[string]onDiskEntry `yaml:"entries"`
	RefCounts map[string]int         `yaml:"ref_counts"`
}

// Backend is a document-file Index + RefCounter implementation.
type Backend struct {
	mu   sync.RWMutex
	path string

	entries   map[string]index.Entry // by original path
	refCounts map[string]int
}

// Open loads path if it exists, or starts empty; path's parent directory
// must already exist.
func Open(path string) (*Backend, error) {
	b := &Backend{
		path:      path,
		entries:   make(map[string]index.Entry),
		refCounts: make(map[string]int),
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("document: read %s: %w: %v", path, index.ErrBackend, err)
	}
	if len(raw) == 0 {
		return b, nil
	}
	var onDisk onDiskFile
	if err := yaml.Unmarshal(raw, &onDisk); err != nil {
		return nil, fmt.Errorf("document: parse %s: %w: %v", path, index.ErrBackend, err)
	}
	for p, e := range onDisk.Entries {
		b.entries[p] = fromOnDisk(e)
	}
	for id, n := range onDisk.RefCounts {
		b.refCounts[id] = n
	}
	return b, nil
}

func fromOnDisk(e onDiskEntry) index.Entry {
	return index.Entry{
		OriginalPath: e.OriginalPath,
		ObjectID:     e.ObjectID,
		OriginalSize: e.OriginalSize,
		StoredSize:   e.StoredSize,
		Algorithm:    e.Algorithm,
		ContentHash:  e.ContentHash,
		CreatedAt:    e.CreatedAt,
		ModifiedAt:   e.ModifiedAt,
		BaseObjectID: e.BaseObjectID,
		Kind:         index.StorageKind(e.Kind),
		DeltaScheme:  e.DeltaScheme,
	}
}

func toOnDisk(e index.Entry) onDiskEntry {
	return onDiskEntry{
		OriginalPath: e.OriginalPath,
		ObjectID:     e.ObjectID,
		OriginalSize: e.OriginalSize,
		StoredSize:   e.StoredSize,
		Algorithm:    e.Algorithm,
		ContentHash:  e.ContentHash,
		CreatedAt:    e.CreatedAt,
		ModifiedAt:   e.ModifiedAt,
		BaseObjectID: e.BaseObjectID,
		Kind:         int(e.Kind),
		DeltaScheme:  e.DeltaScheme,
	}
}

// flush re-serializes the whole map and atomically replaces the file.
// Caller must hold b.mu (at least for reading the maps it copies).
func (b *Backend) flush() error {
	onDisk := onDiskFile{
		Entries:   make(map[string]onDiskEntry, len(b.entries)),
		RefCounts: make(map[string]int, len(b.refCounts)),
	}
	for p, e := range b.entries {
		onDisk.Entries[p] = toOnDisk(e)
	}
	for id, n := range b.refCounts {
		onDisk.RefCounts[id] = n
	}

	raw, err := yaml.Marshal(onDisk)
	if err != nil {
		return fmt.Errorf("document: marshal: %w: %v", index.ErrBackend, err)
	}

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, ".idx-*.tmp")
	if err != nil {
		return fmt.Errorf("document: create temp: %w: %v", index.ErrBackend, err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(raw); err != nil {
		return fmt.Errorf("document: write temp: %w: %v", index.ErrBackend, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("document: fsync temp: %w: %v", index.ErrBackend, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("document: close temp: %w: %v", index.ErrBackend, err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("document: rename: %w: %v", index.ErrBackend, err)
	}
	success = true
	return nil
}

func (b *Backend) Insert(entry index.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.entries[entry.OriginalPath]; exists {
		return fmt.Errorf("document: insert %s: %w", entry.OriginalPath, index.ErrAlreadyExists)
	}
	b.entries[entry.OriginalPath] = entry
	return b.flush()
}

func (b *Backend) Get(path string) (index.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[path]
	if !ok {
		return index.Entry{}, fmt.Errorf("document: get %s: %w", path, index.ErrNotFound)
	}
	return e, nil
}

func (b *Backend) Remove(path string) (index.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[path]
	if !ok {
		return index.Entry{}, fmt.Errorf("document: remove %s: %w", path, index.ErrNotFound)
	}
	delete(b.entries, path)
	if err := b.flush(); err != nil {
		b.entries[path] = e
		return index.Entry{}, err
	}
	return e, nil
}

func (b *Backend) UpdatePath(oldPath, newPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[oldPath]
	if !ok {
		return fmt.Errorf("document: rename %s: %w", oldPath, index.ErrNotFound)
	}
	if _, exists := b.entries[newPath]; exists {
		return fmt.Errorf("document: rename to %s: %w", newPath, index.ErrAlreadyExists)
	}
	e.OriginalPath = newPath
	e.ModifiedAt = time.Now().UTC()
	delete(b.entries, oldPath)
	b.entries[newPath] = e
	if err := b.flush(); err != nil {
		delete(b.entries, newPath)
		e.OriginalPath = oldPath
		b.entries[oldPath] = e
		return err
	}
	return nil
}

func (b *Backend) List() ([]index.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]index.Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	return out, nil
}

func (b *Backend) Search(pattern string) ([]index.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []index.Entry
	for path, e := range b.entries {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			return nil, fmt.Errorf("document: search pattern %q: %w: %v", pattern, index.ErrBackend, err)
		}
		if matched {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *Backend) FindByHash(hash string) ([]index.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []index.Entry
	for _, e := range b.entries {
		if e.ContentHash == hash {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *Backend) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries), nil
}

func (b *Backend) Close() error {
	return nil
}

func (b *Backend) IncRef(id string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refCounts[id]++
	n := b.refCounts[id]
	if err := b.flush(); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *Backend) DecRef(id string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.refCounts[id] - 1
	if n <= 0 {
		delete(b.refCounts, id)
		n = 0
	} else {
		b.refCounts[id] = n
	}
	if err := b.flush(); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *Backend) RefCount(id string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.refCounts[id], nil
}

func (b *Backend) SetRefCount(id string, n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		delete(b.refCounts, id)
	} else {
		b.refCounts[id] = n
	}
	return b.flush()
}

func (b *Backend) DeleteRefCount(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.refCounts, id)
	return b.flush()
}

func (b *Backend) AllRefCounts() (map[string]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int, len(b.refCounts))
	for id, n := range b.refCounts {
		out[id] = n
	}
	return out, nil
}
