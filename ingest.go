package stowr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stowr/stowr/codec"
	"github.com/stowr/stowr/delta"
	"github.com/stowr/stowr/index"
	"github.com/stowr/stowr/objectstore"
)

// maxDeltaCandidates bounds how many same-extension, similarly-sized
// entries the delta probe fetches and scores per store_file call.
const maxDeltaCandidates = 8

// StoreFile reads path's bytes, runs the ingest pipeline (dedup probe,
// then delta probe, then a whole-compress fallback), and commits a new
// index entry for it. If keepOriginal is false, the source file is
// removed once the commit succeeds.
func (e *Engine) StoreFile(ctx context.Context, path string, keepOriginal bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	canonical, err := canonicalizePath(path)
	if err != nil {
		return err
	}

	if _, err := e.idx.Get(canonical); err == nil {
		return fmt.Errorf("store %s: %w", canonical, ErrAlreadyExists)
	} else if !isIndexNotFound(err) {
		return fmt.Errorf("store %s: %w: %v", canonical, ErrIndex, err)
	}

	data, err := os.ReadFile(canonical)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("store %s: %w", canonical, ErrNotFound)
		}
		return fmt.Errorf("store %s: read: %w: %v", canonical, ErrObjectStore, err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	entry, baseToBump, err := e.planIngest(canonical, data, hash)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	if baseToBump != "" {
		if _, err := e.store.IncRef(baseToBump); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("store %s: %w: %v", canonical, ErrObjectStore, err)
		}
	}
	if err := e.idx.Insert(entry); err != nil {
		e.mu.Unlock()
		return translateIndexErr("store "+canonical, err)
	}
	e.mu.Unlock()

	if !keepOriginal {
		if err := os.Remove(canonical); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store %s: remove source: %w: %v", canonical, ErrObjectStore, err)
		}
	}
	return nil
}

// planIngest runs the dedup probe, then the delta probe, then the whole
// fallback, writing the chosen object to the store and returning the
// index entry to commit. baseToBump is non-empty when a Delta object was
// chosen, naming the base object whose refcount must be bumped alongside
// the entry insert.
func (e *Engine) planIngest(canonical string, data []byte, hash string) (entry index.Entry, baseToBump string, err error) {
	now := time.Now()

	if e.cfg.EnableDeduplication {
		dedup, ok, err := e.dedupProbe(canonical, data, hash, now)
		if err != nil {
			return index.Entry{}, "", err
		}
		if ok {
			return dedup, "", nil
		}
	}

	if e.cfg.EnableDeltaCompression {
		deltaEntry, base, ok, err := e.deltaProbe(canonical, data, hash, now)
		if err != nil {
			return index.Entry{}, "", err
		}
		if ok {
			return deltaEntry, base, nil
		}
	}

	return e.wholeFallback(canonical, data, hash, now)
}

// dedupProbe reuses an existing Whole/Dedup object sharing hash, if any.
func (e *Engine) dedupProbe(canonical string, data []byte, hash string, now time.Time) (index.Entry, bool, error) {
	matches, err := e.idx.FindByHash(hash)
	if err != nil {
		return index.Entry{}, false, fmt.Errorf("store %s: dedup probe: %w: %v", canonical, ErrIndex, err)
	}
	var target index.Entry
	found := false
	for _, m := range matches {
		if m.Kind != index.Delta {
			target = m
			found = true
			break
		}
	}
	if !found {
		return index.Entry{}, false, nil
	}

	algo, err := parseAlgorithm(target.Algorithm)
	if err != nil {
		return index.Entry{}, false, fmt.Errorf("store %s: %w: %v", canonical, ErrCodec, err)
	}
	ref := objectstore.Ref{ID: target.ObjectID, Algorithm: algo, Kind: index.Whole}
	if _, _, err := e.store.Put(ref, e.level, data); err != nil {
		return index.Entry{}, false, fmt.Errorf("store %s: %w: %v", canonical, ErrObjectStore, err)
	}

	return index.Entry{
		OriginalPath: canonical,
		ObjectID:     target.ObjectID,
		OriginalSize: int64(len(data)),
		StoredSize:   0,
		Algorithm:    target.Algorithm,
		ContentHash:  hash,
		CreatedAt:    now,
		ModifiedAt:   now,
		Kind:         index.Dedup,
	}, true, nil
}

// deltaProbe scores up to maxDeltaCandidates same-extension, similarly
// sized Whole entries against data and, if the best candidate clears the
// configured similarity threshold and its compressed residual beats a
// compressed whole copy, writes a Delta object against it.
func (e *Engine) deltaProbe(canonical string, data []byte, hash string, now time.Time) (entry index.Entry, base string, ok bool, err error) {
	all, err := e.idx.List()
	if err != nil {
		return index.Entry{}, "", false, fmt.Errorf("store %s: delta probe: %w: %v", canonical, ErrIndex, err)
	}
	candidates := selectDeltaCandidates(all, canonical, int64(len(data)))
	if len(candidates) == 0 {
		return index.Entry{}, "", false, nil
	}

	var best index.Entry
	bestScore := -1.0
	for _, c := range candidates {
		algo, err := parseAlgorithm(c.Algorithm)
		if err != nil {
			continue
		}
		cbytes, err := e.store.Get(objectstore.Ref{ID: c.ObjectID, Algorithm: algo, Kind: index.Whole})
		if err != nil {
			continue
		}
		score := delta.Similarity(cbytes, data)
		if score > bestScore || (score == bestScore && c.OriginalSize < best.OriginalSize) {
			bestScore = score
			best = c
		}
	}
	if bestScore < e.threshold {
		return index.Entry{}, "", false, nil
	}

	baseAlgo, err := parseAlgorithm(best.Algorithm)
	if err != nil {
		return index.Entry{}, "", false, fmt.Errorf("store %s: %w: %v", canonical, ErrCodec, err)
	}
	baseBytes, err := e.store.Get(objectstore.Ref{ID: best.ObjectID, Algorithm: baseAlgo, Kind: index.Whole})
	if err != nil {
		return index.Entry{}, "", false, fmt.Errorf("store %s: delta probe: %w: %v", canonical, ErrObjectStore, err)
	}
	baseHashBytes, err := hex.DecodeString(best.ObjectID)
	if err != nil {
		return index.Entry{}, "", false, fmt.Errorf("store %s: delta probe: bad base id: %w", canonical, ErrDelta)
	}

	residual, err := delta.Diff(e.scheme, baseBytes, data, baseHashBytes)
	if err != nil {
		return index.Entry{}, "", false, fmt.Errorf("store %s: %w: %v", canonical, ErrDelta, err)
	}
	compressedResidual, err := codec.Compress(e.algo, e.level, residual)
	if err != nil {
		return index.Entry{}, "", false, fmt.Errorf("store %s: %w: %v", canonical, ErrCodec, err)
	}
	compressedWhole, err := codec.Compress(e.algo, e.level, data)
	if err != nil {
		return index.Entry{}, "", false, fmt.Errorf("store %s: %w: %v", canonical, ErrCodec, err)
	}
	if len(compressedResidual) >= len(compressedWhole) {
		return index.Entry{}, "", false, nil
	}

	objectID := uuid.NewString()
	ref := objectstore.Ref{
		ID:        objectID,
		Algorithm: e.algo,
		Kind:      index.Delta,
		Scheme:    e.scheme,
		Base:      &objectstore.Ref{ID: best.ObjectID, Algorithm: baseAlgo, Kind: index.Whole},
		BaseHash:  best.ObjectID,
	}
	_, storedSize, err := e.store.Put(ref, e.level, residual)
	if err != nil {
		return index.Entry{}, "", false, fmt.Errorf("store %s: %w: %v", canonical, ErrObjectStore, err)
	}

	return index.Entry{
		OriginalPath: canonical,
		ObjectID:     objectID,
		OriginalSize: int64(len(data)),
		StoredSize:   storedSize,
		Algorithm:    string(e.algo),
		ContentHash:  hash,
		CreatedAt:    now,
		ModifiedAt:   now,
		BaseObjectID: best.ObjectID,
		Kind:         index.Delta,
		DeltaScheme:  byte(e.scheme),
	}, best.ObjectID, true, nil
}

func (e *Engine) wholeFallback(canonical string, data []byte, hash string, now time.Time) (index.Entry, string, error) {
	ref := objectstore.Ref{ID: hash, Algorithm: e.algo, Kind: index.Whole}
	_, storedSize, err := e.store.Put(ref, e.level, data)
	if err != nil {
		return index.Entry{}, "", fmt.Errorf("store %s: %w: %v", canonical, ErrObjectStore, err)
	}
	return index.Entry{
		OriginalPath: canonical,
		ObjectID:     hash,
		OriginalSize: int64(len(data)),
		StoredSize:   storedSize,
		Algorithm:    string(e.algo),
		ContentHash:  hash,
		CreatedAt:    now,
		ModifiedAt:   now,
		Kind:         index.Whole,
	}, "", nil
}

// selectDeltaCandidates narrows all down to entries that share path's
// extension, are a Whole object (a usable diff base), and fall within
// 2x of size, then sorts smallest-first so ties in the caller's scoring
// loop favor the cheaper base to fetch on extract.
func selectDeltaCandidates(all []index.Entry, path string, size int64) []index.Entry {
	ext := filepath.Ext(path)
	var out []index.Entry
	for _, e := range all {
		if e.Kind != index.Whole {
			continue
		}
		if filepath.Ext(e.OriginalPath) != ext {
			continue
		}
		if e.OriginalSize == 0 || size == 0 {
			continue
		}
		ratio := float64(e.OriginalSize) / float64(size)
		if ratio < 0.5 || ratio > 2.0 {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalSize < out[j].OriginalSize })
	if len(out) > maxDeltaCandidates {
		out = out[:maxDeltaCandidates]
	}
	return out
}

// OweFile reconstructs path's bytes from the store, writes them back to
// the filesystem, and removes the entry. If path already exists with
// content matching the entry's recorded hash, the write is skipped but
// the entry is still released; if it exists with other content, OweFile
// fails with AlreadyExists. Owing a Whole/Dedup entry whose object still
// has Delta dependents succeeds: the refcount each Delta holds on its
// base keeps that object on disk until the Delta itself is released.
func (e *Engine) OweFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	canonical, err := canonicalizePath(path)
	if err != nil {
		return err
	}

	e.mu.RLock()
	entry, err := e.idx.Get(canonical)
	e.mu.RUnlock()
	if err != nil {
		return translateIndexErr("owe "+canonical, err)
	}

	ref := e.refFor(entry)
	data, err := e.store.Get(ref)
	if err != nil {
		kind := ErrObjectStore
		switch {
		case errors.Is(err, objectstore.ErrNotFound):
			kind = ErrNotFound
		case errors.Is(err, objectstore.ErrIntegrity):
			kind = ErrIntegrity
		case errors.Is(err, delta.ErrBaseMismatch), errors.Is(err, delta.ErrMalformed), errors.Is(err, delta.ErrUnknownScheme):
			kind = ErrDelta
		case errors.Is(err, codec.ErrCorrupt):
			kind = ErrCodec
		}
		return fmt.Errorf("owe %s: %w: %v", canonical, kind, err)
	}

	skipWrite, err := destinationMatches(canonical, entry.ContentHash)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("owe %s: %w", canonical, err)
		}
		return fmt.Errorf("owe %s: %w: %v", canonical, ErrObjectStore, err)
	}
	if !skipWrite {
		if err := writeFileAtomic(canonical, data); err != nil {
			return fmt.Errorf("owe %s: %w: %v", canonical, ErrObjectStore, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.releaseRef(ref); err != nil {
		return fmt.Errorf("owe %s: %w: %v", canonical, ErrObjectStore, err)
	}
	if _, err := e.idx.Remove(canonical); err != nil {
		return translateIndexErr("owe "+canonical, err)
	}
	return nil
}

// releaseRef decrements ref's own refcount and, for a Delta object,
// also decrements its base's refcount: the dependency the delta's
// creation added is released along with the delta itself.
func (e *Engine) releaseRef(ref objectstore.Ref) (removed bool, err error) {
	removed, err = e.store.DecRef(ref)
	if err != nil {
		return false, err
	}
	if ref.Kind == index.Delta && ref.Base != nil {
		if _, err := e.store.DecRef(*ref.Base); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// destinationMatches reports whether path already exists on disk with
// content hashing to wantHash.
func destinationMatches(path, wantHash string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != wantHash {
		return false, fmt.Errorf("destination %s exists with different content: %w", path, ErrAlreadyExists)
	}
	return true, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, ".stowr-owe-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	success = true
	return nil
}

// canonicalizePath resolves path to an absolute, cleaned form so the
// index's path-keyed lookups are stable regardless of the working
// directory a caller issued the request from.
func canonicalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w: %v", path, ErrConfig, err)
	}
	return filepath.Clean(abs), nil
}

// refFor builds the objectstore.Ref an engine-level entry resolves to.
// Dedup entries are normalized to the Whole kind: the shared object they
// point at is always physically a Whole object, regardless of how many
// logical entries reference it.
func (e *Engine) refFor(entry index.Entry) objectstore.Ref {
	algo, _ := parseAlgorithm(entry.Algorithm)
	physicalKind := entry.Kind
	if physicalKind == index.Dedup {
		physicalKind = index.Whole
	}
	ref := objectstore.Ref{ID: entry.ObjectID, Algorithm: algo, Kind: physicalKind}
	if entry.Kind == index.Delta {
		ref.Scheme = delta.Scheme(entry.DeltaScheme)
		ref.BaseHash = entry.BaseObjectID
		baseAlgo := algo
		if baseEntries, err := e.idx.FindByHash(entry.BaseObjectID); err == nil {
			for _, be := range baseEntries {
				if be.ObjectID == entry.BaseObjectID && be.Kind != index.Delta {
					if a, err := parseAlgorithm(be.Algorithm); err == nil {
						baseAlgo = a
					}
					break
				}
			}
		}
		ref.Base = &objectstore.Ref{ID: entry.BaseObjectID, Algorithm: baseAlgo, Kind: index.Whole}
	}
	return ref
}

// parseAlgorithm maps an entry's recorded algorithm name back to a
// codec.Algorithm, failing for anything this build's codec package does
// not recognize.
func parseAlgorithm(s string) (codec.Algorithm, error) {
	a := codec.Algorithm(s)
	if _, err := a.Extension(); err != nil {
		return "", fmt.Errorf("algorithm %q: %w", s, ErrCodec)
	}
	return a, nil
}
