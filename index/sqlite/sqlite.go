// Package sqlite implements the Index contract as an embedded SQLite
// database, keyed by path with a secondary index on content hash.
// Writes are single-row statements wrapped in short transactions, one
// transaction per call; an index mutation and its refcount effect are
// separate calls and so commit separately.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	_ "modernc.org/sqlite" // driver registration

	"github.com/stowr/stowr/index"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	original_path  TEXT PRIMARY KEY,
	object_id      TEXT NOT NULL,
	original_size  INTEGER NOT NULL,
	stored_size    INTEGER NOT NULL,
	algorithm      TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	modified_at    TEXT NOT NULL,
	base_object_id TEXT NOT NULL DEFAULT '',
	kind           INTEGER NOT NULL,
	delta_scheme   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_entries_content_hash ON entries(content_hash);

CREATE TABLE IF NOT EXISTS ref_counts (
	object_id TEXT PRIMARY KEY,
	count     INTEGER NOT NULL
);
`

// Backend is a SQLite-backed Index + RefCounter implementation.
type Backend struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite database at dsn and ensures its
// schema exists.
func Open(dsn string) (*Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w: %v", dsn, index.ErrBackend, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w: %v", index.ErrBackend, err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Insert(entry index.Entry) error {
	ctx := context.Background()
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w: %v", index.ErrBackend, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE original_path = ?`, entry.OriginalPath).Scan(&exists)
	if err == nil {
		return fmt.Errorf("sqlite: insert %s: %w", entry.OriginalPath, index.ErrAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: insert: check existing: %w: %v", index.ErrBackend, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (original_path, object_id, original_size, stored_size, algorithm,
			content_hash, created_at, modified_at, base_object_id, kind, delta_scheme)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.OriginalPath, entry.ObjectID, entry.OriginalSize, entry.StoredSize, entry.Algorithm,
		entry.ContentHash, formatTime(entry.CreatedAt), formatTime(entry.ModifiedAt),
		entry.BaseObjectID, int(entry.Kind), entry.DeltaScheme)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w: %v", index.ErrBackend, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: insert: commit: %w: %v", index.ErrBackend, err)
	}
	return nil
}

const selectColumns = `original_path, object_id, original_size, stored_size, algorithm,
	content_hash, created_at, modified_at, base_object_id, kind, delta_scheme`

func scanEntry(row interface{ Scan(dest ...any) error }) (index.Entry, error) {
	var e index.Entry
	var created, modified string
	var kind int
	err := row.Scan(&e.OriginalPath, &e.ObjectID, &e.OriginalSize, &e.StoredSize, &e.Algorithm,
		&e.ContentHash, &created, &modified, &e.BaseObjectID, &kind, &e.DeltaScheme)
	if err != nil {
		return index.Entry{}, err
	}
	e.Kind = index.StorageKind(kind)
	e.CreatedAt, err = parseTime(created)
	if err != nil {
		return index.Entry{}, err
	}
	e.ModifiedAt, err = parseTime(modified)
	if err != nil {
		return index.Entry{}, err
	}
	return e, nil
}

func (b *Backend) Get(path string) (index.Entry, error) {
	row := b.db.QueryRow(fmt.Sprintf(`SELECT %s FROM entries WHERE original_path = ?`, selectColumns), path)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return index.Entry{}, fmt.Errorf("sqlite: get %s: %w", path, index.ErrNotFound)
		}
		return index.Entry{}, fmt.Errorf("sqlite: get: %w: %v", index.ErrBackend, err)
	}
	return e, nil
}

func (b *Backend) Remove(path string) (index.Entry, error) {
	ctx := context.Background()
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return index.Entry{}, fmt.Errorf("sqlite: remove: %w: %v", index.ErrBackend, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM entries WHERE original_path = ?`, selectColumns), path)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return index.Entry{}, fmt.Errorf("sqlite: remove %s: %w", path, index.ErrNotFound)
		}
		return index.Entry{}, fmt.Errorf("sqlite: remove: %w: %v", index.ErrBackend, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE original_path = ?`, path); err != nil {
		return index.Entry{}, fmt.Errorf("sqlite: remove: %w: %v", index.ErrBackend, err)
	}
	if err := tx.Commit(); err != nil {
		return index.Entry{}, fmt.Errorf("sqlite: remove: commit: %w: %v", index.ErrBackend, err)
	}
	return e, nil
}

func (b *Backend) UpdatePath(oldPath, newPath string) error {
	ctx := context.Background()
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: rename: %w: %v", index.ErrBackend, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE original_path = ?`, oldPath).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: rename %s: %w", oldPath, index.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("sqlite: rename: %w: %v", index.ErrBackend, err)
	}

	err = tx.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE original_path = ?`, newPath).Scan(&exists)
	if err == nil {
		return fmt.Errorf("sqlite: rename to %s: %w", newPath, index.ErrAlreadyExists)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: rename: %w: %v", index.ErrBackend, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE entries SET original_path = ?, modified_at = ? WHERE original_path = ?`,
		newPath, formatTime(time.Now().UTC()), oldPath)
	if err != nil {
		return fmt.Errorf("sqlite: rename: %w: %v", index.ErrBackend, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: rename: commit: %w: %v", index.ErrBackend, err)
	}
	return nil
}

func (b *Backend) List() ([]index.Entry, error) {
	rows, err := b.db.Query(fmt.Sprintf(`SELECT %s FROM entries`, selectColumns))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w: %v", index.ErrBackend, err)
	}
	defer rows.Close()
	var out []index.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list: scan: %w: %v", index.ErrBackend, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list: %w: %v", index.ErrBackend, err)
	}
	return out, nil
}

// Search fetches every entry and filters in Go, matching document's
// behavior so both backends agree on glob semantics (including "**").
// SQLite's GLOB operator doesn't support doublestar segments.
func (b *Backend) Search(pattern string) ([]index.Entry, error) {
	all, err := b.List()
	if err != nil {
		return nil, err
	}
	var out []index.Entry
	for _, e := range all {
		matched, err := doublestar.Match(pattern, e.OriginalPath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: search pattern %q: %w: %v", pattern, index.ErrBackend, err)
		}
		if matched {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *Backend) FindByHash(hash string) ([]index.Entry, error) {
	rows, err := b.db.Query(fmt.Sprintf(`SELECT %s FROM entries WHERE content_hash = ?`, selectColumns), hash)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find_by_hash: %w: %v", index.ErrBackend, err)
	}
	defer rows.Close()
	var out []index.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: find_by_hash: scan: %w: %v", index.ErrBackend, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *Backend) Count() (int, error) {
	var n int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w: %v", index.ErrBackend, err)
	}
	return n, nil
}

func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close: %w: %v", index.ErrBackend, err)
	}
	return nil
}

func (b *Backend) IncRef(id string) (int, error) {
	return b.bumpRef(id, 1)
}

func (b *Backend) DecRef(id string) (int, error) {
	return b.bumpRef(id, -1)
}

func (b *Backend) bumpRef(id string, delta int) (int, error) {
	ctx := context.Background()
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: bump ref: %w: %v", index.ErrBackend, err)
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx, `SELECT count FROM ref_counts WHERE object_id = ?`, id).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sqlite: bump ref: %w: %v", index.ErrBackend, err)
	}
	n += delta
	if n <= 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ref_counts WHERE object_id = ?`, id); err != nil {
			return 0, fmt.Errorf("sqlite: bump ref: delete: %w: %v", index.ErrBackend, err)
		}
		n = 0
	} else {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ref_counts (object_id, count) VALUES (?, ?)
			ON CONFLICT(object_id) DO UPDATE SET count = excluded.count`, id, n); err != nil {
			return 0, fmt.Errorf("sqlite: bump ref: upsert: %w: %v", index.ErrBackend, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: bump ref: commit: %w: %v", index.ErrBackend, err)
	}
	return n, nil
}

func (b *Backend) RefCount(id string) (int, error) {
	var n int
	err := b.db.QueryRow(`SELECT count FROM ref_counts WHERE object_id = ?`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: ref count: %w: %v", index.ErrBackend, err)
	}
	return n, nil
}

func (b *Backend) SetRefCount(id string, n int) error {
	if n <= 0 {
		return b.DeleteRefCount(id)
	}
	_, err := b.db.Exec(`
		INSERT INTO ref_counts (object_id, count) VALUES (?, ?)
		ON CONFLICT(object_id) DO UPDATE SET count = excluded.count`, id, n)
	if err != nil {
		return fmt.Errorf("sqlite: set ref count: %w: %v", index.ErrBackend, err)
	}
	return nil
}

func (b *Backend) DeleteRefCount(id string) error {
	if _, err := b.db.Exec(`DELETE FROM ref_counts WHERE object_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete ref count: %w: %v", index.ErrBackend, err)
	}
	return nil
}

func (b *Backend) AllRefCounts() (map[string]int, error) {
	rows, err := b.db.Query(`SELECT object_id, count FROM ref_counts`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: all ref counts: %w: %v", index.ErrBackend, err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("sqlite: all ref counts: scan: %w: %v", index.ErrBackend, err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
